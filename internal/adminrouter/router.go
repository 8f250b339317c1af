// Package adminrouter implements the declarative admin HTTP route table: a
// compiled-once list of {method, path, requiresAuth, handler} entries with
// two-tier authorization (unauthenticated -> 401, viewer-on-mutation -> 403).
package adminrouter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/wilsonzlin/conduit-relay/internal/admincore"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Context is what a Handler receives for one matched request.
type Context struct {
	Auth   admincore.AuthResult
	Params map[string]string
	Query  url.Values
	Body   []byte
}

// Response is what a Handler returns; JSON encoding happens at the
// ServeHTTP boundary, never inside a handler.
type Response struct {
	Status  int
	Body    any
	Headers map[string]string
}

// Handler implements one route's business logic against a matched Context.
type Handler func(ctx *Context) Response

// Route is one declarative route table entry before compilation.
type Route struct {
	Method       string
	Path         string // e.g. "/clients/:id"
	RequiresAuth bool
	Handler      Handler
}

type compiledRoute struct {
	method       string
	regex        *regexp.Regexp
	paramNames   []string
	requiresAuth bool
	handler      Handler
}

var paramSegment = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

func compile(route Route) compiledRoute {
	var names []string
	pattern := paramSegment.ReplaceAllStringFunc(route.Path, func(seg string) string {
		names = append(names, seg[1:])
		return `([^/]+)`
	})
	return compiledRoute{
		method:       route.Method,
		regex:        regexp.MustCompile("^" + pattern + "$"),
		paramNames:   names,
		requiresAuth: route.RequiresAuth,
		handler:      route.Handler,
	}
}

// Router dispatches admin HTTP requests against a compiled route table,
// matching the first registered route whose method and path both match.
type Router struct {
	basePath string
	auth     *admincore.AuthManager
	routes   []compiledRoute
}

// New compiles routes under basePath (e.g. "/admin/v1"). Routes are matched
// in the order given, first match wins.
func New(basePath string, auth *admincore.AuthManager, routes []Route) *Router {
	compiled := make([]compiledRoute, 0, len(routes))
	for _, r := range routes {
		compiled = append(compiled, compile(r))
	}
	return &Router{basePath: strings.TrimSuffix(basePath, "/"), auth: auth, routes: compiled}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, rt.basePath)
	if path == "" {
		path = "/"
	}

	var matched *compiledRoute
	var params map[string]string
	var pathMatchedAnyMethod bool

	for i := range rt.routes {
		route := &rt.routes[i]
		m := route.regex.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		pathMatchedAnyMethod = true
		if route.method != r.Method {
			continue
		}
		matched = route
		if len(route.paramNames) > 0 {
			params = make(map[string]string, len(route.paramNames))
			for i, name := range route.paramNames {
				params[name] = m[i+1]
			}
		}
		break
	}

	if matched == nil {
		if pathMatchedAnyMethod {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		} else {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return
	}

	var auth admincore.AuthResult
	if matched.requiresAuth {
		auth = rt.auth.AuthenticateRequest(r)
		if !auth.Valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if auth.Role == admincore.RoleViewer && r.Method != http.MethodGet {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
	}

	isMutating := r.Method != http.MethodGet && r.Method != http.MethodHead
	var body []byte
	if isMutating {
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Content-Type: application/json required"})
			return
		}
		limited := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		buf, err := io.ReadAll(limited)
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		body = buf
	}

	resp := matched.handler(&Context{
		Auth:   auth,
		Params: params,
		Query:  r.URL.Query(),
		Body:   body,
	})

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
