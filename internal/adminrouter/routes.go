package adminrouter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/admincore"
	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
)

// Deps wires every component a default admin route handler needs.
type Deps struct {
	Core      *admincore.Core
	Snapshots *metrics.SnapshotProducer
	Metrics   *metrics.Metrics
	Realm     *realm.Realm
	Queue     *queue.MessageQueue
	StartedAt time.Time

	// NonSensitiveConfig returns the subset of live configuration GET /config
	// is allowed to expose; secrets (API keys, JWT secret, basic password
	// hashes) must never appear here.
	NonSensitiveConfig func() map[string]any
}

// DefaultRoutes builds the complete enumerated admin route table.
func DefaultRoutes(d Deps) []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/health", RequiresAuth: false, Handler: d.handleHealth},
		{Method: http.MethodGet, Path: "/status", RequiresAuth: true, Handler: d.handleStatus},

		{Method: http.MethodGet, Path: "/metrics", RequiresAuth: true, Handler: d.handleMetricsCurrent},
		{Method: http.MethodGet, Path: "/metrics/history", RequiresAuth: true, Handler: d.handleMetricsHistory},
		{Method: http.MethodGet, Path: "/metrics/throughput", RequiresAuth: true, Handler: d.handleMetricsThroughput},
		{Method: http.MethodGet, Path: "/metrics/latency", RequiresAuth: true, Handler: d.handleMetricsLatency},
		{Method: http.MethodGet, Path: "/metrics/errors", RequiresAuth: true, Handler: d.handleMetricsErrors},
		{Method: http.MethodPost, Path: "/metrics/reset", RequiresAuth: true, Handler: d.handleMetricsReset},

		{Method: http.MethodGet, Path: "/clients", RequiresAuth: true, Handler: d.handleClientsList},
		{Method: http.MethodGet, Path: "/clients/:id", RequiresAuth: true, Handler: d.handleClientGet},
		{Method: http.MethodDelete, Path: "/clients", RequiresAuth: true, Handler: d.handleClientsDisconnectAll},
		{Method: http.MethodDelete, Path: "/clients/:id", RequiresAuth: true, Handler: d.handleClientDisconnect},
		{Method: http.MethodDelete, Path: "/clients/:id/queue", RequiresAuth: true, Handler: d.handleClientPurgeQueue},

		{Method: http.MethodGet, Path: "/bans", RequiresAuth: true, Handler: d.handleBansList},
		{Method: http.MethodGet, Path: "/bans/clients", RequiresAuth: true, Handler: d.handleBansListClients},
		{Method: http.MethodGet, Path: "/bans/ips", RequiresAuth: true, Handler: d.handleBansListIPs},
		{Method: http.MethodPost, Path: "/bans/client/:id", RequiresAuth: true, Handler: d.handleBanClient},
		{Method: http.MethodDelete, Path: "/bans/client/:id", RequiresAuth: true, Handler: d.handleUnbanClient},
		{Method: http.MethodPost, Path: "/bans/ip/:ip", RequiresAuth: true, Handler: d.handleBanIP},
		{Method: http.MethodDelete, Path: "/bans/ip/:ip", RequiresAuth: true, Handler: d.handleUnbanIP},
		{Method: http.MethodDelete, Path: "/bans", RequiresAuth: true, Handler: d.handleBansClear},

		{Method: http.MethodGet, Path: "/audit", RequiresAuth: true, Handler: d.handleAuditQuery},
		{Method: http.MethodDelete, Path: "/audit", RequiresAuth: true, Handler: d.handleAuditClear},

		{Method: http.MethodGet, Path: "/config", RequiresAuth: true, Handler: d.handleConfigGet},
		{Method: http.MethodPatch, Path: "/config/rate-limit", RequiresAuth: true, Handler: d.handleConfigRateLimit},
		{Method: http.MethodPatch, Path: "/config/features", RequiresAuth: true, Handler: d.handleConfigFeatures},

		{Method: http.MethodPost, Path: "/broadcast", RequiresAuth: true, Handler: d.handleBroadcast},
	}
}

func (d Deps) handleHealth(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: map[string]string{"status": "ok"}}
}

func (d Deps) handleStatus(ctx *Context) Response {
	body := map[string]any{
		"uptimeSeconds": time.Since(d.StartedAt).Seconds(),
		"clients":       d.Realm.Count(),
	}
	if d.Core.Events != nil {
		body["eventSubscribers"] = d.Core.Events.SubscriberCount()
	}
	return Response{Status: http.StatusOK, Body: body}
}

func (d Deps) handleMetricsCurrent(ctx *Context) Response {
	snap, ok := d.Snapshots.Latest()
	if !ok {
		snap = d.Snapshots.Produce(time.Now())
	}
	return Response{Status: http.StatusOK, Body: snap}
}

func (d Deps) handleMetricsHistory(ctx *Context) Response {
	history := d.Snapshots.History()
	if dur := ctx.Query.Get("duration"); dur != "" {
		if cutoff, ok := parseDurationSuffix(dur); ok {
			since := time.Now().Add(-cutoff)
			history = filterSnapshots(history, func(s metrics.MetricsSnapshot) bool { return !s.Timestamp.Before(since) })
		}
	} else if startStr, endStr := ctx.Query.Get("start"), ctx.Query.Get("end"); startStr != "" || endStr != "" {
		start, _ := strconv.ParseInt(startStr, 10, 64)
		end, _ := strconv.ParseInt(endStr, 10, 64)
		history = filterSnapshots(history, func(s metrics.MetricsSnapshot) bool {
			ms := s.Timestamp.UnixMilli()
			if start > 0 && ms < start {
				return false
			}
			if end > 0 && ms > end {
				return false
			}
			return true
		})
	}
	return Response{Status: http.StatusOK, Body: history}
}

func parseDurationSuffix(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func filterSnapshots(in []metrics.MetricsSnapshot, keep func(metrics.MetricsSnapshot) bool) []metrics.MetricsSnapshot {
	out := make([]metrics.MetricsSnapshot, 0, len(in))
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (d Deps) handleMetricsThroughput(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: d.Metrics.Throughput.GetAll()}
}

func (d Deps) handleMetricsLatency(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: d.Metrics.Latency.GetAll()}
}

func (d Deps) handleMetricsErrors(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: d.Metrics.ErrorsByType()}
}

func (d Deps) handleMetricsReset(ctx *Context) Response {
	d.Metrics.Reset()
	d.Core.Actions.ResetMetrics(ctx.Auth.UserID)
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleClientsList(ctx *Context) Response {
	ids := d.Realm.GetPeerIds()
	return Response{Status: http.StatusOK, Body: map[string]any{"clients": ids, "count": len(ids)}}
}

func (d Deps) handleClientGet(ctx *Context) Response {
	id := ctx.Params["id"]
	peer, ok := d.Realm.GetPeer(id)
	if !ok {
		return Response{Status: http.StatusNotFound, Body: map[string]string{"error": "not found"}}
	}
	return Response{Status: http.StatusOK, Body: map[string]any{
		"id":         peer.ID,
		"attached":   peer.Attached(),
		"lastPingMs": peer.LastPing().UnixMilli(),
	}}
}

func (d Deps) handleClientsDisconnectAll(ctx *Context) Response {
	ids := d.Realm.GetPeerIds()
	for _, id := range ids {
		d.Core.Actions.DisconnectClient(id, ctx.Auth.UserID)
	}
	return Response{Status: http.StatusOK, Body: map[string]any{"disconnected": len(ids)}}
}

func (d Deps) handleClientDisconnect(ctx *Context) Response {
	id := ctx.Params["id"]
	found := d.Core.Actions.DisconnectClient(id, ctx.Auth.UserID)
	if !found {
		return Response{Status: http.StatusNotFound, Body: map[string]string{"error": "not found"}}
	}
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleClientPurgeQueue(ctx *Context) Response {
	id := ctx.Params["id"]
	d.Queue.Clear(id)
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleBansList(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: map[string]any{
		"clients": d.Core.Bans.ListClients(),
		"ips":     d.Core.Bans.ListIPs(),
	}}
}

func (d Deps) handleBansListClients(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: d.Core.Bans.ListClients()}
}

func (d Deps) handleBansListIPs(ctx *Context) Response {
	return Response{Status: http.StatusOK, Body: d.Core.Bans.ListIPs()}
}

type banRequestBody struct {
	Reason string `json:"reason"`
}

func (d Deps) handleBanClient(ctx *Context) Response {
	var body banRequestBody
	_ = json.Unmarshal(ctx.Body, &body)
	ban := d.Core.Actions.BanClient(ctx.Params["id"], body.Reason, ctx.Auth.UserID)
	return Response{Status: http.StatusOK, Body: ban}
}

func (d Deps) handleUnbanClient(ctx *Context) Response {
	ok := d.Core.Actions.UnbanClient(ctx.Params["id"], ctx.Auth.UserID)
	if !ok {
		return Response{Status: http.StatusNotFound, Body: map[string]string{"error": "not banned"}}
	}
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleBanIP(ctx *Context) Response {
	var body banRequestBody
	_ = json.Unmarshal(ctx.Body, &body)
	ban := d.Core.Actions.BanIP(ctx.Params["ip"], body.Reason, ctx.Auth.UserID)
	return Response{Status: http.StatusOK, Body: ban}
}

func (d Deps) handleUnbanIP(ctx *Context) Response {
	ok := d.Core.Actions.UnbanIP(ctx.Params["ip"], ctx.Auth.UserID)
	if !ok {
		return Response{Status: http.StatusNotFound, Body: map[string]string{"error": "not banned"}}
	}
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleBansClear(ctx *Context) Response {
	d.Core.Bans.Clear()
	d.Core.Audit.Log("clear_bans", ctx.Auth.UserID, nil)
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleAuditQuery(ctx *Context) Response {
	filter := admincore.AuditFilter{
		UserID: ctx.Query.Get("user"),
		Action: ctx.Query.Get("action"),
	}
	if v := ctx.Query.Get("start"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.Start = time.UnixMilli(ms)
		}
	}
	if v := ctx.Query.Get("end"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.End = time.UnixMilli(ms)
		}
	}
	if v := ctx.Query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	return Response{Status: http.StatusOK, Body: d.Core.Audit.Query(filter)}
}

func (d Deps) handleAuditClear(ctx *Context) Response {
	d.Core.Audit.Clear()
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

func (d Deps) handleConfigGet(ctx *Context) Response {
	var cfg map[string]any
	if d.NonSensitiveConfig != nil {
		cfg = d.NonSensitiveConfig()
	}
	return Response{Status: http.StatusOK, Body: cfg}
}

type rateLimitPatchBody struct {
	Enabled    *bool  `json:"enabled"`
	MaxTokens  *int64 `json:"maxTokens"`
	RefillRate *int64 `json:"refillRate"`
}

func (d Deps) handleConfigRateLimit(ctx *Context) Response {
	var body rateLimitPatchBody
	if err := json.Unmarshal(ctx.Body, &body); err != nil {
		return Response{Status: http.StatusBadRequest, Body: map[string]string{"error": "invalid body"}}
	}
	if body.MaxTokens != nil && body.RefillRate != nil {
		d.Core.Actions.UpdateRateLimits(*body.MaxTokens, *body.RefillRate, ctx.Auth.UserID)
	}
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

type featurePatchBody struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

func (d Deps) handleConfigFeatures(ctx *Context) Response {
	var body featurePatchBody
	if err := json.Unmarshal(ctx.Body, &body); err != nil {
		return Response{Status: http.StatusBadRequest, Body: map[string]string{"error": "invalid body"}}
	}
	if err := d.Core.Actions.ToggleFeature(body.Feature, body.Enabled, ctx.Auth.UserID); err != nil {
		return Response{Status: http.StatusBadRequest, Body: map[string]string{"error": err.Error()}}
	}
	return Response{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

type broadcastBody struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (d Deps) handleBroadcast(ctx *Context) Response {
	var body broadcastBody
	if err := json.Unmarshal(ctx.Body, &body); err != nil || strings.TrimSpace(body.Type) == "" {
		return Response{Status: http.StatusBadRequest, Body: map[string]string{"error": "invalid body"}}
	}
	frame, err := json.Marshal(map[string]any{"type": body.Type, "payload": body.Payload})
	if err != nil {
		return Response{Status: http.StatusInternalServerError, Body: map[string]string{"error": "encode failed"}}
	}
	count := d.Core.Actions.BroadcastMessage(frame, ctx.Auth.UserID)
	return Response{Status: http.StatusOK, Body: map[string]any{"success": true, "recipientCount": count}}
}
