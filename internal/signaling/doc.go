// Package signaling contains the HTTP signaling surface for creating and
// managing WebRTC relay sessions.
//
// The SDP/ICE exchange is intentionally minimal while the relay service
// continues to evolve.
package signaling
