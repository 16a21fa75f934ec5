// Package api implements the HTTP diagnostics API and WebSocket feed for
// Gray Logic Stage.
//
// This package provides:
//   - Read-only views of the registry, prop index, mapping table and units
//   - Resolution explanations for a name (which strategy hit, what was searched)
//   - Recent and persisted resolution misses
//   - Event injection for rehearsal and testing, JWT protected when a secret is set
//   - A WebSocket hub broadcasting node.updated, unit.updated and miss.recorded
//
// # Architecture
//
// The API never touches the engine directly. Reads of node state and event
// injection go through the playback dispatcher so they are ordered with the
// timeline stream:
//
//	HTTP ──▶ Playback.Do / Apply* ──▶ stage.Engine
//	Telemetry ──▶ Hub.Broadcast ──▶ WebSocket clients
//
// # Security
//
// When security.jwt.secret is empty the API is open, which is only acceptable
// on an isolated show network. When set, event injection and the WebSocket
// require an HS256 bearer token (header, or access_token query parameter for
// browsers that cannot set WebSocket headers).
package api
