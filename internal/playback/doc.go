// Package playback feeds timeline events to the stage engine.
//
// The engine is single-threaded. The Dispatcher owns the only goroutine that
// touches it: MQTT messages, HTTP event injection and diagnostic reads are
// all queued and run in delivery order.
//
//	MQTT / HTTP ──▶ Dispatcher queue ──▶ stage.Engine
//	                                        │
//	                       Telemetry outbox ◀┘──▶ MQTT state, WebSocket, InfluxDB
//
// Telemetry publishes on its own goroutine so a slow broker never stalls a
// frame. Outbound messages are dropped, and counted, when its buffer fills.
package playback
