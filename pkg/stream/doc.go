// Package stream turns a chat turn's progress into an ordered event sequence:
// status copy, tool start/end pairs, text deltas and exactly one terminal final
// or error event, delivered over SSE or WebSocket.
package stream
