// Package httpapi serves the shopping agent over HTTP.
//
// Routes:
//
//	POST   /v1/chat                          one turn, JSON reply
//	POST   /v1/chat/stream                   one turn as server-sent events
//	GET    /v1/chat/ws                       one turn per inbound JSON message
//	DELETE /v1/sessions/{tenant}/{session}   logout
//	GET    /v1/runs                          recent run summaries
//	GET    /v1/runs/{id}                     one run record
//	GET    /health, /metrics
//
// API routes share per-client rate limiting and an optional shared secret.
// Errors are rendered as {"error":{"code","message"}} with the status of their
// category.
package httpapi
