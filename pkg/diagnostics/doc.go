// Package diagnostics records what happened during each chat turn (tool and
// model traces, outcome) in a bounded, expiring in-memory store.
package diagnostics
