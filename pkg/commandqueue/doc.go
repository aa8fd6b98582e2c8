// Package commandqueue serializes work per lane. The agent runs every turn of a
// session in that session's lane, so two turns never read-modify-write the same
// session state concurrently.
//
// Invariants:
// - Tasks in the same lane execute one at a time in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - A task whose caller gave up while it was queued never runs.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.Config{Logger: logger})
//	defer queue.Close()
//	result, err := queue.Enqueue(ctx, commandqueue.LaneForSession("acme:abc"), func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	}, nil)
package commandqueue
