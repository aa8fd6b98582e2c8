package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrClosed is returned by Enqueue after Close
var ErrClosed = errors.New("command queue is closed")

// Task is one unit of lane work
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions tunes a single Enqueue call
type TaskOptions struct {
	// RequestID makes the call idempotent: a repeated id within the dedup TTL
	// returns the first successful result without running the task again.
	RequestID string
	// WarnAfter logs and calls OnWait when the task is still queued after this long.
	WarnAfter time.Duration
	OnWait    func(wait time.Duration, position int)
}

// Config holds queue configuration
type Config struct {
	Logger   zerolog.Logger
	DedupTTL time.Duration
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan taskResult

	mu        sync.Mutex
	cancelled bool
	started   bool
}

type taskResult struct {
	value interface{}
	err   error
}

type laneState struct {
	queue    []*taskRecord
	draining bool
}

// CommandQueue runs tasks FIFO per lane, one at a time. Lanes are created on
// demand and dropped once idle.
type CommandQueue struct {
	mu        sync.Mutex
	lanes     map[string]*laneState
	taskIDSeq int
	closed    bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	dedup  *dedupCache
	logger zerolog.Logger
}

// LaneForSession returns the lane that serializes turns of one session
func LaneForSession(sessionKey string) string {
	return "session-" + sessionKey
}

// New creates a new CommandQueue
func New(cfg Config) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandQueue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		dedup:  newDedupCache(ctx, cfg.DedupTTL),
		logger: cfg.Logger,
	}
}

// Enqueue adds task to lane and waits for its result. When ctx ends while the
// task is still queued the task is skipped and ctx.Err() returned.
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task, options *TaskOptions) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}

	if opts.RequestID != "" {
		if cached, ok := cq.dedup.Get(lane + "/" + opts.RequestID); ok {
			cq.logger.Debug().Str("lane", lane).Str("requestId", opts.RequestID).Msg("Duplicate request served from cache")
			return cached.value, cached.err
		}
	}

	ctx, span := tracing.StartSpan(ctx, "shopagent.commandqueue", "commandqueue.enqueue",
		attribute.String("lane", lane),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, cq.logger)

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil, ErrClosed
	}
	cq.taskIDSeq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", lane, cq.taskIDSeq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan taskResult, 1),
	}
	ls, ok := cq.lanes[lane]
	if !ok {
		ls = &laneState{}
		cq.lanes[lane] = ls
	}
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	startDrain := !ls.draining
	ls.draining = true
	if startDrain {
		cq.wg.Add(1)
	}
	cq.mu.Unlock()

	logger.Debug().Str("lane", lane).Str("taskId", record.id).Int("queueSize", queueSize).Msg("Task enqueued")
	observability.SetQueueSize(lane, queueSize)

	if startDrain {
		go cq.drain(lane)
	}
	if opts.WarnAfter > 0 {
		go cq.warnIfWaiting(lane, record)
	}

	select {
	case result := <-record.result:
		if result.err != nil {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		} else if opts.RequestID != "" {
			cq.dedup.Set(lane+"/"+opts.RequestID, result)
		}
		return result.value, result.err
	case <-ctx.Done():
		record.mu.Lock()
		if !record.started {
			record.cancelled = true
		}
		record.mu.Unlock()
		span.SetStatus(codes.Error, "caller cancelled")
		return nil, ctx.Err()
	}
}

// drain runs queued tasks of lane in order and removes the lane once empty
func (cq *CommandQueue) drain(lane string) {
	defer cq.wg.Done()

	for {
		cq.mu.Lock()
		ls := cq.lanes[lane]
		if len(ls.queue) == 0 {
			delete(cq.lanes, lane)
			cq.mu.Unlock()
			observability.DeleteQueue(lane)
			return
		}
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		queueSize := len(ls.queue)
		cq.mu.Unlock()

		observability.SetQueueSize(lane, queueSize)
		cq.execute(lane, record)
	}
}

func (cq *CommandQueue) execute(lane string, record *taskRecord) {
	record.mu.Lock()
	if record.cancelled {
		record.mu.Unlock()
		return
	}
	record.started = true
	record.mu.Unlock()

	if cq.ctx.Err() != nil {
		record.result <- taskResult{err: ErrClosed}
		return
	}

	observability.RecordLaneWait(time.Since(record.enqueuedAt))

	taskCtx, span := tracing.StartSpan(record.ctx, "shopagent.commandqueue", "commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(taskCtx, cq.logger)

	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	start := time.Now()
	value, err := cq.run(runCtx, record.task)
	duration := time.Since(start)

	record.result <- taskResult{value: value, err: err}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Err(err).Msg("Task failed")
		return
	}
	logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Msg("Task completed")
}

// run executes task, turning a panic into an error so the lane keeps draining
func (cq *CommandQueue) run(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) warnIfWaiting(lane string, record *taskRecord) {
	timer := time.NewTimer(record.options.WarnAfter)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-cq.ctx.Done():
		return
	case <-record.ctx.Done():
		return
	}

	cq.mu.Lock()
	position := -1
	if ls, ok := cq.lanes[lane]; ok {
		for i, r := range ls.queue {
			if r == record {
				position = i
				break
			}
		}
	}
	cq.mu.Unlock()

	if position < 0 {
		return
	}
	wait := time.Since(record.enqueuedAt)
	cq.logger.Warn().Str("lane", lane).Str("taskId", record.id).Dur("wait", wait).Int("queuePos", position).
		Msg("Task waiting longer than expected")
	if record.options.OnWait != nil {
		record.options.OnWait(wait, position)
	}
}

// QueueSize returns the number of tasks waiting in lane, excluding the running one
func (cq *CommandQueue) QueueSize(lane string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if ls, ok := cq.lanes[lane]; ok {
		return len(ls.queue)
	}
	return 0
}

// Lanes returns the number of lanes with queued or running work
func (cq *CommandQueue) Lanes() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes)
}

// Close cancels running tasks, rejects queued and new ones, and waits for the
// lanes to drain.
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	cq.closed = true
	cq.mu.Unlock()

	cq.cancel()
	cq.wg.Wait()
	cq.dedup.Stop()
	return nil
}
