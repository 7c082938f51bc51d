package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrDispatcherStopped is returned by Submit after Stop.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
	// ErrQueueFull is returned by Submit when a user already has too many
	// messages waiting.
	ErrQueueFull = errors.New("user queue full")
)

// DefaultMaxPending bounds the messages waiting per user.
const DefaultMaxPending = 256

type inboundTask struct {
	traceID string
	msg     InboundMessage
}

// userQueue holds the pending messages of one user. Its drain goroutine
// exists only while the queue is non-empty.
type userQueue struct {
	tasks []inboundTask
}

// Dispatcher hands inbound messages to a handler. Every user key gets its own
// queue and drain goroutine, so one user's messages are processed strictly in
// arrival order while a slow message never delays another user.
type Dispatcher struct {
	logger     *slog.Logger
	handler    InboundHandler
	maxPending int

	mu      sync.Mutex
	queues  map[string]*userQueue
	runCtx  context.Context
	stopped bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher allowing maxPending waiting messages per
// user.
func NewDispatcher(log *slog.Logger, maxPending int, handler InboundHandler) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Dispatcher{
		logger:     log.With(slog.String("component", "dispatcher")),
		handler:    handler,
		maxPending: maxPending,
		queues:     map[string]*userQueue{},
	}
}

// Start enables processing and drains anything submitted before it.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	// Pipelines must not be cut short by the caller's lifecycle context.
	d.runCtx = context.WithoutCancel(ctx)
	for key, q := range d.queues {
		d.spawn(key, q)
	}
	d.logger.Info("dispatcher start", slog.Int("pending_users", len(d.queues)))
}

// Submit queues msg behind the user's earlier messages. It never waits on
// another user's work.
func (d *Dispatcher) Submit(ctx context.Context, msg InboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	task := inboundTask{traceID: uuid.NewString(), msg: msg}
	key := msg.UserKey()
	if q, ok := d.queues[key]; ok {
		if len(q.tasks) >= d.maxPending {
			return fmt.Errorf("%w: %s", ErrQueueFull, key)
		}
		q.tasks = append(q.tasks, task)
		return nil
	}
	q := &userQueue{tasks: []inboundTask{task}}
	d.queues[key] = q
	if d.started {
		d.spawn(key, q)
	}
	return nil
}

// Stop refuses new messages and waits for queued ones to drain or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("dispatcher stop")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many users currently have queued or running messages.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// spawn must be called with d.mu held.
func (d *Dispatcher) spawn(key string, q *userQueue) {
	d.wg.Add(1)
	go d.drain(key, q)
}

func (d *Dispatcher) drain(key string, q *userQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.tasks) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = inboundTask{}
		q.tasks = q.tasks[1:]
		ctx := d.runCtx
		d.mu.Unlock()

		if d.handler == nil {
			continue
		}
		if err := d.handler(ctx, task.msg); err != nil {
			d.logger.Error("handle inbound failed",
				slog.String("user", key),
				slog.String("trace_id", task.traceID),
				slog.String("channel", task.msg.Channel.String()),
				slog.String("message_id", task.msg.ID),
				slog.String("kind", string(task.msg.Kind())),
				slog.Any("error", err),
			)
		}
	}
}
