// Package blocking runs expensive commands off the command loop.
//
// An Engine owns one loop goroutine. Everything that produces a reply or
// changes a Handle's state runs there: Submit, completion and timeout.
// Workers only compute; they hand their Result back by posting an event.
//
//	Dispatched -> Running -> Completed
//	                      -> TimedOut   (late result is released, never replied)
//	           -> SpawnFailed
package blocking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/serious-company/rd-themis/internal/misc"
)

var (
	// ErrSpawnFailed is returned by Submit when no worker could be started.
	ErrSpawnFailed = errors.New("can't start worker")

	// ErrClosed is returned when the engine no longer accepts events.
	ErrClosed = errors.New("engine closed")

	// ErrPanicked wraps a panic recovered from an operation.
	ErrPanicked = errors.New("operation panicked")
)

// State of a submitted request.
type State int32

const (
	StateDispatched State = iota
	StateRunning
	StateCompleted
	StateTimedOut
	StateSpawnFailed
)

func (s State) String() string {
	switch s {
	case StateDispatched:
		return "dispatched"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateSpawnFailed:
		return "spawn_failed"
	default:
		return "unknown"
	}
}

// Op is the work performed on a worker goroutine.
type Op func(ctx context.Context, in *Inputs) Result

// Callbacks run on the loop. At most one of them is invoked per request.
// OnComplete must not retain the result or its payload.
type Callbacks struct {
	OnComplete func(res *Result)
	OnTimeout  func()
}

// Config for an Engine.
type Config struct {
	// Timeout after which OnTimeout fires. Defaults to 2000ms.
	Timeout time.Duration
	// MaxWorkers bounds concurrent workers; 0 means unbounded.
	MaxWorkers int
	Logger     zerolog.Logger
}

// Handle tracks one submitted request.
type Handle struct {
	ID    uuid.UUID
	state atomic.Int32
	timer *time.Timer
	cb    Callbacks
	done  chan struct{}
}

// State reports the current state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed once the worker's result has been delivered or released.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) setState(s State) {
	h.state.Store(int32(s))
}

type Engine struct {
	timeout time.Duration
	sem     *semaphore.Weighted
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events    chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// New starts an engine and its loop goroutine.
func New(cfg Config) (*Engine, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative: %s", cfg.Timeout)
	}
	if cfg.MaxWorkers < 0 {
		return nil, fmt.Errorf("max workers must not be negative: %d", cfg.MaxWorkers)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = misc.DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("component", "blocking").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan func()),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if cfg.MaxWorkers > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.MaxWorkers))
	}

	go e.run()
	return e, nil
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.done:
			return
		case fn := <-e.events:
			fn()
		}
	}
}

// Post schedules fn on the loop. A nil error means fn has been taken by
// the loop and will run there. Post must not be called from the loop itself.
func (e *Engine) Post(fn func()) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	select {
	case <-e.done:
		return ErrClosed
	case e.events <- fn:
		return nil
	}
}

// Stopped is closed when the loop has exited.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}

// Submit starts op on a worker. It must be called on the loop. Ownership of
// in passes to the engine whether or not Submit succeeds.
func (e *Engine) Submit(op Op, in *Inputs, cb Callbacks) (*Handle, error) {
	h := &Handle{
		ID:   uuid.New(),
		cb:   cb,
		done: make(chan struct{}),
	}
	h.setState(StateDispatched)

	if err := e.acquire(); err != nil {
		in.Release()
		h.setState(StateSpawnFailed)
		close(h.done)
		e.log.Warn().Err(err).Str("request_id", h.ID.String()).Msg("worker not started")
		return nil, err
	}

	h.setState(StateRunning)
	h.timer = time.AfterFunc(e.timeout, func() {
		_ = e.Post(func() { e.expire(h) })
	})

	e.workers.Add(1)
	go e.work(op, in, h)

	return h, nil
}

func (e *Engine) acquire() error {
	select {
	case <-e.done:
		return fmt.Errorf("%w: %w", ErrSpawnFailed, ErrClosed)
	default:
	}
	if e.sem != nil && !e.sem.TryAcquire(1) {
		return fmt.Errorf("%w: worker limit reached", ErrSpawnFailed)
	}
	return nil
}

func (e *Engine) work(op Op, in *Inputs, h *Handle) {
	defer e.workers.Done()
	if e.sem != nil {
		defer e.sem.Release(1)
	}

	res := invoke(e.ctx, op, in)

	if err := e.Post(func() { e.complete(h, res) }); err != nil {
		h.timer.Stop()
		res.Release()
		close(h.done)
		e.log.Debug().Str("request_id", h.ID.String()).Msg("result released after engine close")
	}
}

func invoke(ctx context.Context, op Op, in *Inputs) (res *Result) {
	defer in.Release()
	defer func() {
		if r := recover(); r != nil {
			res = &Result{Status: StatusFailed, Err: fmt.Errorf("%w: %v", ErrPanicked, r)}
		}
	}()

	r := op(ctx, in)
	return &r
}

func (e *Engine) complete(h *Handle, res *Result) {
	defer close(h.done)
	defer res.Release()

	if h.State() == StateTimedOut {
		e.log.Debug().
			Str("request_id", h.ID.String()).
			Stringer("status", res.Status).
			Msg("late result discarded")
		return
	}

	h.timer.Stop()
	h.setState(StateCompleted)
	if h.cb.OnComplete != nil {
		h.cb.OnComplete(res)
	}
}

func (e *Engine) expire(h *Handle) {
	if h.State() != StateRunning {
		return
	}
	h.setState(StateTimedOut)
	e.log.Warn().
		Str("request_id", h.ID.String()).
		Dur("timeout", e.timeout).
		Msg("request timed out")
	if h.cb.OnTimeout != nil {
		h.cb.OnTimeout()
	}
}

// Close stops the loop. Workers still running finish on their own and
// release their results without replying. Close is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.cancel()
	})
	<-e.stopped
	return nil
}

// Wait blocks until every started worker has returned.
func (e *Engine) Wait() {
	e.workers.Wait()
}
