package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Outcome is what a processor settles a job with. Exactly one of Result and
// ErrorInfo is meaningful: an empty ErrorInfo means success.
type Outcome[R any] struct {
	Result    *R
	ErrorInfo string
}

// Processor runs the actual work for a job. Process must honor ctx
// cancellation; the returned error is folded into the entity's ErrorInfo.
type Processor[I, R any] interface {
	Process(ctx context.Context, id string, input I) (Outcome[R], error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc[I, R any] func(ctx context.Context, id string, input I) (Outcome[R], error)

func (f ProcessorFunc[I, R]) Process(ctx context.Context, id string, input I) (Outcome[R], error) {
	return f(ctx, id, input)
}

// ControllerConfig bounds the work a controller dispatches.
type ControllerConfig struct {
	// MaxInFlight caps concurrently processing jobs. Defaults to 8.
	MaxInFlight int64
	// Timeout bounds a single job's processing. Defaults to 120s.
	Timeout time.Duration
}

// Controller drives entities through their lifecycle: it creates them
// pending, moves them to processing, dispatches the processor under a
// concurrency cap and per-job timeout, and settles the terminal state.
// Deleting an in-flight job cancels its processor; a settlement arriving
// after deletion is dropped.
type Controller[I, R any] struct {
	store     *Store[I, R]
	processor Processor[I, R]
	logger    *slog.Logger
	sem       *semaphore.Weighted
	timeout   time.Duration

	// OnTransition, when set, is called after every status change the
	// controller makes. Callbacks run on the worker goroutine.
	OnTransition func(ent Entity[I, R])

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	base    context.Context
	stop    context.CancelFunc
}

// NewController wires a store to a processor. The controller owns the
// processing lifecycle; callers mutate jobs only through it.
func NewController[I, R any](store *Store[I, R], processor Processor[I, R], logger *slog.Logger, cfg ControllerConfig) *Controller[I, R] {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	base, stop := context.WithCancel(context.Background())
	return &Controller[I, R]{
		store:     store,
		processor: processor,
		logger:    logger,
		sem:       semaphore.NewWeighted(cfg.MaxInFlight),
		timeout:   cfg.Timeout,
		cancels:   make(map[string]context.CancelFunc),
		base:      base,
		stop:      stop,
	}
}

// Submit creates a new job and dispatches it. The returned entity is already
// in the processing state.
func (c *Controller[I, R]) Submit(input I) (Entity[I, R], error) {
	ent, err := c.store.Create(input)
	if err != nil {
		return Entity[I, R]{}, err
	}
	return c.dispatch(ent.ID)
}

// Retry re-runs a job that previously failed. Jobs in any other state are
// rejected.
func (c *Controller[I, R]) Retry(id string) (Entity[I, R], error) {
	ent, err := c.store.Reopen(id)
	if err != nil {
		return Entity[I, R]{}, err
	}
	c.emit(ent)
	c.launch(ent)
	return ent, nil
}

// Delete removes a job, cancelling its processor if it is still running.
func (c *Controller[I, R]) Delete(id string) error {
	c.mu.Lock()
	if cancel, ok := c.cancels[id]; ok {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()
	return c.store.Remove(id)
}

// Shutdown cancels all in-flight jobs and waits for their workers to drain.
func (c *Controller[I, R]) Shutdown() {
	c.stop()
	c.wg.Wait()
}

func (c *Controller[I, R]) dispatch(id string) (Entity[I, R], error) {
	ent, err := c.store.Update(id, Patch[R]{Status: statusPtr(StatusProcessing)})
	if err != nil {
		return Entity[I, R]{}, err
	}
	c.emit(ent)
	c.launch(ent)
	return ent, nil
}

func (c *Controller[I, R]) launch(ent Entity[I, R]) {
	ctx, cancel := context.WithCancel(c.base)

	c.mu.Lock()
	c.cancels[ent.ID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.cancels, ent.ID)
			c.mu.Unlock()
			cancel()
		}()

		if err := c.sem.Acquire(ctx, 1); err != nil {
			// Cancelled while queued; the job was deleted or we are
			// shutting down.
			return
		}
		defer c.sem.Release(1)

		runCtx, done := context.WithTimeout(ctx, c.timeout)
		defer done()

		outcome, err := c.processor.Process(runCtx, ent.ID, ent.Input)
		c.settle(ent.ID, runCtx, outcome, err)
	}()
}

func (c *Controller[I, R]) settle(id string, runCtx context.Context, outcome Outcome[R], err error) {
	patch := Patch[R]{}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		patch.Status = statusPtr(StatusError)
		patch.ErrorInfo = strPtr(TimeoutReason)
	case err != nil:
		patch.Status = statusPtr(StatusError)
		patch.ErrorInfo = strPtr(err.Error())
	case outcome.ErrorInfo != "":
		patch.Status = statusPtr(StatusError)
		patch.ErrorInfo = strPtr(outcome.ErrorInfo)
	default:
		patch.Status = statusPtr(StatusCompleted)
		patch.Result = outcome.Result
	}

	updated, uerr := c.store.Update(id, patch)
	if uerr != nil {
		// Job deleted while processing: drop the settlement.
		if errors.Is(uerr, ErrNotFound) {
			return
		}
		c.logger.Error("failed to settle job", "job_id", id, "error", uerr)
		return
	}
	c.emit(updated)
}

func (c *Controller[I, R]) emit(ent Entity[I, R]) {
	if c.OnTransition != nil {
		c.OnTransition(ent)
	}
}

func statusPtr(s Status) *Status { return &s }
func strPtr(s string) *string    { return &s }
