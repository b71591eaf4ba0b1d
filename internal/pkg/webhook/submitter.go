package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Submitter runs a sync task either before or after the HTTP response.
type Submitter interface {
	Submit(task func(ctx context.Context))
}

// InlineSubmitter runs tasks synchronously on the caller's goroutine.
type InlineSubmitter struct {
	Timeout time.Duration
}

func (s InlineSubmitter) Submit(task func(ctx context.Context)) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	task(ctx)
}

// pendingPerWorker bounds how many tasks may wait for a slot per worker.
const pendingPerWorker = 32

// DetachedSubmitter runs tasks on background goroutines, at most workers at a
// time. Each task gets its own context bounded by timeout, independent of the
// request that submitted it.
type DetachedSubmitter struct {
	slots      chan struct{}
	timeout    time.Duration
	maxPending int
	wg         sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending int
}

func NewDetachedSubmitter(workers int, timeout time.Duration) *DetachedSubmitter {
	if workers <= 0 {
		workers = 1
	}
	return &DetachedSubmitter{
		slots:      make(chan struct{}, workers),
		timeout:    timeout,
		maxPending: workers * pendingPerWorker,
	}
}

// Submit returns immediately while the backlog has room. When it is full, or
// after Close, the task runs inline on the caller, which slows the sender
// down instead of piling up goroutines.
func (s *DetachedSubmitter) Submit(task func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Warn("[Webhook] submitter closed, running sync inline")
		InlineSubmitter{Timeout: s.timeout}.Submit(task)
		return
	}
	if s.pending >= s.maxPending {
		s.mu.Unlock()
		log.Warnf("[Webhook] %d syncs pending, running sync inline", s.maxPending)
		InlineSubmitter{Timeout: s.timeout}.Submit(task)
		return
	}
	s.pending++
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
			s.wg.Done()
		}()
		s.slots <- struct{}{}
		defer func() { <-s.slots }()

		InlineSubmitter{Timeout: s.timeout}.Submit(task)
	}()
}

// Wait blocks until all submitted tasks have finished.
func (s *DetachedSubmitter) Wait() {
	s.wg.Wait()
}

// Close stops accepting background work and waits for running tasks, up to
// ctx's deadline.
func (s *DetachedSubmitter) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
