package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// task is a unit of background synchronization. Mutations are delivered to the
// remote store even after their session is retired, fetches are not.
type task struct {
	op       string
	mutation bool
	run      func(ctx context.Context)
}

// session is the FIFO sync queue of a single identity. One worker goroutine
// executes its tasks in the order they were pushed.
type session struct {
	identity string
	ctx      context.Context
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	tasks   []task
	pending int           // queued + running
	idle    chan struct{} // closed while pending == 0
	retired bool

	wake chan struct{}
	done chan struct{}
}

func newSession(ctx context.Context, identity string, timeout time.Duration, logger *slog.Logger) *session {
	idle := make(chan struct{})
	close(idle)
	return &session{
		identity: identity,
		ctx:      ctx,
		timeout:  timeout,
		logger:   logger.With("identity", identity),
		idle:     idle,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// push queues a task. It reports false when the session no longer accepts work.
func (s *session) push(t task) bool {
	s.mu.Lock()
	if s.retired || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	s.signal()
	return true
}

// retire stops the session from accepting tasks and drops queued fetches.
// Queued mutations are still executed, then the worker exits.
func (s *session) retire() {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return
	}
	s.retired = true
	kept := s.tasks[:0]
	dropped := 0
	for _, t := range s.tasks {
		if t.mutation {
			kept = append(kept, t)
			continue
		}
		dropped++
	}
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = task{}
	}
	s.tasks = kept
	s.doneLocked(dropped)
	s.mu.Unlock()
	s.signal()
	if dropped > 0 {
		s.logger.Debug("Dropped queued fetches of retired cart session", "count", dropped)
	}
}

func (s *session) isRetired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

// wait blocks until no task is queued or running.
func (s *session) wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) run() {
	defer close(s.done)
	for {
		t, ok := s.next()
		if !ok {
			return
		}
		s.exec(t)
		s.mu.Lock()
		s.doneLocked(1)
		s.mu.Unlock()
	}
}

// next blocks until a task is available. It returns false when the worker should exit.
func (s *session) next() (task, bool) {
	for {
		s.mu.Lock()
		if s.ctx.Err() != nil {
			dropped := len(s.tasks)
			s.tasks = nil
			s.doneLocked(dropped)
			s.mu.Unlock()
			if dropped > 0 {
				s.logger.Warn("Cart sync cancelled, queued operations dropped", "count", dropped)
			}
			return task{}, false
		}
		if len(s.tasks) > 0 {
			t := s.tasks[0]
			s.tasks[0] = task{}
			s.tasks = s.tasks[1:]
			s.mu.Unlock()
			return t, true
		}
		if s.retired {
			s.mu.Unlock()
			return task{}, false
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.ctx.Done():
		}
	}
}

func (s *session) exec(t task) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	defer func() {
		if rvr := recover(); rvr != nil {
			s.logger.Error("Panic recovered in cart sync task", "op", t.op, "panic", rvr)
		}
	}()
	t.run(ctx)
}

func (s *session) doneLocked(n int) {
	if n <= 0 {
		return
	}
	s.pending -= n
	if s.pending == 0 {
		close(s.idle)
	}
}

func (s *session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
