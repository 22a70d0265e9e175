package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gatewise/gatewise/internal/agent"
	"github.com/gatewise/gatewise/internal/identity"
)

const (
	// disposeTimeout bounds one async agent close.
	disposeTimeout = 10 * time.Second

	// maxConcurrentDisposals caps parallelism during DisposeAll.
	maxConcurrentDisposals = 8
)

// Factory builds agents for new sessions.
type Factory interface {
	Create(ctx context.Context, token *identity.Token) (agent.Agent, error)
}

// entry tracks one session slot. Construction runs inside once, outside the
// registry lock; ready closes when construction settled either way.
type entry struct {
	once  sync.Once
	ready chan struct{}
	sess  *Session
	err   error
}

// Registry maps session identifiers to live sessions.
//
// Invariant: at most one agent is ever constructed per identifier, no matter
// how many goroutines race on ResolveOrCreate. A failed or cancelled
// construction leaves no entry behind, so the next caller retries cleanly.
type Registry struct {
	factory Factory
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// New creates an empty Registry.
func New(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		logger:  logger,
		entries: make(map[uuid.UUID]*entry),
	}
}

// ResolveOrCreate returns the live session for id, constructing it via the
// factory when absent. Concurrent callers for the same id share one
// construction; losers block until it settles. token only matters to the
// caller that triggers construction.
func (r *Registry) ResolveOrCreate(ctx context.Context, id uuid.UUID, token *identity.Token) (*Session, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[id] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		defer close(e.ready)
		ag, err := r.factory.Create(ctx, token)
		if err != nil {
			e.err = fmt.Errorf("creating session agent: %w", err)
			return
		}
		e.sess = newSession(id, token, ag)
		r.logger.Info("session created", "session_id", id, "authenticated", token != nil)
	})

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil {
		// Remove the failed slot so a later request can retry.
		// The identity check guards against deleting a replacement entry.
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.sess, nil
}

// Session returns the live session for id without creating one.
// Waits for an in-flight construction to settle; returns ErrNotFound when no
// slot exists or construction failed.
func (r *Registry) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil || e.sess == nil {
		return nil, ErrNotFound
	}
	return e.sess, nil
}

// Dispose removes the session for id and releases its agent in the
// background. Callers never block on the remote close; release failures are
// logged, not returned. Returns ErrNotFound when id has no live session.
func (r *Registry) Dispose(id uuid.UUID) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	go func() {
		<-e.ready
		if e.sess == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()
		if err := e.sess.agent.Close(ctx); err != nil {
			r.logger.Warn("closing session agent", "session_id", id, "error", err)
		} else {
			r.logger.Info("session disposed", "session_id", id)
		}
	}()
	return nil
}

// DisposeAll removes every session and closes their agents concurrently.
// Intended for shutdown; the wait is bounded by ctx. Close failures are
// logged and the first one is returned for visibility.
func (r *Registry) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	entries := make(map[uuid.UUID]*entry, len(r.entries))
	for id, e := range r.entries {
		entries[id] = e
	}
	r.entries = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDisposals)
	for id, e := range entries {
		g.Go(func() error {
			select {
			case <-e.ready:
			case <-ctx.Done():
				return ctx.Err()
			}
			if e.sess == nil {
				return nil
			}
			if err := e.sess.agent.Close(ctx); err != nil {
				r.logger.Warn("closing session agent", "session_id", id, "error", err)
				return fmt.Errorf("closing session %s: %w", id, err)
			}
			return nil
		})
	}

	err := g.Wait()
	r.logger.Info("all sessions disposed", "count", len(entries))
	return err
}

// Len reports the number of live or in-flight sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
