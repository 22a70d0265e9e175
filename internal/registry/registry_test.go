package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/agent"
	"github.com/gatewise/gatewise/internal/identity"
	"github.com/gatewise/gatewise/internal/testutil"
)

// stubAgent signals on closed when released.
type stubAgent struct {
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newStubAgent() *stubAgent {
	return &stubAgent{closed: make(chan struct{})}
}

func (a *stubAgent) Invoke(_ context.Context, input string, _ []*ai.Message) (string, error) {
	return "echo: " + input, nil
}

func (a *stubAgent) Close(context.Context) error {
	a.closeOnce.Do(func() { close(a.closed) })
	return a.closeErr
}

func (a *stubAgent) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-a.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("agent was not closed")
	}
}

// stubFactory counts constructions and can fail or stall them.
type stubFactory struct {
	creations atomic.Int64
	createErr error
	delay     time.Duration

	mu     sync.Mutex
	agents []*stubAgent
}

func (f *stubFactory) Create(ctx context.Context, _ *identity.Token) (agent.Agent, error) {
	f.creations.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	a := newStubAgent()
	f.mu.Lock()
	f.agents = append(f.agents, a)
	f.mu.Unlock()
	return a, nil
}

func TestRegistry_ResolveOrCreate_ReusesSession(t *testing.T) {
	f := &stubFactory{}
	r := New(f, testutil.Logger())
	id := uuid.New()

	first, err := r.ResolveOrCreate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("first ResolveOrCreate() error: %v", err)
	}
	second, err := r.ResolveOrCreate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("second ResolveOrCreate() error: %v", err)
	}

	if first != second {
		t.Error("same id must resolve to the same session")
	}
	if got := f.creations.Load(); got != 1 {
		t.Errorf("factory ran %d times, want 1", got)
	}
}

func TestRegistry_ResolveOrCreate_ConcurrentSingleConstruction(t *testing.T) {
	f := &stubFactory{delay: 20 * time.Millisecond}
	r := New(f, testutil.Logger())
	id := uuid.New()

	const callers = 25
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.ResolveOrCreate(context.Background(), id, nil)
			if err != nil {
				t.Errorf("ResolveOrCreate() error: %v", err)
				return
			}
			sessions[i] = s
		}()
	}
	wg.Wait()

	if got := f.creations.Load(); got != 1 {
		t.Errorf("factory ran %d times, want 1", got)
	}
	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d got a different session", i)
		}
	}
}

func TestRegistry_ResolveOrCreate_FailureLeavesNoEntry(t *testing.T) {
	f := &stubFactory{createErr: errors.New("upstream unreachable")}
	r := New(f, testutil.Logger())
	id := uuid.New()

	if _, err := r.ResolveOrCreate(context.Background(), id, nil); err == nil {
		t.Fatal("expected construction error")
	}
	if r.Len() != 0 {
		t.Errorf("registry holds %d entries after failure, want 0", r.Len())
	}

	// A later request retries cleanly.
	f.createErr = nil
	if _, err := r.ResolveOrCreate(context.Background(), id, nil); err != nil {
		t.Fatalf("retry ResolveOrCreate() error: %v", err)
	}
	if got := f.creations.Load(); got != 2 {
		t.Errorf("factory ran %d times, want 2", got)
	}
}

func TestRegistry_Session(t *testing.T) {
	f := &stubFactory{}
	r := New(f, testutil.Logger())
	id := uuid.New()

	if _, err := r.Session(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Session() on empty registry = %v, want ErrNotFound", err)
	}

	created, err := r.ResolveOrCreate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error: %v", err)
	}

	got, err := r.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if got != created {
		t.Error("Session() returned a different session")
	}
	if got := f.creations.Load(); got != 1 {
		t.Errorf("Session() must not construct, factory ran %d times", got)
	}
}

func TestRegistry_Dispose(t *testing.T) {
	f := &stubFactory{}
	r := New(f, testutil.Logger())
	id := uuid.New()

	if _, err := r.ResolveOrCreate(context.Background(), id, nil); err != nil {
		t.Fatalf("ResolveOrCreate() error: %v", err)
	}

	if err := r.Dispose(id); err != nil {
		t.Fatalf("Dispose() error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("registry holds %d entries after dispose, want 0", r.Len())
	}
	f.agents[0].waitClosed(t)

	// Resolving again builds a fresh agent.
	if _, err := r.ResolveOrCreate(context.Background(), id, nil); err != nil {
		t.Fatalf("ResolveOrCreate() after dispose error: %v", err)
	}
	if got := f.creations.Load(); got != 2 {
		t.Errorf("factory ran %d times, want 2", got)
	}
}

func TestRegistry_Dispose_Absent(t *testing.T) {
	r := New(&stubFactory{}, testutil.Logger())

	if err := r.Dispose(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Dispose() = %v, want ErrNotFound", err)
	}
}

func TestRegistry_DisposeAll(t *testing.T) {
	f := &stubFactory{}
	r := New(f, testutil.Logger())

	for range 5 {
		if _, err := r.ResolveOrCreate(context.Background(), uuid.New(), nil); err != nil {
			t.Fatalf("ResolveOrCreate() error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.DisposeAll(ctx); err != nil {
		t.Fatalf("DisposeAll() error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("registry holds %d entries after DisposeAll, want 0", r.Len())
	}
	for i, a := range f.agents {
		select {
		case <-a.closed:
		default:
			t.Errorf("agent %d not closed", i)
		}
	}
}

func TestRegistry_DisposeAll_ReportsCloseFailure(t *testing.T) {
	f := &stubFactory{}
	r := New(f, testutil.Logger())
	id := uuid.New()

	if _, err := r.ResolveOrCreate(context.Background(), id, nil); err != nil {
		t.Fatalf("ResolveOrCreate() error: %v", err)
	}
	f.agents[0].closeErr = errors.New("remote hangup")

	if err := r.DisposeAll(context.Background()); err == nil {
		t.Error("DisposeAll() should surface close failures")
	}
	if r.Len() != 0 {
		t.Errorf("registry holds %d entries, want 0", r.Len())
	}
}
