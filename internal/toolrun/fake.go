package toolrun

import (
	"context"
	"sync"
)

// FakeRunner is a scripted Runner for tests. Implemented here (rather
// than in test files) so CLI and engine tests can share it.
type FakeRunner struct {
	// OnInvoke handles each invocation. Nil means every invocation
	// succeeds with exit code 0 and empty output.
	OnInvoke func(ctx context.Context, inv Invocation) (Result, error)

	mu      sync.Mutex
	invoked []Invocation
}

// Invoke records the invocation and delegates to OnInvoke.
func (f *FakeRunner) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	f.mu.Lock()
	f.invoked = append(f.invoked, inv)
	f.mu.Unlock()

	if f.OnInvoke == nil {
		return Result{}, nil
	}
	return f.OnInvoke(ctx, inv)
}

// Invocations returns a copy of every recorded invocation, in call
// order.
func (f *FakeRunner) Invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Invocation, len(f.invoked))
	copy(out, f.invoked)
	return out
}
