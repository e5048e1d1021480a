package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
	if cb.config.FailureRateThreshold != 50 {
		t.Errorf("FailureRateThreshold = %v, want 50", cb.config.FailureRateThreshold)
	}
	if cb.config.SlidingWindowSize != 100 {
		t.Errorf("SlidingWindowSize = %d, want 100", cb.config.SlidingWindowSize)
	}
	if cb.config.WaitDurationInOpenState != 10*time.Second {
		t.Errorf("WaitDurationInOpenState = %v, want 10s", cb.config.WaitDurationInOpenState)
	}
	if cb.config.PermittedCallsInHalfOpenState != 10 {
		t.Errorf("PermittedCallsInHalfOpenState = %d, want 10", cb.config.PermittedCallsInHalfOpenState)
	}
}

func TestCircuitBreaker_OpensOnlyWhenWindowFull(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{SlidingWindowSize: 4, FailureRateThreshold: 50})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() error = %v, want errBoom", err)
		}
		if cb.State() != StateClosed {
			t.Fatalf("after %d failures state = %v, want closed", i+1, cb.State())
		}
	}
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() on open circuit error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_FailureRateBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{SlidingWindowSize: 4, FailureRateThreshold: 75})
	ctx := context.Background()

	ops := []func(context.Context) error{fail, succeed, fail, succeed, fail, succeed}
	for _, op := range ops {
		_ = cb.Execute(ctx, op)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed at 50%% failures", cb.State())
	}
	m := cb.Metrics()
	if m.Calls != 4 || m.Failures != 2 {
		t.Errorf("Metrics() = %+v, want 4 calls and 2 failures", m)
	}
}

func TestCircuitBreaker_HalfOpenTransitions(t *testing.T) {
	tests := []struct {
		name   string
		trials []func(context.Context) error
		want   State
	}{
		{"trials succeed", []func(context.Context) error{succeed, succeed}, StateClosed},
		{"trials fail", []func(context.Context) error{fail, fail}, StateOpen},
		{"half failing", []func(context.Context) error{succeed, fail}, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				SlidingWindowSize:             2,
				PermittedCallsInHalfOpenState: 2,
				WaitDurationInOpenState:       time.Second,
				Now:                           clock.Now,
			})
			ctx := context.Background()
			_ = cb.Execute(ctx, fail)
			_ = cb.Execute(ctx, fail)
			if cb.State() != StateOpen {
				t.Fatalf("state = %v, want open", cb.State())
			}

			clock.Advance(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open", cb.State())
			}
			for _, trial := range tt.trials {
				_ = cb.Execute(ctx, trial)
			}
			if got := cb.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenRejectsExtraTrials(t *testing.T) {
	clock := newTestClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		SlidingWindowSize:             1,
		PermittedCallsInHalfOpenState: 1,
		WaitDurationInOpenState:       time.Second,
		Now:                           clock.Now,
	})
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial error = %v, want ErrCircuitOpen", err)
	}
	close(release)
}

func TestCircuitBreaker_IsFailureAndStateChange(t *testing.T) {
	var transitions []string
	ignored := errors.New("ignored")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		SlidingWindowSize: 1,
		IsFailure:         func(err error) bool { return err != nil && !errors.Is(err, ignored) },
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return ignored })
	if cb.State() != StateClosed {
		t.Fatalf("ignored error opened the circuit")
	}
	_ = cb.Execute(ctx, fail)
	cb.Reset()

	want := []string{"closed->open", "open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
