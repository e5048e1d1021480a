package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRetry_Defaults(t *testing.T) {
	c := NewRetry(RetryConfig{}).Config()

	if c.MaxAttempts != 3 || c.WaitDuration != 500*time.Millisecond || c.BackoffMultiplier != 1 || c.MaxWait != 30*time.Second {
		t.Errorf("defaults = %+v", c)
	}
	if c.RetryIf == nil || c.RetryIf(nil) || !c.RetryIf(errBoom) {
		t.Error("default RetryIf should accept exactly non-nil errors")
	}
}

func TestRetry_Execute(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		failures    int
		wantCalls   int
		wantErr     error
		wantMaxErr  bool
	}{
		{"first attempt succeeds", 3, 0, 1, nil, false},
		{"succeeds on last attempt", 3, 2, 3, nil, false},
		{"attempts exhausted", 3, 5, 3, errBoom, true},
		{"single attempt keeps cause", 1, 5, 1, errBoom, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{MaxAttempts: tt.maxAttempts, WaitDuration: time.Millisecond})
			calls := 0
			err := r.Execute(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errBoom
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if got := errors.Is(err, ErrMaxRetriesExceeded); got != tt.wantMaxErr {
				t.Errorf("errors.Is(err, ErrMaxRetriesExceeded) = %v, want %v", got, tt.wantMaxErr)
			}
		})
	}
}

func TestRetry_RetryIfStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	r := NewRetry(RetryConfig{
		MaxAttempts:  5,
		WaitDuration: time.Millisecond,
		RetryIf:      func(err error) bool { return !errors.Is(err, permanent) },
	})

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, permanent) || errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Execute() error = %v, want the permanent error unwrapped", err)
	}
}

func TestRetry_ContextDoneDuringWait(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, WaitDuration: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := r.Execute(ctx, fail); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want DeadlineExceeded", err)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var waits []time.Duration
	r := NewRetry(RetryConfig{
		MaxAttempts:       3,
		WaitDuration:      time.Millisecond,
		BackoffMultiplier: 2,
		OnRetry: func(_ int, _ error, wait time.Duration) {
			waits = append(waits, wait)
		},
	})
	_ = r.Execute(context.Background(), fail)

	if len(waits) != 2 || waits[0] != time.Millisecond || waits[1] != 2*time.Millisecond {
		t.Errorf("waits = %v, want [1ms 2ms]", waits)
	}
}

func TestRetry_Wait(t *testing.T) {
	tests := []struct {
		name       string
		multiplier float64
		attempt    int
		want       time.Duration
	}{
		{"constant", 1, 3, 100 * time.Millisecond},
		{"below one is constant", 0.5, 3, 100 * time.Millisecond},
		{"exponential", 2, 3, 400 * time.Millisecond},
		{"fractional", 1.5, 2, 150 * time.Millisecond},
		{"capped", 2, 10, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{
				WaitDuration:      100 * time.Millisecond,
				BackoffMultiplier: tt.multiplier,
				MaxWait:           time.Second,
			})
			if got := r.wait(tt.attempt); got != tt.want {
				t.Errorf("wait(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
