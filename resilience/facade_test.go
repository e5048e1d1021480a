package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/cloudsdk/cache"
)

func TestResolveStrategy(t *testing.T) {
	a, b := NewStrategy(), NewStrategy()

	tests := []struct {
		name       string
		candidates []DecorationStrategy
		want       DecorationStrategy
		wantErr    error
	}{
		{"none uses default", nil, nil, nil},
		{"nil ignored", []DecorationStrategy{nil}, nil, nil},
		{"single", []DecorationStrategy{a}, a, nil},
		{"ambiguous", []DecorationStrategy{a, b}, nil, ErrAmbiguousStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveStrategy(nil, tt.candidates...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveStrategy() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.want != nil && got != tt.want {
				t.Errorf("ResolveStrategy() = %p, want %p", got, tt.want)
			}
			if got == nil {
				t.Error("ResolveStrategy() returned nil strategy")
			}
		})
	}

	if _, err := NewResilience(nil, a, b); !errors.Is(err, ErrAmbiguousStrategy) {
		t.Errorf("NewResilience() error = %v, want ErrAmbiguousStrategy", err)
	}
}

type order struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

func TestExecute_Typed(t *testing.T) {
	r, err := NewResilience(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := EmptyConfiguration("typed").WithCache(cache.ExpireAfterCreation, time.Hour)

	var calls atomic.Int32
	work := func(context.Context) (order, error) {
		calls.Add(1)
		return order{ID: "o1", Qty: 2}, nil
	}
	for i := 0; i < 2; i++ {
		got, err := Execute(context.Background(), r, cfg, work, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != (order{ID: "o1", Qty: 2}) {
			t.Errorf("Execute() = %+v", got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecute_TypedFallback(t *testing.T) {
	r, _ := NewResilience(nil)
	got, err := Execute(context.Background(), r, EmptyConfiguration("fb"),
		func(context.Context) (int, error) { return 0, errBoom },
		func(context.Context, error) (int, error) { return -1, nil },
	)
	if err != nil || got != -1 {
		t.Errorf("Execute() = %d, %v; want -1", got, err)
	}
}

func TestConvertResult(t *testing.T) {
	if got, err := convertResult[order]("c", json.RawMessage(`{"id":"x","qty":3}`)); err != nil || got.Qty != 3 {
		t.Errorf("convertResult(raw) = %+v, %v", got, err)
	}
	if got, err := convertResult[int]("c", nil); err != nil || got != 0 {
		t.Errorf("convertResult(nil) = %v, %v", got, err)
	}
	if _, err := convertResult[int]("c", "str"); !errors.Is(err, ErrUnexpectedResult) {
		t.Errorf("convertResult(string as int) error = %v, want ErrUnexpectedResult", err)
	}
	if _, err := convertResult[int]("c", json.RawMessage(`"x"`)); !errors.Is(err, ErrUnexpectedResult) {
		t.Errorf("convertResult(bad raw) error = %v, want ErrUnexpectedResult", err)
	}
}

func TestQueue_Typed(t *testing.T) {
	r, _ := NewResilience(nil)
	f := Queue(context.Background(), r, EmptyConfiguration("q"),
		func(context.Context) (string, error) { return "done", nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if v, err := f.Await(ctx); err != nil || v != "done" {
		t.Errorf("Await() = %q, %v", v, err)
	}

	failed := Queue(context.Background(), r, EmptyConfiguration("q"),
		func(context.Context) (string, error) { return "", errBoom }, nil)
	if _, err := failed.Await(ctx); !errors.Is(err, errBoom) {
		t.Errorf("Await() error = %v, want errBoom", err)
	}
}

func TestFuture_AwaitCancelled(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
}
