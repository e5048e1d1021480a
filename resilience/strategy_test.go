package resilience

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/observe"
)

func TestNewStrategy_DefaultOrder(t *testing.T) {
	s := NewStrategy()

	want := []string{"bulkhead", "timelimiter", "ratelimiter", "circuitbreaker", "caching", "retry"}
	got := s.Decorators()
	if len(got) != len(want) {
		t.Fatalf("decorators = %d, want %d", len(got), len(want))
	}
	for i, d := range got {
		if name := d.(pattern).Name(); name != want[i] {
			t.Errorf("decorator %d = %s, want %s", i, name, want[i])
		}
	}
	if s.Caching() == nil || s.CircuitBreakers() == nil {
		t.Error("default strategy should expose its caching decorator and breakers")
	}

	cfg := NewConfiguration("x").WithCache(cache.ExpireAfterModification, time.Minute)
	cfg.Retry.Enabled = true
	patterns := s.enabledPatterns(cfg)
	if strings.Join(patterns, ",") != "retry,caching,circuitbreaker,timelimiter,bulkhead" {
		t.Errorf("enabledPatterns() = %v", patterns)
	}
}

func TestStrategy_DecoratorsApplyInListOrder(t *testing.T) {
	var trace []string
	tag := func(name string) Decorator {
		return DecoratorFunc(func(call Callable, _ Configuration) Callable {
			return func(ctx context.Context) (any, error) {
				trace = append(trace, name)
				return call(ctx)
			}
		})
	}
	s := NewStrategy(WithDecorators(tag("first"), tag("second"), tag("third")))

	if _, err := s.ExecuteCallable(context.Background(), counter(new(atomic.Int32), 1), EmptyConfiguration("o"), nil); err != nil {
		t.Fatal(err)
	}
	if strings.Join(trace, ",") != "third,second,first" {
		t.Errorf("invocation order = %v, want last decorator outermost", trace)
	}
}

func TestStrategy_ExecuteCachesPerTenant(t *testing.T) {
	s := NewStrategy()
	cfg := EmptyConfiguration("foo").WithCache(cache.ExpireAfterCreation, time.Hour)
	cfg.IsolationMode = TenantRequired

	var calls atomic.Int32
	work := counter(&calls, 42)
	for _, tenantID := range []string{"T1", "T1", "T2"} {
		v, err := s.ExecuteCallable(isolationCtx(tenantID, ""), work, cfg, nil)
		if err != nil || v != 42 {
			t.Fatalf("ExecuteCallable() = %v, %v; want 42", v, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

type market struct {
	region string
}

func TestStrategy_ExecuteSeparatesStructParameters(t *testing.T) {
	s := NewStrategy()
	var calls atomic.Int32
	work := func(data string) Callable {
		return func(context.Context) (any, error) {
			calls.Add(1)
			return data, nil
		}
	}
	eu := cachedConfig("markets", NoIsolation, market{region: "eu"})
	us := cachedConfig("markets", NoIsolation, market{region: "us"})

	if v, err := s.ExecuteCallable(context.Background(), work("EU-DATA"), eu, nil); err != nil || v != "EU-DATA" {
		t.Fatalf("eu = %v, %v", v, err)
	}
	if v, err := s.ExecuteCallable(context.Background(), work("US-DATA"), us, nil); err != nil || v != "US-DATA" {
		t.Fatalf("us = %v, %v; want US-DATA", v, err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestStrategy_SetupLogsCarryCallerTrace(t *testing.T) {
	var logs bytes.Buffer
	logger := observe.NewLoggerWithWriter("debug", &logs)
	s := NewStrategy(WithCachingDecorator(NewCachingDecorator(nil, WithCachingLogger(logger))))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x10, 0x11, 0x12},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	cfg := cachedConfig("traced", NoIsolation)
	if _, err := s.ExecuteCallable(ctx, counter(new(atomic.Int32), 1), cfg, nil); err != nil {
		t.Fatal(err)
	}
	var created string
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, "cache store created") {
			created = line
		}
	}
	if created == "" {
		t.Fatalf("no store creation log in %s", logs.String())
	}
	if !strings.Contains(created, sc.TraceID().String()) {
		t.Errorf("store creation log lacks the trace id: %s", created)
	}
}

func TestStrategy_Fallback(t *testing.T) {
	s := NewStrategy()
	cfg := EmptyConfiguration("fb")
	failing := func(context.Context) (any, error) { return nil, errBoom }

	tests := []struct {
		name     string
		fallback Fallback
		want     any
		wantErr  error
	}{
		{"no fallback", nil, nil, errBoom},
		{
			name: "fallback recovers",
			fallback: func(_ context.Context, err error) (any, error) {
				if !errors.Is(err, errBoom) {
					t.Errorf("fallback got %v, want errBoom", err)
				}
				return "default", nil
			},
			want: "default",
		},
		{
			name:     "fallback fails",
			fallback: func(context.Context, error) (any, error) { return nil, ErrTimeout },
			wantErr:  ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := s.ExecuteCallable(context.Background(), failing, cfg, tt.fallback)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExecuteCallable() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				var re *Error
				if !errors.As(err, &re) || re.Identifier != "fb" {
					t.Errorf("error = %T, want *Error for fb", err)
				}
			}
			if v != tt.want {
				t.Errorf("ExecuteCallable() = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestStrategy_QueueCallable(t *testing.T) {
	var scheduled atomic.Int32
	s := NewStrategy(WithExecutor(func(task func()) {
		scheduled.Add(1)
		go task()
	}))

	f := s.QueueCallable(context.Background(), counter(new(atomic.Int32), "queued"), EmptyConfiguration("q"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if err != nil || v != "queued" {
		t.Fatalf("Await() = %v, %v; want queued", v, err)
	}
	if scheduled.Load() != 1 {
		t.Errorf("executor used %d times, want 1", scheduled.Load())
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done() not closed after completion")
	}
}

func TestStrategy_ClearCache(t *testing.T) {
	s := NewStrategy()
	cfg := EmptyConfiguration("clear").WithCache(cache.ExpireAfterModification, time.Hour, "k")
	cfg.IsolationMode = TenantAndPrincipalOptional

	var calls atomic.Int32
	work := counter(&calls, 1)
	alice := isolationCtx("t1", "alice")
	bob := isolationCtx("t1", "bob")
	for _, ctx := range []context.Context{alice, bob} {
		if _, err := s.ExecuteCallable(ctx, work, cfg, nil); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.ClearCache(alice, cfg)
	if err != nil || n != 1 {
		t.Fatalf("ClearCache() = %d, %v; want 1", n, err)
	}
	_, _ = s.ExecuteCallable(bob, work, cfg, nil)
	_, _ = s.ExecuteCallable(alice, work, cfg, nil)
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 (only alice recomputed)", calls.Load())
	}

	if err := s.ClearAllCacheEntries(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	_, _ = s.ExecuteCallable(bob, work, cfg, nil)
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4 after clearing everything", calls.Load())
	}
}

func TestStrategy_InstrumentsCalls(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	var logs bytes.Buffer
	logger := observe.NewLoggerWithWriter("debug", &logs)
	mw := observe.NewMiddleware(observe.NewTracer(tp.Tracer("test")), nil, logger)

	s := NewStrategy(WithMiddleware(mw), WithStrategyLogger(logger))
	cfg := NewConfiguration("traced")
	if _, err := s.ExecuteCallable(isolationCtx("t1", ""), counter(new(atomic.Int32), 1), cfg, nil); err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "resilience.call.traced" {
		t.Fatalf("spans = %v, want one resilience.call.traced span", spans)
	}
	if !strings.Contains(logs.String(), "executing resilient call") {
		t.Errorf("logs = %q, want the outer invocation logged", logs.String())
	}
}
