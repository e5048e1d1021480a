package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/jonwraymond/cloudsdk/observe"
)

// DecorationStrategy applies resilience patterns to units of work.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: decorated calls fail with *Error unless a fallback recovers.
type DecorationStrategy interface {
	DecorateCallable(call Callable, cfg Configuration, fallback Fallback) Callable
	ExecuteCallable(ctx context.Context, call Callable, cfg Configuration, fallback Fallback) (any, error)
	QueueCallable(ctx context.Context, call Callable, cfg Configuration, fallback Fallback) *Future[any]
	ClearCache(ctx context.Context, cfg Configuration) (int, error)
	ClearCacheWithFilter(ctx context.Context, cfg Configuration, filter CacheFilter) (int, error)
	ClearAllCacheEntries(ctx context.Context, cfg Configuration) error
}

// ResolveStrategy picks the single strategy among candidates. With none it
// returns a default Strategy; with more than one it logs and fails with
// ErrAmbiguousStrategy.
func ResolveStrategy(logger observe.Logger, candidates ...DecorationStrategy) (DecorationStrategy, error) {
	if logger == nil {
		logger = observe.NopLogger()
	}
	var found []DecorationStrategy
	for _, c := range candidates {
		if c != nil {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return NewStrategy(WithStrategyLogger(logger)), nil
	case 1:
		return found[0], nil
	default:
		names := make([]string, len(found))
		for i, c := range found {
			names[i] = fmt.Sprintf("%T", c)
		}
		logger.Error(context.Background(), "more than one decoration strategy configured",
			observe.Field{Key: "strategies", Value: names},
		)
		return nil, fmt.Errorf("%w: %d candidates", ErrAmbiguousStrategy, len(found))
	}
}

// Resilience is the entry point for running work under a Configuration.
type Resilience struct {
	strategy DecorationStrategy
}

// NewResilience resolves the strategy among candidates and wraps it.
func NewResilience(logger observe.Logger, candidates ...DecorationStrategy) (*Resilience, error) {
	s, err := ResolveStrategy(logger, candidates...)
	if err != nil {
		return nil, err
	}
	return &Resilience{strategy: s}, nil
}

// Strategy returns the resolved strategy.
func (r *Resilience) Strategy() DecorationStrategy { return r.strategy }

// ClearCache removes the ambient tenant's and principal's entries for cfg.
func (r *Resilience) ClearCache(ctx context.Context, cfg Configuration) (int, error) {
	return r.strategy.ClearCache(ctx, cfg)
}

// ClearCacheWithFilter removes the entries of cfg's cache matching filter.
func (r *Resilience) ClearCacheWithFilter(ctx context.Context, cfg Configuration, filter CacheFilter) (int, error) {
	return r.strategy.ClearCacheWithFilter(ctx, cfg, filter)
}

// ClearAllCacheEntries empties cfg's cache for every tenant and principal.
func (r *Resilience) ClearAllCacheEntries(ctx context.Context, cfg Configuration) error {
	return r.strategy.ClearAllCacheEntries(ctx, cfg)
}

// Decorate returns work wrapped with the patterns cfg enables. fallback may
// be nil.
func Decorate[T any](r *Resilience, cfg Configuration, work func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) func(context.Context) (T, error) {
	decorated := r.strategy.DecorateCallable(untyped(work), cfg, untypedFallback(fallback))
	return func(ctx context.Context) (T, error) {
		v, err := decorated(withResultType[T](ctx))
		if err != nil {
			var zero T
			return zero, err
		}
		return convertResult[T](cfg.Identifier, v)
	}
}

// Execute runs work with the patterns cfg enables. fallback may be nil.
func Execute[T any](ctx context.Context, r *Resilience, cfg Configuration, work func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	v, err := r.strategy.ExecuteCallable(withResultType[T](ctx), untyped(work), cfg, untypedFallback(fallback))
	if err != nil {
		var zero T
		return zero, err
	}
	return convertResult[T](cfg.Identifier, v)
}

// Queue schedules work with the patterns cfg enables and returns its
// future. fallback may be nil.
func Queue[T any](ctx context.Context, r *Resilience, cfg Configuration, work func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) *Future[T] {
	f := r.strategy.QueueCallable(withResultType[T](ctx), untyped(work), cfg, untypedFallback(fallback))
	return mapFuture(f, func(v any) (T, error) {
		return convertResult[T](cfg.Identifier, v)
	})
}

type resultTypeKey struct{}

// withResultType records T as the type cached raw values decode into.
// Interface types carry no concrete shape and are not recorded.
func withResultType[T any](ctx context.Context) context.Context {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface {
		return ctx
	}
	return context.WithValue(ctx, resultTypeKey{}, t)
}

func resultTypeFrom(ctx context.Context) reflect.Type {
	t, _ := ctx.Value(resultTypeKey{}).(reflect.Type)
	return t
}

func untyped[T any](work func(context.Context) (T, error)) Callable {
	return func(ctx context.Context) (any, error) {
		return work(ctx)
	}
}

func untypedFallback[T any](fallback func(context.Context, error) (T, error)) Fallback {
	if fallback == nil {
		return nil
	}
	return func(ctx context.Context, err error) (any, error) {
		return fallback(ctx, err)
	}
}

// convertResult returns v as a T. Values read back from a serialized store
// arrive as json.RawMessage and are decoded into T.
func convertResult[T any](identifier string, v any) (T, error) {
	var zero T
	switch val := v.(type) {
	case T:
		return val, nil
	case nil:
		return zero, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(val, &out); err != nil {
			return zero, wrapError(identifier, fmt.Errorf("%w: decode %T: %w", ErrUnexpectedResult, out, err))
		}
		return out, nil
	default:
		return zero, wrapError(identifier, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedResult, v, zero))
	}
}
