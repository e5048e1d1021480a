package health

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultAggregateTimeout = 10 * time.Second

// AggregatorConfig bounds a round of checks.
type AggregatorConfig struct {
	// Timeout caps a whole CheckAll round, and a single Check.
	// Default: 10 seconds
	Timeout time.Duration

	// Concurrency bounds how many checks run at once. 1 runs them in
	// registration order.
	// Default: 0 (unbounded)
	Concurrency int
}

type entry struct {
	name    string
	checker Checker
}

// Aggregator runs a named set of checkers and folds their statuses.
type Aggregator struct {
	config AggregatorConfig

	mu      sync.RWMutex
	entries []entry
}

// NewAggregator returns an empty aggregator. A missing or non-positive
// Timeout falls back to the default.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAggregateTimeout
	}
	return &Aggregator{config: cfg}
}

func (a *Aggregator) indexOf(name string) int {
	return slices.IndexFunc(a.entries, func(e entry) bool { return e.name == name })
}

// Register adds checker under name. Re-registering a name swaps the checker
// in place and keeps its position.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexOf(name); i >= 0 {
		a.entries[i].checker = checker
		return
	}
	a.entries = append(a.entries, entry{name: name, checker: checker})
}

// Unregister drops name. Unknown names are ignored.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexOf(name); i >= 0 {
		a.entries = slices.Delete(a.entries, i, i+1)
	}
}

// CheckerNames lists registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

func (a *Aggregator) snapshot() []entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.entries)
}

// Check runs the checker registered under name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	i := a.indexOf(name)
	var c Checker
	if i >= 0 {
		c = a.entries[i].checker
	}
	a.mu.RUnlock()
	if c == nil {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return runBounded(ctx, c), nil
}

// CheckAll runs every registered checker and returns results by name. A
// checker still running when the round times out is reported Unhealthy with
// ErrCheckTimeout.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	entries := a.snapshot()
	if len(entries) == 0 {
		return map[string]Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	// Each goroutine owns one slot, so no lock is needed.
	out := make([]Result, len(entries))
	var g errgroup.Group
	if a.config.Concurrency > 0 {
		g.SetLimit(a.config.Concurrency)
	}
	for i, e := range entries {
		g.Go(func() error {
			out[i] = runBounded(ctx, e.checker)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]Result, len(entries))
	for i, e := range entries {
		results[e.name] = out[i]
	}
	return results
}

// OverallStatus is the most severe status in results; Healthy when empty.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		overall = worse(overall, r.Status)
	}
	return overall
}

// runBounded stops waiting for c once ctx is done. The checker goroutine is
// left to finish on its own.
func runBounded(ctx context.Context, c Checker) Result {
	started := time.Now()
	done := make(chan Result, 1)
	go func() {
		r := c.Check(ctx)
		if r.Timestamp.IsZero() {
			r.Timestamp = started
		}
		r.Duration = time.Since(started)
		done <- r
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		r := Unhealthy("check timed out", ErrCheckTimeout)
		r.Timestamp = started
		r.Duration = time.Since(started)
		return r
	}
}

// Checker exposes the whole aggregator as one Checker named "aggregate",
// with each member's outcome under Details.
func (a *Aggregator) Checker() Checker {
	return NewCheckerFunc("aggregate", func(ctx context.Context) Result {
		results := a.CheckAll(ctx)
		overall := a.OverallStatus(results)

		var r Result
		switch overall {
		case StatusUnhealthy:
			r = Unhealthy("some checks failed", nil)
		case StatusDegraded:
			r = Degraded("some checks degraded")
		default:
			r = Healthy("all checks passed")
		}
		details := make(map[string]any, len(results))
		for name, res := range results {
			details[name] = map[string]any{
				"status":   res.Status.String(),
				"message":  res.Message,
				"duration": res.Duration.String(),
			}
		}
		return r.WithDetails(details)
	})
}
