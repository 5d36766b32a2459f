// Package sdk provides a resilient call-execution engine for latency-sensitive,
// unreliable backends. It wraps a caller-supplied operation with admission
// control, a shared circuit breaker, per-attempt timeouts, classified retries
// with exponential backoff and jitter, and bounded in-memory call metrics.
//
// # Features
//
// The executor provides:
//   - Error classification (fatal, retryable, circuit-tripping)
//   - Automatic retries with exponential backoff and jitter
//   - Circuit breaker pattern for fault tolerance
//   - Per-attempt timeout enforcement
//   - Memory-pressure admission control
//   - Bounded call metrics with per-method breakdowns
//   - Diagnostic reports with heuristic recommendations
//
// # Basic Usage
//
// Create an executor and run operations through it:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/perchlabs/talon/sdk"
//	)
//
//	func main() {
//	    exec, err := sdk.NewExecutor(sdk.DefaultExecutorConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    ctx := context.Background()
//	    result, err := exec.Execute(ctx, "wallet.getBalance", func(ctx context.Context, args []any) (any, error) {
//	        return backend.GetBalance(ctx, args[0].(string))
//	    }, []any{"acct-123"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _ = result
//	}
//
// # Configuration
//
// The executor is configured with a fluent builder pattern:
//
//	cfg := sdk.DefaultExecutorConfig().
//	    WithMaxRetries(5).
//	    WithCircuitBreaker(10, time.Minute).
//	    WithObserver(myObserver)
//
//	exec, err := sdk.NewExecutor(cfg)
//
// Per-call settings override the executor defaults:
//
//	result, err := exec.Execute(ctx, "wallet.sync", op, nil,
//	    sdk.WithMaxRetries(0),
//	    sdk.WithCallTimeout(2*time.Second))
//
// # Error Handling
//
// Terminal failures are wrapped in *CallError carrying the classification,
// the original cause and the call context:
//
//	var callErr *sdk.CallError
//	if errors.As(err, &callErr) {
//	    switch callErr.Classification {
//	    case sdk.ClassificationRetryable:
//	        // retries exhausted
//	    case sdk.ClassificationCircuitTrip:
//	        // breaker open or dependency down
//	    case sdk.ClassificationFatal:
//	        // do not retry at any level
//	    }
//	}
//
// The executor never returns partial results: callers receive either the
// operation's value or a single wrapped error.
package sdk
