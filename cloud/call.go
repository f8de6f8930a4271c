package cloud

import (
	"context"
	"time"

	"goa.design/clue/log"
)

// RetryConfig bounds the retry behavior of Call.
type RetryConfig struct {
	// MaxAttempts is the maximum number of call attempts, including the
	// initial one. Zero or negative means a single attempt.
	MaxAttempts int
	// BaseDelay is the backoff before the first retry; it doubles after
	// each subsequent retryable failure (base, 2*base, 4*base, ...).
	BaseDelay time.Duration
}

// DefaultRetryConfig mirrors the provider guidance for read-only telemetry
// calls: three attempts with a one second initial backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second}
}

// Envelope is the uniform outcome of a retry-wrapped provider call. Exactly
// one of Data and Err is meaningful.
type Envelope[T any] struct {
	Success bool
	Data    T
	Err     *CallError
}

// Call invokes fn with bounded exponential-backoff retry. Only throttling and
// availability failures are retried; permission, validation, credential, and
// unknown failures return after a single attempt. Calls are assumed
// idempotent; Call makes no idempotency guarantee for writes.
//
// Each attempt emits a structured log entry with service, operation, attempt
// number, and outcome.
func Call[T any](ctx context.Context, cfg RetryConfig, service, operation string, fn func(context.Context) (T, error)) Envelope[T] {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var last *CallError
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		data, err := fn(ctx)
		if err == nil {
			log.Debug(ctx, log.KV{K: "service", V: service}, log.KV{K: "operation", V: operation},
				log.KV{K: "attempt", V: attempt + 1}, log.KV{K: "outcome", V: "success"})
			return Envelope[T]{Success: true, Data: data}
		}

		last = Classify(service, operation, err)
		log.Warn(ctx, log.KV{K: "service", V: service}, log.KV{K: "operation", V: operation},
			log.KV{K: "attempt", V: attempt + 1}, log.KV{K: "outcome", V: string(last.Kind)},
			log.KV{K: "code", V: last.Code})

		if !last.Retryable() || attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.BaseDelay << uint(attempt)
		select {
		case <-ctx.Done():
			return Envelope[T]{Err: Classify(service, operation, ctx.Err())}
		case <-time.After(delay):
		}
	}

	return Envelope[T]{Err: last}
}
