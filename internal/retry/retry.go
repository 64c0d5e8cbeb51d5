// Package retry wraps unreliable calls with bounded, jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/metrics"
)

// ErrRetryExhausted matches every *RetryExhaustedError via errors.Is.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryExhaustedError is returned once the attempt budget is spent. Last is the
// error from the final attempt.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempts: %v", e.Op, ErrRetryExhausted, e.Attempts, e.Last)
}

// Unwrap exposes the last underlying error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports whether target is ErrRetryExhausted.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// PermanentError is returned in classifying mode when a call fails with an
// error that will not succeed on retry.
type PermanentError struct {
	Op      string
	Attempt int
	Err     error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent failure on attempt %d: %v", e.Op, e.Attempt, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Policy bounds the attempt budget and the backoff curve.
type Policy struct {
	// MaxAttempts counts the initial call plus retries.
	MaxAttempts int
	Factor      float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	// Randomize multiplies each delay by a random factor in [1, 2).
	Randomize bool
	// Classify stops retrying errors crawler.IsRetryable rejects. When false
	// every error is retried until the budget runs out.
	Classify bool
}

// DefaultPolicy returns six attempts, factor 3, delays between 200ms and 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		Factor:      3,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Randomize:   true,
	}
}

// Executor runs calls under a Policy. It is safe for concurrent use.
type Executor struct {
	policy Policy
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
	random func() float64
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSleep replaces the context-aware sleep (tests).
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithRandom replaces the jitter source; fn must return a value in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(e *Executor) {
		if fn != nil {
			e.random = fn
		}
	}
}

// New builds an Executor. Non-positive policy fields fall back to DefaultPolicy.
func New(policy Policy, opts ...Option) *Executor {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Factor <= 0 {
		policy.Factor = def.Factor
	}
	if policy.MinDelay < 0 {
		policy.MinDelay = 0
	}
	if policy.MaxDelay < policy.MinDelay {
		policy.MaxDelay = policy.MinDelay
	}
	e := &Executor{
		policy: policy,
		logger: zap.NewNop(),
		sleep:  sleepContext,
		random: randomFraction,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Backoff returns the wait before retry number retry (0-based).
func (e *Executor) Backoff(retry int) time.Duration {
	multiplier := 1.0
	if e.policy.Randomize {
		multiplier += e.random()
	}
	delay := multiplier * float64(e.policy.MinDelay) * math.Pow(e.policy.Factor, float64(retry))
	if delay > float64(e.policy.MaxDelay) {
		delay = float64(e.policy.MaxDelay)
	}
	return time.Duration(delay)
}

// Do invokes call until it succeeds or the policy gives up. op labels logs,
// metrics, and errors.
func Do[T any](ctx context.Context, e *Executor, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Debug("call succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if e.policy.Classify && !crawler.IsRetryable(err) {
			metrics.ObserveRetryGiveUp(op, "permanent")
			return zero, &PermanentError{Op: op, Attempt: attempt, Err: err}
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.Backoff(attempt - 1)
		metrics.ObserveRetry(op, delay)
		e.logger.Debug("call failed, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("%s: retry canceled after %d attempts (last error: %v): %w", op, attempt, lastErr, sleepErr)
		}
	}

	metrics.ObserveRetryGiveUp(op, "exhausted")
	e.logger.Warn("retry attempts exhausted",
		zap.String("op", op),
		zap.Int("max_attempts", e.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return zero, &RetryExhaustedError{Op: op, Attempts: e.policy.MaxAttempts, Last: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

const randomPrecision = 1 << 53

func randomFraction() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(randomPrecision))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / randomPrecision
}
