package resilient

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Idempotency tells the client whether an operation may run more than once
type Idempotency int

const (
	// NonIdempotent operations run exactly once, failures are returned as is
	NonIdempotent Idempotency = iota
	// Idempotent operations (reads, keyed writes) are retried on transient errors
	Idempotent
)

func (i Idempotency) String() string {
	if i == Idempotent {
		return "idempotent"
	}
	return "non-idempotent"
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a temporary failure of the remote side
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 connection exception, 40001 serialization failure, 40P01 deadlock
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" ||
			pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return pgconn.SafeToRetry(err)
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	Multiplier:      2,
}

// Client wraps remote calls with retry and backoff
type Client struct {
	policy   Policy
	classify func(error) bool
}

type Option func(*Client)

// WithClassifier overrides the transient error check
func WithClassifier(fn func(error) bool) Option {
	return func(c *Client) { c.classify = fn }
}

func NewClient(policy Policy, opts ...Option) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultPolicy.InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = DefaultPolicy.Multiplier
	}
	c := &Client{policy: policy, classify: IsTransient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.MaxInterval = c.policy.MaxInterval
	b.Multiplier = c.policy.Multiplier
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.policy.MaxAttempts-1)), ctx)
}

// Do runs fn, retrying transient failures only when kind is Idempotent
func (c *Client) Do(ctx context.Context, op string, kind Idempotency, fn func(ctx context.Context) error) error {
	if kind == NonIdempotent {
		return fn(ctx)
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !c.classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		zap.L().Warn("retrying remote call",
			zap.String("namespace", "resilient"),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, c.backoff(ctx), notify)
	if err != nil && attempt > 1 {
		zap.L().Error("remote call failed after retries",
			zap.String("namespace", "resilient"),
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.Error(err))
	}
	return err
}

// Call is Do for operations that return a value
func Call[T any](ctx context.Context, c *Client, op string, kind Idempotency, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, op, kind, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
