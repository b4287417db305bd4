package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}

func TestIdempotentRetriesTransient(t *testing.T) {
	c := NewClient(fastPolicy)
	calls := 0
	err := c.Do(context.Background(), "read", Idempotent, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIdempotentGivesUpAfterMaxAttempts(t *testing.T) {
	c := NewClient(fastPolicy)
	calls := 0
	cause := errors.New("gateway timeout")
	err := c.Do(context.Background(), "read", Idempotent, func(ctx context.Context) error {
		calls++
		return Transient(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestNonIdempotentNeverRetried(t *testing.T) {
	c := NewClient(fastPolicy)
	calls := 0
	err := c.Do(context.Background(), "insert image", NonIdempotent, func(ctx context.Context) error {
		calls++
		return Transient(errors.New("connection reset"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPermanentErrorNotRetried(t *testing.T) {
	c := NewClient(fastPolicy)
	calls := 0
	business := errors.New("insufficient stock")
	err := c.Do(context.Background(), "create sale", Idempotent, func(ctx context.Context) error {
		calls++
		return business
	})
	assert.ErrorIs(t, err, business)
	assert.Equal(t, 1, calls)
}

func TestCallReturnsValue(t *testing.T) {
	c := NewClient(fastPolicy)
	calls := 0
	v, err := Call(context.Background(), c, "get", Idempotent, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Transient(errors.New("blip"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCustomClassifier(t *testing.T) {
	retryable := errors.New("retry me")
	c := NewClient(fastPolicy, WithClassifier(func(err error) bool { return errors.Is(err, retryable) }))
	calls := 0
	_ = c.Do(context.Background(), "op", Idempotent, func(ctx context.Context) error {
		calls++
		return retryable
	})
	assert.Equal(t, 3, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "08006"}))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
}

func TestCancelledContextStopsRetry(t *testing.T) {
	c := NewClient(Policy{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := c.Do(ctx, "read", Idempotent, func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("down"))
	})
	assert.Error(t, err)
	assert.Less(t, calls, 10)
}
