package smbpoll

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func retryClient(policy *RetryPolicy, logger *zap.Logger) *Client {
	config := &Config{
		Server:      "test",
		Share:       "test",
		Username:    "test",
		Password:    "test",
		RetryPolicy: policy,
		Logger:      logger,
	}
	config.setDefaults()

	return &Client{config: config, logger: config.Logger}
}

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_Success(t *testing.T) {
	c := retryClient(nil, nil)

	callCount := 0
	err := c.withRetry(context.Background(), "test", func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("withRetry() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("operation called %d times, want 1", callCount)
	}
}

func TestWithRetry_SuccessAfterRetries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := retryClient(fastPolicy(), zap.New(core))

	callCount := 0
	err := c.withRetry(context.Background(), "list", func() error {
		callCount++
		if callCount < 3 {
			return &mockNetError{temporary: true}
		}
		return nil
	})

	if err != nil {
		t.Errorf("withRetry() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("operation called %d times, want 3", callCount)
	}
	if n := logs.FilterMessage("operation failed, retrying").Len(); n != 2 {
		t.Errorf("logged %d retries, want 2", n)
	}
}

func TestWithRetry_NonRetryableError(t *testing.T) {
	c := retryClient(fastPolicy(), nil)

	nonRetryableErr := errors.New("not retryable")
	callCount := 0

	err := c.withRetry(context.Background(), "test", func() error {
		callCount++
		return nonRetryableErr
	})

	if err != nonRetryableErr {
		t.Errorf("withRetry() error = %v, want %v", err, nonRetryableErr)
	}
	if callCount != 1 {
		t.Errorf("operation called %d times, want 1", callCount)
	}
}

func TestWithRetry_MaxAttemptsExceeded(t *testing.T) {
	c := retryClient(fastPolicy(), nil)

	callCount := 0
	err := c.withRetry(context.Background(), "test", func() error {
		callCount++
		return ErrConnectionClosed
	})

	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("withRetry() error = %v, want ErrConnectionClosed", err)
	}
	if callCount != 3 {
		t.Errorf("operation called %d times, want 3", callCount)
	}
}

func TestWithRetry_SingleAttempt(t *testing.T) {
	c := retryClient(&RetryPolicy{MaxAttempts: 1}, nil)

	callCount := 0
	_ = c.withRetry(context.Background(), "test", func() error {
		callCount++
		return ErrConnectionClosed
	})

	if callCount != 1 {
		t.Errorf("operation called %d times, want 1", callCount)
	}
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	c := retryClient(&RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	callCount := 0
	start := time.Now()
	err := c.withRetry(ctx, "test", func() error {
		callCount++
		return ErrPoolExhausted
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("withRetry() error = %v, want context.DeadlineExceeded", err)
	}
	if callCount != 1 {
		t.Errorf("operation called %d times, want 1", callCount)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("withRetry() took %v after cancellation", elapsed)
	}
}

func TestWithRetry_ExponentialBackoff(t *testing.T) {
	c := retryClient(&RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   2.0,
	}, nil)

	var times []time.Time
	_ = c.withRetry(context.Background(), "test", func() error {
		times = append(times, time.Now())
		return ErrConnectionClosed
	})

	if len(times) != 4 {
		t.Fatalf("operation called %d times, want 4", len(times))
	}

	// Delays are 10ms, 20ms, then capped at 25ms
	minimum := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	for i, want := range minimum {
		if got := times[i+1].Sub(times[i]); got < want {
			t.Errorf("delay %d = %v, want at least %v", i, got, want)
		}
	}
}
