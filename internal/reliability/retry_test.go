package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	config := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2.0,
	}

	if err := Retry(context.Background(), config, fn); err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}

	config := RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}

	if attempts != 4 { // Initial attempt + 3 retries
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestRetry_NoRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{}, func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	fn := func(ctx context.Context) error {
		return errors.New("error")
	}

	config := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, config, fn)
	if !errors.Is(err, ErrRetryAborted) {
		t.Errorf("expected ErrRetryAborted, got %v", err)
	}
}

func TestRetry_Permanent(t *testing.T) {
	base := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return Permanent(base)
	})

	if !errors.Is(err, base) {
		t.Errorf("expected wrapped base error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var seen []int
	config := RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		OnRetry:        func(attempt int, err error) { seen = append(seen, attempt) },
	}

	_ = Retry(context.Background(), config, func(ctx context.Context) error {
		return errors.New("fail")
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("unexpected retry callbacks %v", seen)
	}
}

func TestRetry_ExponentialBackoff(t *testing.T) {
	var attempts []time.Time
	fn := func(ctx context.Context) error {
		attempts = append(attempts, time.Now())
		return errors.New("fail")
	}

	config := RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2.0,
	}

	_ = Retry(context.Background(), config, fn)

	if len(attempts) != 4 {
		t.Fatalf("attempts = %d, want 4", len(attempts))
	}

	// Waits are 10ms, 20ms, 40ms
	if gap := attempts[3].Sub(attempts[2]); gap < 35*time.Millisecond {
		t.Errorf("third backoff too short: %v", gap)
	}
}

func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := addJitter(base)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
}
