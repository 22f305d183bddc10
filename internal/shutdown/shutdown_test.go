package shutdown

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewDefaults(t *testing.T) {
	m := New(Config{})
	if m.timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", m.timeout)
	}
}

func TestShutdownReverseOrder(t *testing.T) {
	m := New(Config{Timeout: time.Second})

	var order []string
	for _, name := range []string{"tracing", "sinks", "server"} {
		name := name
		m.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := []string{"server", "sinks", "tracing"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("shutdown order mismatch (-want +got):\n%s", diff)
	}

	select {
	case <-m.Done():
	default:
		t.Error("Done() should be closed after Shutdown")
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	m := New(Config{Timeout: time.Second})
	errSinks := errors.New("flush failed")

	ran := 0
	m.Register("tracing", func(ctx context.Context) error { ran++; return nil })
	m.Register("sinks", func(ctx context.Context) error { ran++; return errSinks })

	err := m.Shutdown()
	if !errors.Is(err, errSinks) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if !strings.Contains(err.Error(), "sinks: flush failed") {
		t.Errorf("error should name the component: %v", err)
	}
	if ran != 2 {
		t.Errorf("expected both functions to run, ran %d", ran)
	}
}

func TestShutdownOnce(t *testing.T) {
	m := New(Config{Timeout: time.Second})

	calls := 0
	m.Register("server", func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	first := m.Shutdown()
	second := m.Shutdown()
	if calls != 1 {
		t.Errorf("expected one call, got %d", calls)
	}
	if first == nil || first != second {
		t.Errorf("expected the same error twice, got %v and %v", first, second)
	}
}

func TestShutdownTimeout(t *testing.T) {
	m := New(Config{Timeout: 50 * time.Millisecond})

	m.Register("tracing", func(ctx context.Context) error { return nil })
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := m.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "tracing:") {
		t.Errorf("functions after the deadline should be reported: %v", err)
	}
}

func TestSignalContext(t *testing.T) {
	ctx, cancel := SignalContext(context.Background(), syscall.SIGUSR1)
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled by signal")
	}
}
