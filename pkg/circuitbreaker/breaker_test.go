package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func newTestBreaker(cooldown time.Duration) *Breaker {
	return New("test", Config{
		FailureThreshold: 3,
		Cooldown:         cooldown,
		SuccessThreshold: 2,
	})
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := b.Execute(ctx, succeeding); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("open breaker returned %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	b.Execute(ctx, succeeding)
	b.Execute(ctx, failing)
	b.Execute(ctx, failing)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures are consecutive)", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, failing)
	}
	time.Sleep(20 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}

	// Two probe successes close it again.
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after probe successes", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, failing)
	}
	time.Sleep(20 * time.Millisecond)

	b.Execute(ctx, failing)
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, failing)
	}
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	probeStarted := make(chan struct{})
	go b.Execute(ctx, func() error {
		close(probeStarted)
		<-release
		return nil
	})

	<-probeStarted
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("second concurrent probe returned %v, want ErrOpen", err)
	}
	close(release)
}
