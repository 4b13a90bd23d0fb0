package resilience

import (
	"sync"
	"testing"
	"time"
)

func testBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	b := NewBreaker("classifier", cfg, nil)
	now := time.Now()
	var mu sync.Mutex
	b.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := testBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != StateClosed {
			t.Fatalf("state = %q after %d failures", b.State(), i+1)
		}
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %q after threshold", b.State())
	}
	if b.Allow() {
		t.Error("open breaker allowed a call")
	}
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b, _ := testBreaker(BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 30 * time.Second})

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Errorf("state = %q, want closed after interleaved success", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := testBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Second})

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("open breaker allowed a call")
	}

	*now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %q after recovery timeout", b.State())
	}
	if !b.Allow() {
		t.Fatal("half-open breaker refused the probe")
	}
	// Only one probe at a time.
	if b.Allow() {
		t.Error("half-open breaker admitted a second probe")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("state = %q after probe success", b.State())
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := testBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Second})

	b.RecordFailure()
	*now = now.Add(11 * time.Second)
	if !b.Allow() {
		t.Fatal("probe refused")
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("state = %q after probe failure", b.State())
	}
	if b.Allow() {
		t.Error("reopened breaker allowed a call")
	}
}

func TestBreakerWindowAgesOutStreak(t *testing.T) {
	b, now := testBreaker(BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		Window:           time.Minute,
	})

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Errorf("state = %q, want closed: failures outside window", b.State())
	}
}

func TestBreakerSet(t *testing.T) {
	set := NewBreakerSet(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil)

	a := set.Get("moderation:classifier")
	if got := set.Get("moderation:classifier"); got != a {
		t.Error("Get returned a different instance for the same key")
	}
	set.Get("jailbreak:classifier").RecordFailure()

	states := set.States()
	if states["moderation:classifier"] != StateClosed {
		t.Errorf("moderation state = %q", states["moderation:classifier"])
	}
	if states["jailbreak:classifier"] != StateOpen {
		t.Errorf("jailbreak state = %q", states["jailbreak:classifier"])
	}
}
