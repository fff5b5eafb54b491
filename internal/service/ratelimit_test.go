package service_test

import (
	"testing"
	"time"

	"github.com/msomdec/tasktide/internal/service"
)

func TestRateLimiterAllowsWithinCapacity(t *testing.T) {
	rl := service.NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request over capacity allowed, want denied")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl := service.NewRateLimiter(1, 2, service.WithLimiterClock(func() time.Time { return now }))

	rl.Allow("k")
	rl.Allow("k")
	if rl.Allow("k") {
		t.Fatal("empty bucket allowed, want denied")
	}

	now = now.Add(1 * time.Second)
	if !rl.Allow("k") {
		t.Error("request after refill denied, want allowed")
	}
	if rl.Allow("k") {
		t.Error("second request after single refill allowed, want denied")
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := service.NewRateLimiter(1, 1)

	if !rl.Allow("a") {
		t.Fatal("first key denied")
	}
	if !rl.Allow("b") {
		t.Error("second key denied, buckets are not isolated")
	}
}
