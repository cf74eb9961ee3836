package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := PerMinute(2, 1)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("gold"); !ok {
			t.Fatalf("burst token %d denied", i)
		}
	}
	ok, wait := l.Allow("gold")
	if ok {
		t.Fatalf("third call should be throttled")
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("unexpected wait %v", wait)
	}
	if ok, _ := l.Allow("diamond"); !ok {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow("gold"); !ok {
		t.Fatalf("token should refill after a minute")
	}
}
