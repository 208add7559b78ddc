package ratelimiter

import (
	"fmt"
	"testing"
	"time"
)

func TestSpendExhaustsBurstThenRefills(t *testing.T) {
	l := New(1, 3, time.Minute)
	now := time.Unix(1700000000, 0)

	for i := 0; i < 3; i++ {
		if !l.Spend("m1", now) {
			t.Fatalf("spend %d must be allowed", i)
		}
	}
	if l.Spend("m1", now) || l.Allow("m1", now) {
		t.Fatal("budget must be exhausted")
	}
	if !l.Allow("m2", now) {
		t.Fatal("other keys are independent")
	}
	if !l.Allow("m1", now.Add(1100*time.Millisecond)) {
		t.Fatal("bucket must refill over time")
	}
}

func TestAllowDoesNotSpend(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		if !l.Allow("m", now) {
			t.Fatal("allow must not consume tokens")
		}
	}
	if l.Len() != 0 {
		t.Fatal("allow must not create buckets")
	}
}

func TestResetForgetsKey(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1700000000, 0)
	l.Spend("m", now)
	if l.Allow("m", now) {
		t.Fatal("expected exhausted bucket")
	}
	l.Reset(" m ")
	if !l.Allow("m", now) || l.Len() != 0 {
		t.Fatal("reset must drop the bucket")
	}
}

func TestIdleBucketsAreSwept(t *testing.T) {
	l := New(10, 10, time.Second)
	start := time.Unix(1700000000, 0)
	l.Spend("old", start)
	later := start.Add(time.Hour)
	for i := 0; i < sweepEvery; i++ {
		l.Spend(fmt.Sprintf("k%d", i%4), later)
	}
	if l.Len() != 4 {
		t.Fatalf("expected idle bucket to be evicted, have %d", l.Len())
	}
}

func TestNilAndDisabledLimiterAllowEverything(t *testing.T) {
	var l *MapLimiter
	if !l.Spend("m", time.Now()) || !l.Allow("m", time.Now()) || l.Len() != 0 {
		t.Fatal("nil limiter must allow")
	}
	l.Reset("m")
	if New(0, 1, 0) != nil || New(1, 0, 0) != nil {
		t.Fatal("non-positive rate or burst disables limiting")
	}
	if New(1, 1, time.Minute).Spend("  ", time.Now()) != true {
		t.Fatal("blank key is never limited")
	}
}
