package ratelimit

import (
	"testing"
	"time"
)

func TestPoolPerKeyBuckets(t *testing.T) {
	p := NewPool(0.001, 2)
	if !p.Allow("a") || !p.Allow("a") {
		t.Fatalf("burst of 2 should be allowed")
	}
	if p.Allow("a") {
		t.Fatalf("third event should be throttled")
	}
	if !p.Allow("b") {
		t.Fatalf("other keys have their own bucket")
	}
}

func TestPoolDisabled(t *testing.T) {
	p := NewPool(0, 0)
	for i := 0; i < 100; i++ {
		if !p.Allow("x") {
			t.Fatalf("disabled pool throttled at %d", i)
		}
	}
	var nilPool *Pool
	if !nilPool.Allow("x") {
		t.Fatalf("nil pool should allow")
	}
}

func TestPoolEvictsIdleKeys(t *testing.T) {
	p := NewPool(1, 1)
	p.Allow("old")
	p.evict(time.Now().Add(time.Second))
	if p.Len() != 0 {
		t.Fatalf("expected eviction, have %d keys", p.Len())
	}
}
