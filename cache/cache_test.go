package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_Clear(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	c.Claim("key1", "value1")
	c.Clear("key1")

	if !c.Claim("key1", "value2") {
		t.Error("Expected claim to succeed after Clear")
	}
}

func TestCache_Claim(t *testing.T) {
	c := New[struct{}](time.Minute)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }

	if !c.Claim("msg_1", struct{}{}) {
		t.Fatal("First claim should succeed")
	}
	if c.Claim("msg_1", struct{}{}) {
		t.Error("Second claim within TTL should fail")
	}

	now = now.Add(2 * time.Minute)
	if !c.Claim("msg_1", struct{}{}) {
		t.Error("Claim after expiry should succeed")
	}
}

func TestCache_Claim_Concurrent(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c.Claim("same", i) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly one winner, got %d", wins.Load())
	}
}

func TestCache_Sweep(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Claim("old", "a")
	now = now.Add(45 * time.Second)
	c.Claim("fresh", "b")
	now = now.Add(30 * time.Second)
	c.sweep()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.store["old"]; ok {
		t.Error("Expected expired entry to be swept")
	}
	if len(c.store) != 1 {
		t.Errorf("Expected 1 entry after sweep, got %d", len(c.store))
	}
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New[string](time.Minute)
	c.Close()
	c.Close()
}
