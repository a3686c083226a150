package poll

import (
	"context"
	"testing"
	"time"
)

func TestWaitTimesOut(t *testing.T) {
	hub := NewHub(nil, "alerts")
	start := time.Now()
	if hub.Wait(context.Background(), 20*time.Millisecond) {
		t.Fatal("Wait reported a wake-up with no broadcast")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Wait returned after %v, before the deadline", elapsed)
	}
}

func TestWaitWokenByBroadcast(t *testing.T) {
	hub := NewHub(nil, "alerts")
	done := make(chan bool, 1)
	go func() {
		done <- hub.Wait(context.Background(), 5*time.Second)
	}()
	// give the waiter time to register
	time.Sleep(20 * time.Millisecond)
	hub.broadcast()
	select {
	case woken := <-done:
		if !woken {
			t.Fatal("Wait returned false after a broadcast")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after broadcast")
	}
}

func TestWaitCancelledContext(t *testing.T) {
	hub := NewHub(nil, "alerts")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if hub.Wait(ctx, 5*time.Second) {
		t.Fatal("Wait reported a wake-up on a cancelled context")
	}
}
