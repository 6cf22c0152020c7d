package http

import (
	"testing"
	"time"
)

func TestFrameLimiterCapsFrames(t *testing.T) {
	limiter := newFrameLimiter(2, time.Hour)
	if !limiter.allow() || !limiter.allow() {
		t.Fatal("first two frames must pass")
	}
	if limiter.allow() {
		t.Fatal("third frame must be limited")
	}
}

func TestFrameLimiterDisabled(t *testing.T) {
	limiter := newFrameLimiter(0, 0)
	for range 1000 {
		if !limiter.allow() {
			t.Fatal("disabled limiter must never limit")
		}
	}
}

func TestFrameLimiterRefillsEachWindow(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	limiter := newFrameLimiter(1, 10*time.Millisecond)
	limiter.run(done)

	if !limiter.allow() {
		t.Fatal("first frame must pass")
	}
	if limiter.allow() {
		t.Fatal("budget must be spent")
	}

	deadline := time.Now().Add(time.Second)
	for !limiter.allow() {
		if time.Now().After(deadline) {
			t.Fatal("budget was not refilled")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
