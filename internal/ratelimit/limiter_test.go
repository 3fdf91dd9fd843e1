package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitAllowsWithinRate(t *testing.T) {
	l := New(100, 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx, "app.example.com"); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := New(0.001, 1)
	l.Allow("app.example.com") // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "app.example.com"); err == nil {
		t.Fatal("Wait returned without a token under deadline")
	}
}

func TestAllowConsumesTokens(t *testing.T) {
	l := New(0.001, 2)

	if !l.Allow("app.example.com") || !l.Allow("app.example.com") {
		t.Fatal("burst tokens rejected")
	}
	if l.Allow("app.example.com") {
		t.Error("Allow = true past burst")
	}
}

func TestHostDelaySpacesRequests(t *testing.T) {
	l := New(1000, 1000)
	l.SetHostDelay(30 * time.Millisecond)

	ctx := context.Background()
	start := time.Now()
	if err := l.Wait(ctx, "app.example.com"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if err := l.Wait(ctx, "app.example.com"); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("second request after %v, want host delay enforced", elapsed)
	}

	// A different host is not delayed by the first host's timestamp.
	start = time.Now()
	if err := l.Wait(ctx, "other.example.com"); err != nil {
		t.Fatalf("other host Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("unrelated host delayed %v", elapsed)
	}
}

func TestDefaultsForInvalidConfig(t *testing.T) {
	l := New(-1, 0)
	if !l.Allow("app.example.com") {
		t.Error("limiter with defaulted config rejected first request")
	}
}
