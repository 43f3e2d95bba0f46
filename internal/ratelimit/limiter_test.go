package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSourcesAreIndependent(t *testing.T) {
	m := New(1, 1)
	ctx := context.Background()
	if !m.Get("identity-gs.ephoenix.ir").Allow() {
		t.Fatal("first request should pass")
	}
	if m.Get("identity-gs.ephoenix.ir").Allow() {
		t.Fatal("second immediate request on the same host should be throttled")
	}
	if err := m.Wait(ctx, "identity-bbi.ephoenix.ir"); err != nil {
		t.Fatalf("other host should not be throttled: %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	m := New(0.1, 1)
	m.Get("h").Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx, "h"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDisabledAndNil(t *testing.T) {
	m := New(0, 1)
	for i := 0; i < 100; i++ {
		if !m.Get("h").Allow() {
			t.Fatal("rps <= 0 should not throttle")
		}
	}
	var nilLimiter *MultiLimiter
	if err := nilLimiter.Wait(context.Background(), "h"); err != nil {
		t.Fatal(err)
	}
}

func TestHost(t *testing.T) {
	if got := Host("https://identity-gs.ephoenix.ir/api/Captcha/GetCaptcha"); got != "identity-gs.ephoenix.ir" {
		t.Errorf("Host = %q", got)
	}
	if got := Host("not a url"); got != "not a url" {
		t.Errorf("Host = %q", got)
	}
}
