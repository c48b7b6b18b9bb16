package gateway_test

import (
	"testing"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/gateway"
)

func TestCommandLimiter_Burst(t *testing.T) {
	l := gateway.NewCommandLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("c1") {
			t.Fatalf("command %d within burst was rejected", i)
		}
	}
	if l.Allow("c1") {
		t.Error("command beyond burst should be rejected")
	}
	if !l.Allow("c2") {
		t.Error("buckets must be per connection")
	}
}

func TestCommandLimiter_Forget(t *testing.T) {
	l := gateway.NewCommandLimiter(1, 1)
	l.Allow("c1")
	l.Allow("c2")

	l.Forget("c1")
	if l.Len() != 1 {
		t.Errorf("expected 1 tracked connection, got %d", l.Len())
	}
	if !l.Allow("c1") {
		t.Error("forgotten connection should start with a fresh bucket")
	}
}

func TestCommandLimiter_Disabled(t *testing.T) {
	l := gateway.NewCommandLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		if !l.Allow("c1") {
			t.Fatal("zero rate should disable limiting")
		}
	}
}

func TestCommandLimiter_ChargesPerAlias(t *testing.T) {
	l := gateway.NewCommandLimiter(0.0001, 1)

	if l.AllowN("c1", 540) {
		t.Fatal("a 540-alias command must not pass a burst of one")
	}
	if !l.AllowN("c1", 1) {
		t.Error("a rejected command should not spend tokens")
	}
	if l.AllowN("c1", 1) {
		t.Error("bucket should be empty after the single alias")
	}
}

func TestCommandLimiter_CostWithinBurst(t *testing.T) {
	l := gateway.NewCommandLimiter(1, 20)

	if !l.AllowN("c1", 15) {
		t.Fatal("15 aliases fit a burst of 20")
	}
	if l.AllowN("c1", 10) {
		t.Error("only 5 tokens remain")
	}
	if !l.AllowN("c1", 5) {
		t.Error("the remaining 5 tokens should be spendable")
	}
}
