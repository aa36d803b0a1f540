package policy

import (
	"testing"
	"time"
)

func TestExpiryGateDisabledWhenZero(t *testing.T) {
	g := ExpiryGate{Seconds: 0}
	if err := g.Check(time.Now().Add(-24 * time.Hour)); err != nil {
		t.Fatalf("expected no error when disabled, got %v", err)
	}
}

func TestExpiryGateRejectsExpiredLink(t *testing.T) {
	g := ExpiryGate{Seconds: 60}
	if err := g.Check(time.Now().Add(-2 * time.Minute)); err != ErrExpired {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestExpiryGateAllowsFreshLink(t *testing.T) {
	g := ExpiryGate{Seconds: 3600}
	if err := g.Check(time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
