package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"chartsense/backend-go/internal/models"
)

func TestGateReturnsModelVerdictAndCaches(t *testing.T) {
	m := &fakeModel{verify: models.Verification{IsValid: false, Reason: "This is a 4H chart."}}
	g := NewGate(m, NewMemoryCache(), time.Hour, false)

	for i := 0; i < 2; i++ {
		v, degraded := g.Verify(context.Background(), img("abc"), models.TF1H)
		if degraded {
			t.Fatal("expected a real verdict")
		}
		if v.IsValid || v.Reason != "This is a 4H chart." {
			t.Fatalf("unexpected verdict: %+v", v)
		}
	}
	if m.verifyCalls != 1 {
		t.Fatalf("expected one model call, got %d", m.verifyCalls)
	}
}

func TestGateCacheIsPerSlot(t *testing.T) {
	m := &fakeModel{verify: models.Verification{IsValid: true, Reason: "ok"}}
	g := NewGate(m, NewMemoryCache(), time.Hour, false)
	g.Verify(context.Background(), img("abc"), models.TF1H)
	g.Verify(context.Background(), img("abc"), models.TF15M)
	if m.verifyCalls != 2 {
		t.Fatalf("expected two model calls, got %d", m.verifyCalls)
	}
}

func TestGateDegradesOpen(t *testing.T) {
	quota := &UpstreamError{Status: 429, Body: "quota"}
	m := &fakeModel{verifyErr: quota}
	g := NewGate(m, nil, 0, false)
	v, degraded := g.Verify(context.Background(), img("abc"), models.TF3M)
	if !degraded || !v.IsValid || v.Reason != reasonSkippedTraffic {
		t.Fatalf("unexpected quota fallback: %+v degraded=%v", v, degraded)
	}

	m.verifyErr = errors.New("connection reset")
	v, _ = g.Verify(context.Background(), img("abc"), models.TF3M)
	if !v.IsValid || v.Reason != reasonUnavailable {
		t.Fatalf("unexpected failure fallback: %+v", v)
	}
}

func TestGateFailClosed(t *testing.T) {
	m := &fakeModel{verifyErr: ErrInvalidFormat}
	g := NewGate(m, NewMemoryCache(), time.Hour, true)
	v, degraded := g.Verify(context.Background(), img("abc"), models.TF1H)
	if !degraded || v.IsValid || v.Reason != reasonClosedUnavailable {
		t.Fatalf("unexpected fail-closed verdict: %+v", v)
	}
	// Degraded verdicts are never cached.
	m.verifyErr = nil
	m.verify = models.Verification{IsValid: true, Reason: "1H chart"}
	v, _ = g.Verify(context.Background(), img("abc"), models.TF1H)
	if !v.IsValid {
		t.Fatal("expected fresh verdict after recovery")
	}
}
