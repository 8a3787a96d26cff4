package utils

import (
	"testing"
	"time"
)

func TestWindowStoreRecord(t *testing.T) {
	store := NewWindowStore(10 * time.Second)
	now := time.Now()
	if count := store.Record("k1", "a", now); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	store.Record("k1", "b", now.Add(1*time.Second))
	if count := store.CountSince("k1", now.Add(2*time.Second), 10*time.Second); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := store.CountSince("k1", now.Add(12*time.Second), 10*time.Second); count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}

func TestWindowStoreCountSinceIdempotent(t *testing.T) {
	store := NewWindowStore(10 * time.Second)
	now := time.Now()
	store.Record("k1", "a", now)
	store.Record("k1", "b", now.Add(time.Second))
	at := now.Add(2 * time.Second)
	first := store.CountSince("k1", at, 10*time.Second)
	second := store.CountSince("k1", at, 10*time.Second)
	if first != second {
		t.Fatalf("counts differ: %d vs %d", first, second)
	}
}

func TestWindowStoreSubWindow(t *testing.T) {
	store := NewWindowStore(30 * time.Second)
	now := time.Now()
	store.Record("k1", "a", now)
	store.Record("k1", "b", now.Add(8*time.Second))
	if count := store.CountSince("k1", now.Add(10*time.Second), 5*time.Second); count != 1 {
		t.Fatalf("expected 1 within 5s, got %d", count)
	}
	if count := store.CountSince("k1", now.Add(10*time.Second), 30*time.Second); count != 2 {
		t.Fatalf("expected 2 within 30s, got %d", count)
	}
}

func TestWindowStoreCountMatching(t *testing.T) {
	store := NewWindowStore(30 * time.Second)
	now := time.Now()
	store.Record("k1", "hello", now)
	store.Record("k1", "other", now.Add(time.Second))
	store.Record("k1", "hello", now.Add(2*time.Second))
	if count := store.CountMatching("k1", "hello", now.Add(3*time.Second), 30*time.Second); count != 2 {
		t.Fatalf("expected 2 matching, got %d", count)
	}
}

func TestWindowStorePayloads(t *testing.T) {
	store := NewWindowStore(10 * time.Second)
	now := time.Now()
	store.Record("g1", "u1", now)
	store.Record("g1", "u2", now.Add(time.Second))
	store.Record("g1", "u3", now.Add(8*time.Second))
	payloads := store.Payloads("g1", now.Add(9*time.Second), 5*time.Second)
	if len(payloads) != 1 || payloads[0] != "u3" {
		t.Fatalf("unexpected payloads: %v", payloads)
	}
}

func TestWindowStoreSweep(t *testing.T) {
	store := NewWindowStore(5 * time.Second)
	now := time.Now()
	store.Record("k1", "a", now)
	store.Record("k2", "b", now.Add(4*time.Second))
	store.Sweep(now.Add(6 * time.Second))
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 surviving key, got %d", len(store.entries))
	}
	if count := store.CountSince("k2", now.Add(6*time.Second), 5*time.Second); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}
