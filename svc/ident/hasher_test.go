package ident

import (
	"testing"
	"time"
)

var testPepper = []byte("test-pepper-must-be-at-least-32bytes-long")

func TestHasherDeterministicWithinEpoch(t *testing.T) {
	h, err := NewHasher(testPepper, time.Hour)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	defer h.Stop()

	hash1, err := h.HashID("192.168.1.100")
	if err != nil {
		t.Fatalf("HashID failed: %v", err)
	}
	hash2, err := h.HashID("192.168.1.100")
	if err != nil {
		t.Fatalf("HashID failed: %v", err)
	}
	if hash1 != hash2 {
		t.Errorf("HashID not deterministic: %s != %s", hash1, hash2)
	}
	if len(hash1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(hash1))
	}
}

func TestHasherDifferentIdentities(t *testing.T) {
	h, err := NewHasher(testPepper, time.Hour)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	defer h.Stop()

	hash1, _ := h.HashID("192.168.1.100")
	hash2, _ := h.HashID("10.0.0.50")
	if hash1 == hash2 {
		t.Errorf("different identities produced same hash: %s", hash1)
	}
}

func TestHasherKeyChangesAcrossEpochs(t *testing.T) {
	h, err := NewHasher(testPepper, time.Hour)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	defer h.Stop()

	k1 := h.deriveKey(1)
	k2 := h.deriveKey(2)
	if string(k1) == string(k2) {
		t.Error("epoch rotation must derive a different key")
	}
}

func TestHasherRejectsShortPepper(t *testing.T) {
	if _, err := NewHasher([]byte("short"), time.Hour); err == nil {
		t.Error("short pepper must be rejected")
	}
}

func TestHasherRejectsShortInterval(t *testing.T) {
	if _, err := NewHasher(testPepper, time.Minute); err != ErrInvalidInterval {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestHasherStop(t *testing.T) {
	h, err := NewHasher(testPepper, time.Hour)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	h.Stop()
	h.Stop() // idempotent
	if _, err := h.HashID("1.2.3.4"); err != ErrHasherStopped {
		t.Errorf("expected ErrHasherStopped after Stop, got %v", err)
	}
}
