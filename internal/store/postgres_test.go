package store

import (
	"encoding/hex"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"route.updated"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	if computeDedupKey(body) != got {
		t.Fatalf("hash key not stable")
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected")
	}
	if v := nullIfEmpty("a"); v != "a" {
		t.Fatalf("non-empty passthrough expected, got %v", v)
	}
}
