package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDumpExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	d := &Dump{ExpiresAt: &past}
	if !d.Expired(now) {
		t.Error("deadline one second in the past must be expired")
	}
	d = &Dump{ExpiresAt: &future}
	if d.Expired(now) {
		t.Error("deadline one second ahead must not be expired")
	}
	d = &Dump{}
	if d.Expired(now.Add(100 * 365 * 24 * time.Hour)) {
		t.Error("nil deadline never expires")
	}
}

func TestDumpRemaining(t *testing.T) {
	now := time.Now()
	future := now.Add(90 * time.Second)
	d := &Dump{ExpiresAt: &future}
	left, ok := d.Remaining(now)
	if !ok || left != 90*time.Second {
		t.Errorf("got %v ok=%v, want 90s true", left, ok)
	}
	past := now.Add(-time.Minute)
	d = &Dump{ExpiresAt: &past}
	left, ok = d.Remaining(now)
	if !ok || left != 0 {
		t.Errorf("expired remaining must clamp to zero, got %v", left)
	}
	d = &Dump{}
	if _, ok := d.Remaining(now); ok {
		t.Error("nil deadline reports no remaining time")
	}
}

func TestDumpClientIDNotSerialized(t *testing.T) {
	d := &Dump{Slug: "abc", ClientID: "secret-identity"}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "secret-identity") {
		t.Errorf("origin identity leaked into serialized dump: %s", data)
	}
}
