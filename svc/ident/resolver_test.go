package ident

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestResolverPublicIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, 2*time.Second)
	ip, err := res.PublicIP(context.Background())
	if err != nil {
		t.Fatalf("PublicIP failed: %v", err)
	}
	if ip != "203.0.113.7" {
		t.Errorf("expected 203.0.113.7, got %s", ip)
	}
}

func TestResolverNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, 2*time.Second)
	if _, err := res.PublicIP(context.Background()); errors.Cause(err) != ErrResolutionFailed {
		t.Errorf("expected ErrResolutionFailed, got %v", err)
	}
}

func TestResolverBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"not-an-ip"}`))
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, 2*time.Second)
	if _, err := res.PublicIP(context.Background()); errors.Cause(err) != ErrResolutionFailed {
		t.Errorf("expected ErrResolutionFailed, got %v", err)
	}
}

func TestResolverTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, 50*time.Millisecond)
	if _, err := res.PublicIP(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
}

func TestIsLocal(t *testing.T) {
	cases := []struct {
		ip    string
		local bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"0.0.0.0", true},
		{"garbage", true},
		{"", true},
		{"203.0.113.7", false},
		{"192.168.1.5", false},
	}
	for _, c := range cases {
		if got := IsLocal(c.ip); got != c.local {
			t.Errorf("IsLocal(%q) = %v, want %v", c.ip, got, c.local)
		}
	}
}
