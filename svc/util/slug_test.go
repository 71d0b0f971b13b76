package util

import (
	"strings"
	"testing"
)

func neverExists(string) (bool, error) { return false, nil }

func TestGenSlugFormat(t *testing.T) {
	slug, err := GenSlug(neverExists)
	if err != nil {
		t.Fatalf("GenSlug failed: %v", err)
	}
	if len(slug) != SlugLen {
		t.Errorf("expected length %d, got %d (%q)", SlugLen, len(slug), slug)
	}
	for _, c := range slug {
		if !strings.ContainsRune(base62Chars, c) {
			t.Errorf("slug contains char outside alphabet: %q", c)
		}
	}
}

func TestGenSlugUniqueness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 100k slug generation in short mode")
	}
	seen := make(map[string]struct{}, 100000)
	for i := 0; i < 100000; i++ {
		slug, err := GenSlug(neverExists)
		if err != nil {
			t.Fatalf("GenSlug failed at %d: %v", i, err)
		}
		if _, dup := seen[slug]; dup {
			t.Fatalf("duplicate slug after %d generations: %q", i, slug)
		}
		seen[slug] = struct{}{}
	}
}

func TestGenSlugRetriesOnCollision(t *testing.T) {
	calls := 0
	slug, err := GenSlug(func(string) (bool, error) {
		calls++
		// First two candidates are reported as taken.
		return calls <= 2, nil
	})
	if err != nil {
		t.Fatalf("GenSlug failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 probes, got %d", calls)
	}
	if slug == "" {
		t.Error("expected a slug after retries")
	}
}

func TestGenSlugGivesUpAfterRetries(t *testing.T) {
	calls := 0
	_, err := GenSlug(func(string) (bool, error) {
		calls++
		return true, nil
	})
	if err == nil {
		t.Fatal("expected error when every candidate collides")
	}
	if calls != 5 {
		t.Errorf("expected 5 probes before giving up, got %d", calls)
	}
}
