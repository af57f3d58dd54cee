package bsky

import (
	"context"
	"net/http"
	"testing"
)

func TestGetUserProfileCaches(t *testing.T) {
	ctx := context.Background()
	hits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if got := r.URL.Query().Get("actor"); got != "known.bsky.social" {
			t.Errorf("expected stripped actor, got %q", got)
		}
		writeJSON(w, 200, map[string]interface{}{
			"did":         "did:plc:known",
			"handle":      "known.bsky.social",
			"displayName": "Known User",
		})
	}))

	profile, err := c.GetUserProfile(ctx, "@known.bsky.social", false)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if profile.Handle != "known.bsky.social" || profile.DisplayName != "Known User" {
		t.Errorf("unexpected profile: %+v", profile)
	}

	// Second lookup, by did this time, is served from the cache.
	cached, err := c.GetUserProfile(ctx, "did:plc:known", false)
	if err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if cached.Handle != "known.bsky.social" {
		t.Errorf("unexpected cached profile: %+v", cached)
	}
	if hits != 1 {
		t.Errorf("expected 1 remote call, got %d", hits)
	}

	// forceRemote bypasses the cache.
	if _, err := c.GetUserProfile(ctx, "known.bsky.social", true); err != nil {
		t.Fatalf("remote lookup: %v", err)
	}
	if hits != 2 {
		t.Errorf("expected forced remote call, got %d hits", hits)
	}
}

func TestResponseLenientParse(t *testing.T) {
	r := parseResponse([]byte("not json at all"))
	if len(r.Keys()) != 0 {
		t.Errorf("expected empty document for unparseable body, got %v", r.Keys())
	}
	if r.Cursor() != "" {
		t.Errorf("expected no cursor, got %q", r.Cursor())
	}
}
