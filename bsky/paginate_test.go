package bsky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestPaginateMergesAndResumes(t *testing.T) {
	ctx := context.Background()
	pages := map[string]map[string]interface{}{
		"":  {"feed": []interface{}{"p1", "p2"}, "cursor": "a", "title": "first"},
		"a": {"feed": []interface{}{"p3"}, "cursor": "b", "title": "second"},
		"b": {"feed": []interface{}{}, "cursor": "b", "title": "third"},
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, pages[r.URL.Query().Get("cursor")])
	}))

	ep := PagedEndpoint{
		Endpoint:       "xrpc/app.bsky.feed.getFeed",
		CollectionAttr: "feed",
	}

	resp, err := c.Paginate(ctx, ep, nil)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if got := len(resp.Collection("feed")); got != 3 {
		t.Errorf("expected 3 merged items, got %d", got)
	}
	// Scalar fields come from the first page only.
	if resp.Str("title") != "first" {
		t.Errorf("expected first page scalars, got %q", resp.Str("title"))
	}

	// A second run resumes from the durably recorded cursor, not from
	// scratch, and a completed pagination with no new data yields zero
	// additional records.
	resp, err = c.Paginate(ctx, ep, nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := len(resp.Collection("feed")); got != 0 {
		t.Errorf("expected 0 new items on resume, got %d", got)
	}
}

func TestPaginateUnchangedCursorStopsAfterOnePage(t *testing.T) {
	ctx := context.Background()
	hits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		// Echo whatever cursor was sent: no progress.
		writeJSON(w, 200, map[string]interface{}{
			"logs":   []interface{}{},
			"cursor": r.URL.Query().Get("cursor"),
		})
	}))

	resp, err := c.Paginate(ctx, PagedEndpoint{
		Endpoint:       "xrpc/app.bsky.feed.getFeed",
		CollectionAttr: "logs",
		InitialCursor:  ZeroCursor,
	}, nil)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected exactly 1 page fetched, got %d", hits)
	}
	if resp.Cursor() != ZeroCursor {
		t.Errorf("expected echoed sentinel cursor, got %q", resp.Cursor())
	}
}

func TestPaginateIterationCeiling(t *testing.T) {
	ctx := context.Background()
	hits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(w, 200, map[string]interface{}{
			"feed":   []interface{}{"x"},
			"cursor": fmt.Sprintf("c%d", hits),
		})
	}))
	c.skipCallLogging = true

	_, err := c.Paginate(ctx, PagedEndpoint{
		Endpoint:       "xrpc/app.bsky.feed.getFeed",
		CollectionAttr: "feed",
	}, nil)
	if !errors.Is(err, ErrExcessiveIteration) {
		t.Fatalf("expected ErrExcessiveIteration, got %v", err)
	}
	if hits != iterationMax {
		t.Errorf("expected %d fetches before failing, got %d", iterationMax, hits)
	}
}

func TestPaginateMaxPages(t *testing.T) {
	ctx := context.Background()
	hits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(w, 200, map[string]interface{}{
			"feed":   []interface{}{"x"},
			"cursor": fmt.Sprintf("c%d", hits),
		})
	}))

	resp, err := c.Paginate(ctx, PagedEndpoint{
		Endpoint:       "xrpc/app.bsky.feed.getFeed",
		CollectionAttr: "feed",
		MaxPages:       2,
	}, nil)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if hits != 2 {
		t.Errorf("expected 2 pages, got %d", hits)
	}
	if got := len(resp.Collection("feed")); got != 2 {
		t.Errorf("expected 2 merged items, got %d", got)
	}
}

func TestPaginateManualCursorWins(t *testing.T) {
	ctx := context.Background()
	var firstCursor string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if firstCursor == "" {
			firstCursor = r.URL.Query().Get("cursor")
		}
		writeJSON(w, 200, map[string]interface{}{
			"feed":   []interface{}{},
			"cursor": r.URL.Query().Get("cursor"),
		})
	}))

	ep := PagedEndpoint{Endpoint: "xrpc/app.bsky.feed.getFeed", CollectionAttr: "feed"}

	// Record a durable cursor first.
	if _, err := c.Paginate(ctx, ep, map[string]interface{}{"cursor": "durable"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	firstCursor = ""
	if _, err := c.Paginate(ctx, ep, map[string]interface{}{"cursor": "manual"}); err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if firstCursor != "manual" {
		t.Errorf("manual cursor must not be overridden, sent %q", firstCursor)
	}
}

func TestPaginatePerKeyCursors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collection := r.URL.Query().Get("collection")
		writeJSON(w, 200, map[string]interface{}{
			"records": []interface{}{},
			"cursor":  "cursor-" + collection,
		})
	}))

	ep := PagedEndpoint{
		Endpoint:       "xrpc/com.atproto.repo.listRecords",
		CollectionAttr: "records",
		CursorKey: func(params map[string]interface{}) string {
			return stringParam(params, "collection")
		},
	}

	if _, err := c.Paginate(ctx, ep, map[string]interface{}{"collection": "follow"}); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if _, err := c.Paginate(ctx, ep, map[string]interface{}{"collection": "block"}); err != nil {
		t.Fatalf("block: %v", err)
	}

	followCursor, _ := c.Store().LatestCursor(ctx, ep.Endpoint, "follow")
	blockCursor, _ := c.Store().LatestCursor(ctx, ep.Endpoint, "block")
	if followCursor != "cursor-follow" || blockCursor != "cursor-block" {
		t.Errorf("expected independent cursors per key, got %q and %q", followCursor, blockCursor)
	}
}
