package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goskyapi/gosky/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionHistoryAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &model.Session{AccessJwt: "a1", RefreshJwt: "r1", Username: "alice", DID: "did:plc:x"}
	if err := s.SaveSession(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := &model.Session{AccessJwt: "a2", RefreshJwt: "r2", Username: "alice", DID: "did:plc:x",
		CreateMethod: model.CreateMethodRefresh, CreatedAt: time.Now().UTC().Add(time.Second)}
	if err := s.SaveSession(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.ID == second.ID {
		t.Error("expected distinct rows for each save")
	}

	latest, err := s.LatestSession(ctx, "alice")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.AccessJwt != "a2" {
		t.Errorf("expected newest row, got access token %q", latest.AccessJwt)
	}
	if latest.CreateMethod != model.CreateMethodRefresh {
		t.Errorf("expected refresh method, got %d", latest.CreateMethod)
	}
}

func TestLatestSessionSkipsErroredRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	good := &model.Session{AccessJwt: "good", RefreshJwt: "r", Username: "alice", DID: "did:plc:x"}
	s.SaveSession(ctx, good)
	bad := &model.Session{AccessJwt: "bad", RefreshJwt: "r", Username: "alice", DID: "did:plc:x",
		Exception: "ExpiredToken", CreatedAt: time.Now().UTC().Add(time.Second)}
	s.SaveSession(ctx, bad)

	latest, err := s.LatestSession(ctx, "alice")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.AccessJwt != "good" {
		t.Errorf("expected errored row to be skipped, got %+v", latest)
	}
}

func TestLatestSessionNone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	latest, err := s.LatestSession(ctx, "nobody")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil, got %+v", latest)
	}
}

func TestSaveAndListCallLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := &model.CallLog{
		Hostname:              "bsky.social",
		Endpoint:              "xrpc/com.atproto.repo.createRecord",
		Method:                "POST",
		RequestDID:            "did:plc:x",
		HTTPStatusCode:        200,
		WriteOpPointsConsumed: 3,
		SessionWasRefreshed:   true,
		DurationMicroseconds:  1234,
	}
	if err := s.SaveCallLog(ctx, l); err != nil {
		t.Fatalf("save: %v", err)
	}
	if l.ID == "" {
		t.Error("expected non-empty ID")
	}

	logs, err := s.ListCallLogs(ctx, CallLogParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(logs))
	}
	got := logs[0]
	if got.HTTPStatusCode != 200 || got.WriteOpPointsConsumed != 3 || !got.SessionWasRefreshed {
		t.Errorf("row not persisted correctly: %+v", got)
	}

	filtered, _ := s.ListCallLogs(ctx, CallLogParams{Endpoint: "xrpc/other"})
	if len(filtered) != 0 {
		t.Errorf("expected 0 filtered rows, got %d", len(filtered))
	}
}

func TestParamsSizeCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := &model.CallLog{
		Hostname: "bsky.social", Endpoint: "xrpc/test", Method: "POST",
		Params: strings.Repeat("x", 64*1024),
	}
	if err := s.SaveCallLog(ctx, l); err != nil {
		t.Fatalf("save: %v", err)
	}

	logs, _ := s.ListCallLogs(ctx, CallLogParams{})
	if len(logs[0].Params) != paramsMaxBytes {
		t.Errorf("expected params capped at %d bytes, got %d", paramsMaxBytes, len(logs[0].Params))
	}
}

func TestLatestCursorPerKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	endpoint := "xrpc/com.atproto.repo.listRecords"
	base := time.Now().UTC()
	rows := []model.CallLog{
		{Endpoint: endpoint, CursorKey: "app.bsky.graph.follow", CursorReceived: "f1", Timestamp: base},
		{Endpoint: endpoint, CursorKey: "app.bsky.graph.block", CursorReceived: "b1", Timestamp: base.Add(time.Second)},
		{Endpoint: endpoint, CursorKey: "app.bsky.graph.follow", CursorReceived: "f2", Timestamp: base.Add(2 * time.Second)},
		{Endpoint: endpoint, CursorKey: "app.bsky.graph.follow", Timestamp: base.Add(3 * time.Second)},
	}
	for i := range rows {
		rows[i].Hostname = "bsky.social"
		rows[i].Method = "GET"
		if err := s.SaveCallLog(ctx, &rows[i]); err != nil {
			t.Fatalf("save row %d: %v", i, err)
		}
	}

	follow, err := s.LatestCursor(ctx, endpoint, "app.bsky.graph.follow")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if follow != "f2" {
		t.Errorf("expected f2 (newest non-null for key), got %q", follow)
	}

	block, _ := s.LatestCursor(ctx, endpoint, "app.bsky.graph.block")
	if block != "b1" {
		t.Errorf("expected b1, got %q", block)
	}

	none, _ := s.LatestCursor(ctx, "xrpc/never.called", "")
	if none != "" {
		t.Errorf("expected empty cursor, got %q", none)
	}
}

func TestWritePointsUsedWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	rows := []model.CallLog{
		{RequestDID: "did:plc:x", WriteOpPointsConsumed: 3, Timestamp: now.Add(-10 * time.Minute)},
		{RequestDID: "did:plc:x", WriteOpPointsConsumed: 1, Timestamp: now.Add(-30 * time.Minute)},
		{RequestDID: "did:plc:x", WriteOpPointsConsumed: 3, Timestamp: now.Add(-2 * time.Hour)},
		{RequestDID: "did:plc:other", WriteOpPointsConsumed: 3, Timestamp: now.Add(-5 * time.Minute)},
	}
	for i := range rows {
		rows[i].Hostname = "bsky.social"
		rows[i].Endpoint = "xrpc/com.atproto.repo.createRecord"
		rows[i].Method = "POST"
		if err := s.SaveCallLog(ctx, &rows[i]); err != nil {
			t.Fatalf("save row %d: %v", i, err)
		}
	}

	hour, err := s.WritePointsUsed(ctx, "did:plc:x", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if hour != 4 {
		t.Errorf("expected 4 points in trailing hour, got %d", hour)
	}

	day, _ := s.WritePointsUsed(ctx, "did:plc:x", now.Add(-24*time.Hour))
	if day != 7 {
		t.Errorf("expected 7 points in trailing day, got %d", day)
	}

	other, _ := s.WritePointsUsed(ctx, "did:plc:nobody", now.Add(-24*time.Hour))
	if other != 0 {
		t.Errorf("expected 0 points for unused subject, got %d", other)
	}
}

func TestProfileCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := &model.UserProfile{DID: "did:plc:x", Handle: "alice.bsky.social", DisplayName: "Alice"}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	byDID, err := s.Profile(ctx, "did:plc:x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if byDID == nil || byDID.Handle != "alice.bsky.social" {
		t.Errorf("lookup by did failed: %+v", byDID)
	}

	byHandle, _ := s.Profile(ctx, "alice.bsky.social")
	if byHandle == nil || byHandle.DID != "did:plc:x" {
		t.Errorf("lookup by handle failed: %+v", byHandle)
	}

	// Upsert replaces, not duplicates
	p2 := &model.UserProfile{DID: "did:plc:x", Handle: "alice.bsky.social", DisplayName: "Alice B"}
	if err := s.SaveProfile(ctx, p2); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	updated, _ := s.Profile(ctx, "did:plc:x")
	if updated.DisplayName != "Alice B" {
		t.Errorf("expected updated display name, got %q", updated.DisplayName)
	}

	missing, err := s.Profile(ctx, "nobody")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing profile, got %+v", missing)
	}
}
