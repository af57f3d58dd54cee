package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/goskyapi/gosky/model"
)

// paramsMaxBytes caps the serialized request parameters stored per call.
const paramsMaxBytes = 16 * 1024

// timeLayout is fixed-width so that lexicographic ORDER BY on the stored
// text matches chronological order at sub-second resolution.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bsky_session (
		id                   TEXT PRIMARY KEY,
		access_jwt           TEXT NOT NULL,
		refresh_jwt          TEXT NOT NULL,
		username             TEXT NOT NULL,
		did                  TEXT NOT NULL,
		created_at           TEXT NOT NULL,
		create_method        INTEGER NOT NULL DEFAULT 0,
		exception            TEXT,
		pds_service_endpoint TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_session_username ON bsky_session(username, created_at DESC);

	CREATE TABLE IF NOT EXISTS api_call_log (
		id                       TEXT PRIMARY KEY,
		timestamp                TEXT NOT NULL,
		hostname                 TEXT NOT NULL,
		endpoint                 TEXT NOT NULL,
		request_did              TEXT,
		cursor_key               TEXT,
		cursor_passed            TEXT,
		cursor_received          TEXT,
		method                   TEXT,
		http_status_code         INTEGER,
		params                   TEXT,
		exception_class          TEXT,
		exception_text           TEXT,
		exception_response       TEXT,
		response_keys            TEXT,
		write_op_points_consumed INTEGER NOT NULL DEFAULT 0,
		session_was_refreshed    INTEGER NOT NULL DEFAULT 0,
		duration_microseconds    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_call_log_timestamp ON api_call_log(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_call_log_endpoint ON api_call_log(endpoint, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_call_log_points ON api_call_log(request_did, timestamp);

	CREATE TABLE IF NOT EXISTS bsky_user_profile (
		did          TEXT PRIMARY KEY,
		handle       TEXT NOT NULL UNIQUE,
		display_name TEXT,
		fetched_at   TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = s.newID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	var exc *string
	if sess.Exception != "" {
		exc = &sess.Exception
	}
	var pds *string
	if sess.PDSServiceEndpoint != "" {
		pds = &sess.PDSServiceEndpoint
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bsky_session (id, access_jwt, refresh_jwt, username, did, created_at, create_method, exception, pds_service_endpoint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AccessJwt, sess.RefreshJwt, sess.Username, sess.DID,
		sess.CreatedAt.UTC().Format(timeLayout), int(sess.CreateMethod), exc, pds)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestSession(ctx context.Context, username string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, access_jwt, refresh_jwt, username, did, created_at, create_method, exception, pds_service_endpoint
		 FROM bsky_session
		 WHERE username = ? AND exception IS NULL
		 ORDER BY created_at DESC LIMIT 1`, username)

	var sess model.Session
	var createdAt string
	var method int
	var exc, pds sql.NullString
	err := row.Scan(&sess.ID, &sess.AccessJwt, &sess.RefreshJwt, &sess.Username,
		&sess.DID, &createdAt, &method, &exc, &pds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sess.CreateMethod = model.CreateMethod(method)
	if exc.Valid {
		sess.Exception = exc.String
	}
	if pds.Valid {
		sess.PDSServiceEndpoint = pds.String
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveCallLog(ctx context.Context, l *model.CallLog) error {
	if l.ID == "" {
		l.ID = s.newID()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	if len(l.Params) > paramsMaxBytes {
		l.Params = l.Params[:paramsMaxBytes]
	}
	if len(l.ExceptionResponse) > paramsMaxBytes {
		l.ExceptionResponse = l.ExceptionResponse[:paramsMaxBytes]
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_call_log (id, timestamp, hostname, endpoint, request_did, cursor_key,
		    cursor_passed, cursor_received, method, http_status_code, params,
		    exception_class, exception_text, exception_response, response_keys,
		    write_op_points_consumed, session_was_refreshed, duration_microseconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Timestamp.UTC().Format(timeLayout), l.Hostname, l.Endpoint,
		nullable(l.RequestDID), nullable(l.CursorKey), nullable(l.CursorPassed),
		nullable(l.CursorReceived), l.Method, nullableInt(l.HTTPStatusCode),
		nullable(l.Params), nullable(l.ExceptionClass), nullable(l.ExceptionText),
		nullable(l.ExceptionResponse), nullable(l.ResponseKeys),
		l.WriteOpPointsConsumed, boolInt(l.SessionWasRefreshed),
		nullableInt64(l.DurationMicroseconds))
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCallLogs(ctx context.Context, p CallLogParams) ([]model.CallLog, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, timestamp, hostname, endpoint, request_did, cursor_key,
	    cursor_passed, cursor_received, method, http_status_code, params,
	    exception_class, exception_text, exception_response, response_keys,
	    write_op_points_consumed, session_was_refreshed, duration_microseconds
	 FROM api_call_log`
	var args []interface{}
	if p.Endpoint != "" {
		query += ` WHERE endpoint = ?`
		args = append(args, p.Endpoint)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.CallLog
	for rows.Next() {
		l, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) LatestCursor(ctx context.Context, endpoint, cursorKey string) (string, error) {
	query := `SELECT cursor_received FROM api_call_log
	 WHERE endpoint = ? AND cursor_received IS NOT NULL`
	args := []interface{}{endpoint}
	if cursorKey != "" {
		query += ` AND cursor_key = ?`
		args = append(args, cursorKey)
	}
	query += ` ORDER BY timestamp DESC LIMIT 1`

	var cursor string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select cursor: %w", err)
	}
	return cursor, nil
}

func (s *SQLiteStore) WritePointsUsed(ctx context.Context, did string, since time.Time) (int64, error) {
	var sum sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(write_op_points_consumed) FROM api_call_log
		 WHERE request_did = ? AND timestamp >= ?`,
		did, since.UTC().Format(timeLayout)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum write points: %w", err)
	}
	return sum.Int64, nil
}

func (s *SQLiteStore) Profile(ctx context.Context, actor string) (*model.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT did, handle, display_name, fetched_at FROM bsky_user_profile
		 WHERE did = ? OR handle = ? LIMIT 1`, actor, actor)

	var p model.UserProfile
	var displayName sql.NullString
	var fetchedAt string
	err := row.Scan(&p.DID, &p.Handle, &displayName, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if displayName.Valid {
		p.DisplayName = displayName.String
	}
	p.FetchedAt, _ = time.Parse(timeLayout, fetchedAt)
	return &p, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p *model.UserProfile) error {
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bsky_user_profile (did, handle, display_name, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(did) DO UPDATE SET handle = excluded.handle,
		    display_name = excluded.display_name, fetched_at = excluded.fetched_at`,
		p.DID, p.Handle, nullable(p.DisplayName), p.FetchedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCallLog(row scanner) (model.CallLog, error) {
	var l model.CallLog
	var timestamp string
	var requestDID, cursorKey, cursorPassed, cursorReceived sql.NullString
	var method, params, excClass, excText, excResponse, responseKeys sql.NullString
	var status sql.NullInt64
	var refreshed int
	var duration sql.NullInt64

	err := row.Scan(&l.ID, &timestamp, &l.Hostname, &l.Endpoint, &requestDID,
		&cursorKey, &cursorPassed, &cursorReceived, &method, &status, &params,
		&excClass, &excText, &excResponse, &responseKeys,
		&l.WriteOpPointsConsumed, &refreshed, &duration)
	if err != nil {
		return l, err
	}

	l.Timestamp, _ = time.Parse(timeLayout, timestamp)
	l.RequestDID = requestDID.String
	l.CursorKey = cursorKey.String
	l.CursorPassed = cursorPassed.String
	l.CursorReceived = cursorReceived.String
	l.Method = method.String
	l.HTTPStatusCode = int(status.Int64)
	l.Params = params.String
	l.ExceptionClass = excClass.String
	l.ExceptionText = excText.String
	l.ExceptionResponse = excResponse.String
	l.ResponseKeys = responseKeys.String
	l.SessionWasRefreshed = refreshed != 0
	l.DurationMicroseconds = duration.Int64
	return l, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullableInt64(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
