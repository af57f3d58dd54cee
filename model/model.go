// Package model defines the persisted row types: sessions, call log entries,
// and cached user profiles.
package model

import "time"

// CreateMethod records how a session row came to exist.
type CreateMethod int

const (
	// CreateMethodLogin is a fresh password-grant login.
	CreateMethodLogin CreateMethod = iota
	// CreateMethodRefresh is a refresh-token renewal of an existing session.
	CreateMethodRefresh
)

// Session is one row of bearer credentials for an authenticated subject.
// Rows are append-only: every create or refresh inserts a new row and the
// old ones remain for audit. The live session is the newest row for the
// username with no recorded exception.
type Session struct {
	ID                 string       `json:"id"`
	AccessJwt          string       `json:"-"`
	RefreshJwt         string       `json:"-"`
	Username           string       `json:"username"`
	DID                string       `json:"did"`
	CreatedAt          time.Time    `json:"created_at"`
	CreateMethod       CreateMethod `json:"create_method"`
	Exception          string       `json:"exception,omitempty"`
	PDSServiceEndpoint string       `json:"pds_service_endpoint,omitempty"`
}

// CallLog is one row per top-level API call actually attempted. Failure
// columns are populated only when the call did not cleanly succeed; write
// points are recorded regardless of outcome.
type CallLog struct {
	ID                    string    `json:"id"`
	Timestamp             time.Time `json:"timestamp"`
	Hostname              string    `json:"hostname"`
	Endpoint              string    `json:"endpoint"`
	RequestDID            string    `json:"request_did,omitempty"`
	CursorKey             string    `json:"cursor_key,omitempty"`
	CursorPassed          string    `json:"cursor_passed,omitempty"`
	CursorReceived        string    `json:"cursor_received,omitempty"`
	Method                string    `json:"method"`
	HTTPStatusCode        int       `json:"http_status_code,omitempty"`
	Params                string    `json:"params,omitempty"`
	ExceptionClass        string    `json:"exception_class,omitempty"`
	ExceptionText         string    `json:"exception_text,omitempty"`
	ExceptionResponse     string    `json:"exception_response,omitempty"`
	ResponseKeys          string    `json:"response_keys,omitempty"`
	WriteOpPointsConsumed int64     `json:"write_op_points_consumed"`
	SessionWasRefreshed   bool      `json:"session_was_refreshed"`
	DurationMicroseconds  int64     `json:"duration_microseconds,omitempty"`
}

// UserProfile is a cached profile lookup result.
type UserProfile struct {
	DID         string    `json:"did"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}
