// Package bsky is a client library for the Bluesky / AT Protocol XRPC API
// with durable session management, call logging, write-op rate limiting,
// and cursor-based pagination.
package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goskyapi/gosky/model"
	"github.com/goskyapi/gosky/store"
)

const (
	HostnamePublic   = "public.api.bsky.app"
	HostnameEntryway = "bsky.social"
	HostnameChat     = "api.bsky.chat"
	HostnameVideo    = "video.bsky.app"
)

const (
	endpointCreateSession  = "xrpc/com.atproto.server.createSession"
	endpointRefreshSession = "xrpc/com.atproto.server.refreshSession"
	endpointCreateRecord   = "xrpc/com.atproto.repo.createRecord"
	endpointDeleteRecord   = "xrpc/com.atproto.repo.deleteRecord"
	endpointUploadBlob     = "xrpc/com.atproto.repo.uploadBlob"
	endpointGetProfile     = "xrpc/app.bsky.actor.getProfile"
	endpointGetConvoLog    = "xrpc/chat.bsky.convo.getLog"
	endpointListRecords    = "xrpc/com.atproto.repo.listRecords"
)

// endpointHosts routes endpoints that must not go to the public appview.
var endpointHosts = map[string]string{
	endpointCreateSession:  HostnameEntryway,
	endpointRefreshSession: HostnameEntryway,
	endpointGetConvoLog:    HostnameChat,
}

const dnsRetryDelay = 2 * time.Second

type authMethod int

const (
	authToken authMethod = iota
	authPassword
)

// Request describes one logical API call.
type Request struct {
	// Method is the HTTP method, GET or POST.
	Method string

	// Hostname overrides the default host resolution. Endpoint-specific
	// routing still wins; the public appview is the final fallback.
	Hostname string

	// Endpoint is the XRPC path, e.g. "xrpc/app.bsky.actor.getProfile".
	Endpoint string

	// Params are sent as the query string for GET and merged into the
	// JSON body for POST.
	Params map[string]interface{}

	// Body, when set, is sent verbatim with ContentType (blob uploads).
	Body        []byte
	ContentType string

	// Headers are extra request headers.
	Headers map[string]string

	// UseRefreshToken authenticates with the refresh token instead of the
	// access token (the session-refresh call).
	UseRefreshToken bool

	// CursorKey partitions durable cursor state for this endpoint.
	CursorKey string

	authMethod authMethod
}

// Client performs session-authenticated API calls, logging every call to
// the store. A Client is not safe for concurrent use; use one per caller.
type Client struct {
	cfg             Config
	store           store.Store
	session         *Session
	http            *http.Client
	logger          *slog.Logger
	pointsMap       map[string]int64
	overrideBudgets map[int]int64
	skipCallLogging bool

	// sleep is swapped out in tests of the DNS retry delay.
	sleep func(time.Duration)
}

// New opens the configured SQLite store and returns a client.
func New(cfg Config) (*Client, error) {
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return NewWithStore(cfg, st), nil
}

// NewWithStore returns a client backed by an already-open store.
func NewWithStore(cfg Config, st store.Store) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	points := make(map[string]int64, len(defaultWriteOpPoints))
	for k, v := range defaultWriteOpPoints {
		points[k] = v
	}
	budgets := make(map[int]int64, len(cfg.RateBudgets))
	for k, v := range cfg.RateBudgets {
		budgets[k] = v
	}

	return &Client{
		cfg:             cfg,
		store:           st,
		session:         newSession(cfg, st),
		http:            &http.Client{Timeout: 30 * time.Second},
		logger:          logger,
		pointsMap:       points,
		overrideBudgets: budgets,
		skipCallLogging: cfg.SkipCallLogging,
		sleep:           time.Sleep,
	}
}

// Store returns the client's backing store.
func (c *Client) Store() store.Store {
	return c.store
}

// Session returns the client's session manager.
func (c *Client) Session() *Session {
	return c.session
}

// Close closes the backing store.
func (c *Client) Close() error {
	return c.store.Close()
}

// Get performs a GET call.
func (c *Client) Get(ctx context.Context, req Request) (*Response, error) {
	req.Method = http.MethodGet
	return c.Call(ctx, req)
}

// Post performs a POST call.
func (c *Client) Post(ctx context.Context, req Request) (*Response, error) {
	req.Method = http.MethodPost
	return c.Call(ctx, req)
}

// Call performs one logical API call: it resolves the target host, acquires
// credentials if the endpoint needs them, applies the write-op budget gate,
// issues the request with bounded transient and auth-repair retries, and
// writes exactly one call log row for the attempt.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	hostname := c.resolveHostname(req)
	requiresAuth := hostname != HostnamePublic

	if requiresAuth && req.authMethod == authToken {
		if c.session.AuthHeader() == "" {
			if err := c.session.LoadOrCreate(ctx, c); err != nil {
				return nil, err
			}
		}
		if c.session.AuthHeader() == "" {
			return nil, fmt.Errorf("no auth header (%s) (%s): %w", hostname, req.Endpoint, ErrNotAuthenticated)
		}
	}

	cost := c.pointsMap[req.Endpoint]
	if cost > 0 {
		for _, hours := range []int{1, 24} {
			if err := c.checkWriteOpsBudget(ctx, hours, cost); err != nil {
				return nil, err
			}
		}
	}

	entry := &model.CallLog{
		Timestamp:             time.Now().UTC(),
		Hostname:              hostname,
		Endpoint:              req.Endpoint,
		Method:                req.Method,
		RequestDID:            c.session.DID(),
		CursorKey:             req.CursorKey,
		CursorPassed:          stringParam(req.Params, "cursor"),
		WriteOpPointsConsumed: cost,
	}
	if len(req.Params) > 0 {
		if b, err := json.Marshal(req.Params); err == nil {
			entry.Params = string(b)
		}
	}

	start := time.Now()
	wire, refreshed, callErr := c.doWithSessionRepair(ctx, req, hostname)
	entry.DurationMicroseconds = time.Since(start).Microseconds()
	entry.SessionWasRefreshed = refreshed

	var resp *Response
	if callErr == nil {
		resp = parseResponse(wire.body)
		entry.HTTPStatusCode = wire.status
		entry.ResponseKeys = strings.Join(resp.Keys(), ",")
		entry.CursorReceived = resp.Cursor()
		if wire.status != http.StatusOK {
			entry.ExceptionResponse = string(wire.body)
			entry.ExceptionClass = resp.Str("error")
			entry.ExceptionText = resp.Str("message")
		}
	} else {
		entry.ExceptionClass = fmt.Sprintf("%T", callErr)
		entry.ExceptionText = callErr.Error()
	}

	if !c.skipCallLogging {
		if err := c.store.SaveCallLog(ctx, entry); err != nil {
			c.logger.Warn("call log persist failed", "endpoint", req.Endpoint, "error", err)
		}
	}

	if entry.ExceptionClass != "" || entry.HTTPStatusCode >= 400 {
		c.logger.Warn("api call failed",
			"hostname", hostname,
			"endpoint", req.Endpoint,
			"status", entry.HTTPStatusCode,
			"exception_class", entry.ExceptionClass,
			"exception_text", entry.ExceptionText,
			"call_log_id", entry.ID)
	}

	if callErr != nil {
		var apiErr *APIError
		if errors.Is(callErr, ErrSessionRefreshRecursion) || errors.As(callErr, &apiErr) {
			return nil, callErr
		}
		return nil, fmt.Errorf("failed request, no response (%s %s): %w", req.Method, req.Endpoint, callErr)
	}
	if entry.HTTPStatusCode >= 400 {
		return nil, &APIError{StatusCode: entry.HTTPStatusCode, ErrorClass: entry.ExceptionClass, Log: entry}
	}
	return resp, nil
}

// resolveHostname picks the target host: endpoint-specific routing, then
// the caller's choice, then the subject's PDS, then the public appview.
func (c *Client) resolveHostname(req Request) string {
	if h, ok := endpointHosts[req.Endpoint]; ok {
		return h
	}
	if req.Hostname != "" {
		return req.Hostname
	}
	if h := c.session.pdsHost(); h != "" {
		return h
	}
	return HostnamePublic
}

type wireResponse struct {
	status int
	body   []byte
}

// doWithSessionRepair issues the request with transient retries, then
// inspects the response for the expired- or revoked-token signature. A
// revoked token gets a brand-new session, an expired one a refresh (unless
// this request is the refresh call itself); either way the request is
// retried exactly once with the repaired credentials.
func (c *Client) doWithSessionRepair(ctx context.Context, req Request, hostname string) (*wireResponse, bool, error) {
	wire, err := c.doWithTransientRetry(ctx, req, hostname)
	if err != nil {
		return nil, false, err
	}

	expired, revoked := tokenFailureSignature(wire)
	if !expired {
		return wire, false, nil
	}

	switch {
	case revoked:
		err = c.session.Create(ctx, c, model.CreateMethodLogin)
	case req.Endpoint != endpointRefreshSession:
		err = c.session.Refresh(ctx, c)
	default:
		// The refresh call itself came back expired; surface the 400.
		return wire, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	wire, err = c.doWithTransientRetry(ctx, req, hostname)
	if err != nil {
		return nil, true, err
	}
	return wire, true, nil
}

// doWithTransientRetry issues the request, retrying once after a short
// delay on DNS resolution failure and once immediately on a gateway
// timeout class status (502/504).
func (c *Client) doWithTransientRetry(ctx context.Context, req Request, hostname string) (*wireResponse, error) {
	wire, err := c.doOnce(ctx, req, hostname)

	var dnsErr *net.DNSError
	if err != nil && errors.As(err, &dnsErr) {
		c.sleep(dnsRetryDelay)
		wire, err = c.doOnce(ctx, req, hostname)
	}
	if err != nil {
		return nil, err
	}

	if wire.status == http.StatusBadGateway || wire.status == http.StatusGatewayTimeout {
		retried, err := c.doOnce(ctx, req, hostname)
		if err != nil {
			return nil, err
		}
		wire = retried
	}
	return wire, nil
}

func (c *Client) doOnce(ctx context.Context, req Request, hostname string) (*wireResponse, error) {
	httpReq, err := c.buildHTTPRequest(ctx, req, hostname)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &wireResponse{status: resp.StatusCode, body: body}, nil
}

func (c *Client) buildHTTPRequest(ctx context.Context, req Request, hostname string) (*http.Request, error) {
	base := c.cfg.BaseURL
	if base == "" {
		base = "https://" + hostname
	}
	uri := base + "/" + req.Endpoint

	var body io.Reader
	contentType := ""

	switch {
	case req.Method == http.MethodPost && req.Body != nil:
		body = bytes.NewReader(req.Body)
		contentType = req.ContentType
	case req.Method == http.MethodPost:
		payload := map[string]interface{}{}
		if req.authMethod == authPassword {
			payload["identifier"] = c.cfg.Username
			payload["password"] = c.cfg.Password
		}
		for k, v := range req.Params {
			payload[k] = v
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, uri, body)
	if err != nil {
		return nil, err
	}

	if req.Method == http.MethodGet && len(req.Params) > 0 {
		q := url.Values{}
		for k, v := range req.Params {
			q.Set(k, fmt.Sprint(v))
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if hostname != HostnamePublic && req.authMethod == authToken {
		if req.UseRefreshToken {
			httpReq.Header.Set("Authorization", "Bearer "+c.session.refreshJwt)
		} else if c.session.AuthHeader() != "" {
			httpReq.Header.Set("Authorization", c.session.AuthHeader())
		}
	}
	return httpReq, nil
}

// tokenFailureSignature reports whether the response carries the provider's
// expired-token error, and whether the token was revoked outright.
//
//	{"error":"ExpiredToken","message":"Token has expired"}
//	{"error":"ExpiredToken","message":"Token has been revoked"}
func tokenFailureSignature(wire *wireResponse) (expired, revoked bool) {
	if wire.status != http.StatusBadRequest {
		return false, false
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(wire.body, &payload); err != nil {
		return false, false
	}
	if payload.Error != "ExpiredToken" {
		return false, false
	}
	return true, payload.Message == "Token has been revoked"
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}
