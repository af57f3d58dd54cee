package bsky

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goskyapi/gosky/model"
	"github.com/goskyapi/gosky/store"
)

// Session owns the bearer credentials for one authenticated subject. A
// create or refresh always inserts a new session row; the newest row with
// no recorded exception is the live one.
type Session struct {
	store        store.Store
	username     string
	password     string
	ignoreCached bool

	accessJwt   string
	refreshJwt  string
	did         string
	pdsEndpoint string
	authHeader  string

	// refreshing guards against reentrant refresh.
	refreshing bool
}

func newSession(cfg Config, st store.Store) *Session {
	return &Session{
		store:        st,
		username:     cfg.Username,
		password:     cfg.Password,
		ignoreCached: cfg.IgnoreCachedSession,
	}
}

// AuthHeader returns the current bearer Authorization header value, or ""
// when no session is live.
func (s *Session) AuthHeader() string {
	return s.authHeader
}

// DID returns the authenticated subject identifier, or "" when no session
// is live.
func (s *Session) DID() string {
	return s.did
}

// LoadOrCreate returns immediately if credentials are already cached,
// otherwise reloads the newest non-errored persisted session for the
// configured username, otherwise performs a fresh login.
func (s *Session) LoadOrCreate(ctx context.Context, c *Client) error {
	if s.authHeader != "" {
		return nil
	}

	if !s.ignoreCached && s.username != "" {
		sess, err := s.store.LatestSession(ctx, s.username)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess != nil {
			s.accessJwt = sess.AccessJwt
			s.refreshJwt = sess.RefreshJwt
			s.did = sess.DID
			s.pdsEndpoint = sess.PDSServiceEndpoint
			s.setAuthHeader()
			return nil
		}
	}

	return s.Create(ctx, c, model.CreateMethodLogin)
}

// Create issues the provider's session-create or session-refresh call,
// captures the tokens and subject id, persists a new session row, and sets
// the active bearer header.
func (s *Session) Create(ctx context.Context, c *Client, method model.CreateMethod) error {
	var resp *Response
	var err error

	switch method {
	case model.CreateMethodLogin:
		if s.username == "" || s.password == "" {
			return fmt.Errorf("no bsky credentials set: %w", ErrNotAuthenticated)
		}
		resp, err = c.Call(ctx, Request{
			Method:     "POST",
			Hostname:   HostnameEntryway,
			Endpoint:   endpointCreateSession,
			authMethod: authPassword,
		})
	case model.CreateMethodRefresh:
		resp, err = c.Call(ctx, Request{
			Method:          "POST",
			Hostname:        HostnameEntryway,
			Endpoint:        endpointRefreshSession,
			UseRefreshToken: true,
		})
	}
	if err != nil {
		return err
	}

	s.accessJwt = resp.Str("accessJwt")
	s.refreshJwt = resp.Str("refreshJwt")
	s.did = resp.Str("did")
	if pds := pdsServiceEndpoint(resp); pds != "" {
		s.pdsEndpoint = pds
	}
	s.setAuthHeader()

	sess := &model.Session{
		AccessJwt:          s.accessJwt,
		RefreshJwt:         s.refreshJwt,
		Username:           s.username,
		DID:                s.did,
		CreatedAt:          time.Now().UTC(),
		CreateMethod:       method,
		PDSServiceEndpoint: s.pdsEndpoint,
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Refresh renews the session with the refresh token. A reentrant refresh
// fails fast instead of recursing; an expired refresh token fails with no
// further fallback.
func (s *Session) Refresh(ctx context.Context, c *Client) error {
	if s.refreshing {
		return fmt.Errorf("refresh already in progress: %w", ErrSessionRefreshRecursion)
	}
	s.refreshing = true
	defer func() { s.refreshing = false }()

	return s.Create(ctx, c, model.CreateMethodRefresh)
}

func (s *Session) setAuthHeader() {
	s.authHeader = "Bearer " + s.accessJwt
}

// pdsHost returns the hostname of the subject's personal data service, or
// "" if unknown.
func (s *Session) pdsHost() string {
	if s.pdsEndpoint == "" {
		return ""
	}
	u, err := url.Parse(s.pdsEndpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

// pdsServiceEndpoint extracts the #atproto_pds service endpoint from a
// session response's didDoc.
func pdsServiceEndpoint(resp *Response) string {
	didDoc, _ := resp.data["didDoc"].(map[string]interface{})
	services, _ := didDoc["service"].([]interface{})
	for _, svc := range services {
		m, _ := svc.(map[string]interface{})
		if id, _ := m["id"].(string); id == "#atproto_pds" {
			endpoint, _ := m["serviceEndpoint"].(string)
			return endpoint
		}
	}
	return ""
}
