package bsky

import (
	"context"
	"fmt"
	"strings"

	"github.com/goskyapi/gosky/model"
)

// GetUserProfile resolves a handle or did to a profile. Either form can be
// passed; a leading @ is stripped. Results are cached durably; pass
// forceRemote to bypass the cache.
func (c *Client) GetUserProfile(ctx context.Context, actor string, forceRemote bool) (*model.UserProfile, error) {
	actor = strings.TrimPrefix(actor, "@")

	if !forceRemote {
		cached, err := c.store.Profile(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("profile cache: %w", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	resp, err := c.Get(ctx, Request{
		Endpoint: endpointGetProfile,
		Params:   map[string]interface{}{"actor": actor},
	})
	if err != nil {
		return nil, err
	}

	profile := &model.UserProfile{
		DID:         resp.Str("did"),
		Handle:      resp.Str("handle"),
		DisplayName: resp.Str("displayName"),
	}
	if profile.DID == "" {
		return nil, fmt.Errorf("profile response for %q has no did", actor)
	}
	if err := c.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("cache profile: %w", err)
	}
	return profile, nil
}
