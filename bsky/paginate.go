package bsky

import (
	"context"
	"fmt"
	"net/http"
)

// ZeroCursor is the protocol's initial cursor sentinel for endpoints that
// reject an absent cursor parameter.
// https://github.com/bluesky-social/atproto/issues/2760
const ZeroCursor = "2222222222222"

// iterationMax is the hard pagination ceiling; exceeding it fails the run
// rather than looping against a misbehaving endpoint.
const iterationMax = 1000

// PagedEndpoint describes a cursor-paginated endpoint.
type PagedEndpoint struct {
	// Endpoint is the XRPC path.
	Endpoint string

	// Hostname overrides host resolution for the endpoint.
	Hostname string

	// CollectionAttr is the response field holding the page's items,
	// e.g. "records", "logs", "feed".
	CollectionAttr string

	// InitialCursor is the sentinel used when no cursor was ever durably
	// recorded for the endpoint.
	InitialCursor string

	// CursorKey partitions durable cursor state by request, e.g. per
	// collection for repo listings. May be nil.
	CursorKey func(params map[string]interface{}) string

	// MaxPages stops the run after this many pages; 0 means no page
	// limit short of the hard ceiling.
	MaxPages int
}

// Paginate drives repeated calls to a paged endpoint. When the caller
// supplies no cursor, the run resumes from the latest cursor durably
// recorded for the (endpoint, cursor key) pair, falling back to the
// endpoint's initial sentinel. Pages are fetched until the server echoes an
// unchanged cursor, returns none, or the page limit is reached; all pages'
// collection items are merged into the first response in order.
func (c *Client) Paginate(ctx context.Context, ep PagedEndpoint, params map[string]interface{}) (*Response, error) {
	if params == nil {
		params = map[string]interface{}{}
	}

	cursorKey := ""
	if ep.CursorKey != nil {
		cursorKey = ep.CursorKey(params)
	}

	if _, ok := params["cursor"]; !ok {
		cursor, err := c.store.LatestCursor(ctx, ep.Endpoint, cursorKey)
		if err != nil {
			return nil, fmt.Errorf("load cursor: %w", err)
		}
		if cursor == "" {
			cursor = ep.InitialCursor
		}
		if cursor != "" {
			params["cursor"] = cursor
		}
	}

	var pages []*Response
	iterations := 0
	for {
		iterations++
		if iterations > iterationMax {
			return nil, fmt.Errorf("tried to paginate through too many pages (%d): %w",
				iterationMax, ErrExcessiveIteration)
		}

		resp, err := c.Call(ctx, Request{
			Method:    http.MethodGet,
			Hostname:  ep.Hostname,
			Endpoint:  ep.Endpoint,
			Params:    params,
			CursorKey: cursorKey,
		})
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp)

		sent := stringParam(params, "cursor")
		received := resp.Cursor()
		if received == "" || received == sent {
			break
		}
		if ep.MaxPages > 0 && len(pages) >= ep.MaxPages {
			break
		}
		params["cursor"] = received
	}

	return mergePages(pages, ep.CollectionAttr), nil
}

// mergePages concatenates every page's collection items into the first
// response, preserving page order. Scalar fields come from the first page.
func mergePages(pages []*Response, collectionAttr string) *Response {
	first := pages[0]
	if collectionAttr == "" || len(pages) == 1 {
		return first
	}

	combined := first.Collection(collectionAttr)
	for _, page := range pages[1:] {
		combined = append(combined, page.Collection(collectionAttr)...)
	}
	first.setCollection(collectionAttr, combined)
	return first
}
