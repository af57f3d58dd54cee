package bsky

import (
	"context"
	"time"
)

// NewPost builds the wire record for a plain text post.
func NewPost(text string) map[string]interface{} {
	return map[string]interface{}{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
}

// CreateRecord writes a record into the subject's repository. Costs write-op
// points.
func (c *Client) CreateRecord(ctx context.Context, collection string, record map[string]interface{}) (*Response, error) {
	if err := c.session.LoadOrCreate(ctx, c); err != nil {
		return nil, err
	}
	return c.Post(ctx, Request{
		Hostname: HostnameEntryway,
		Endpoint: endpointCreateRecord,
		Params: map[string]interface{}{
			"repo":       c.session.DID(),
			"collection": collection,
			"record":     record,
		},
	})
}

// DeleteRecord removes a record from the subject's repository. Costs
// write-op points.
func (c *Client) DeleteRecord(ctx context.Context, collection, rkey string) (*Response, error) {
	if err := c.session.LoadOrCreate(ctx, c); err != nil {
		return nil, err
	}
	return c.Post(ctx, Request{
		Hostname: HostnameEntryway,
		Endpoint: endpointDeleteRecord,
		Params: map[string]interface{}{
			"repo":       c.session.DID(),
			"collection": collection,
			"rkey":       rkey,
		},
	})
}

// CreatePost publishes a feed post.
func (c *Client) CreatePost(ctx context.Context, record map[string]interface{}) (*Response, error) {
	return c.CreateRecord(ctx, "app.bsky.feed.post", record)
}

// DeletePost deletes a feed post by record key.
func (c *Client) DeletePost(ctx context.Context, rkey string) (*Response, error) {
	return c.DeleteRecord(ctx, "app.bsky.feed.post", rkey)
}

// UploadBlob uploads raw media bytes, returning the blob reference for use
// in a record embed.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimetype string) (*Response, error) {
	return c.Post(ctx, Request{
		Hostname:    HostnameEntryway,
		Endpoint:    endpointUploadBlob,
		Body:        data,
		ContentType: mimetype,
	})
}

// GetConvoLogs fetches chat conversation log entries newer than the last
// durably recorded cursor.
func (c *Client) GetConvoLogs(ctx context.Context) (*Response, error) {
	return c.Paginate(ctx, PagedEndpoint{
		Endpoint:       endpointGetConvoLog,
		Hostname:       HostnameChat,
		CollectionAttr: "logs",
		InitialCursor:  ZeroCursor,
	}, nil)
}

// ListRecords pages through a collection in the subject's repository.
// Cursor state is partitioned per collection, so interleaved listings of
// different collections resume independently.
func (c *Client) ListRecords(ctx context.Context, collection string) (*Response, error) {
	if err := c.session.LoadOrCreate(ctx, c); err != nil {
		return nil, err
	}
	return c.Paginate(ctx, PagedEndpoint{
		Endpoint:       endpointListRecords,
		Hostname:       HostnameEntryway,
		CollectionAttr: "records",
		CursorKey: func(params map[string]interface{}) string {
			return stringParam(params, "collection")
		},
	}, map[string]interface{}{
		"repo":       c.session.DID(),
		"collection": collection,
	})
}

// ListFollows lists the subject's follow records.
func (c *Client) ListFollows(ctx context.Context) (*Response, error) {
	return c.ListRecords(ctx, "app.bsky.graph.follow")
}

// ListBlocks lists the subject's block records.
func (c *Client) ListBlocks(ctx context.Context) (*Response, error) {
	return c.ListRecords(ctx, "app.bsky.graph.block")
}
