package bsky

import (
	"encoding/json"
	"sort"
)

// Response is the parsed body of an API call: a loosely-typed JSON document
// with accessor helpers. A body that fails to parse yields an empty
// document rather than an error.
type Response struct {
	data map[string]interface{}
}

func parseResponse(body []byte) *Response {
	data := map[string]interface{}{}
	if err := json.Unmarshal(body, &data); err != nil {
		return &Response{data: map[string]interface{}{}}
	}
	return &Response{data: data}
}

// Map returns the underlying document.
func (r *Response) Map() map[string]interface{} {
	return r.data
}

// Keys returns the document's top-level field names, sorted.
func (r *Response) Keys() []string {
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a top-level field.
func (r *Response) Get(key string) (interface{}, bool) {
	v, ok := r.data[key]
	return v, ok
}

// Str returns a top-level string field, or "" if absent or not a string.
func (r *Response) Str(key string) string {
	s, _ := r.data[key].(string)
	return s
}

// Int returns a top-level numeric field truncated to int64, or 0 if absent
// or not a number.
func (r *Response) Int(key string) int64 {
	n, _ := r.data[key].(float64)
	return int64(n)
}

// Cursor returns the pagination cursor the server sent, if any.
func (r *Response) Cursor() string {
	return r.Str("cursor")
}

// Collection returns a top-level array field, such as "records", "logs",
// or "feed".
func (r *Response) Collection(attr string) []interface{} {
	items, _ := r.data[attr].([]interface{})
	return items
}

func (r *Response) setCollection(attr string, items []interface{}) {
	r.data[attr] = items
}
