package torn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// Page is one decoded response of a paginated feed.
type Page struct {
	fields map[string]json.RawMessage
}

// ParsePage decodes a top-level JSON object.
func ParsePage(body []byte) (*Page, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &Page{fields: fields}, nil
}

// Records returns the elements of the first of keys holding a JSON array.
// A page with none of them is empty, not an error.
func (p *Page) Records(keys ...string) []json.RawMessage {
	for _, k := range keys {
		raw, ok := p.fields[k]
		if !ok || !isArray(raw) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			return items
		}
	}
	return nil
}

// NextCursor returns the continuation token: next_cursor when present,
// otherwise the cursor parameter of _metadata.links.next. Empty means the
// feed is exhausted.
func (p *Page) NextCursor() string {
	var next string
	if raw, ok := p.fields["next_cursor"]; ok {
		if err := json.Unmarshal(raw, &next); err == nil && next != "" {
			return next
		}
	}

	var meta struct {
		Links struct {
			Next *string `json:"next"`
		} `json:"links"`
	}
	raw, ok := p.fields["_metadata"]
	if !ok || json.Unmarshal(raw, &meta) != nil || meta.Links.Next == nil {
		return ""
	}

	u, err := url.Parse(*meta.Links.Next)
	if err != nil {
		return ""
	}
	return u.Query().Get("cursor")
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
