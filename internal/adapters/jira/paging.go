package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"
)

// Resource describes one paged collection endpoint.
type Resource struct {
	Name  string // used in logs and errors
	Path  string
	Items string // JSON key holding the page items: "values" or "issues"
}

// Record is one raw item of a collection.
type Record struct {
	ID  string
	Raw json.RawMessage
}

type page struct {
	StartAt int                        `json:"startAt"`
	Total   *int                       `json:"total"`
	IsLast  *bool                      `json:"isLast"`
	Items   map[string]json.RawMessage `json:"-"`
}

func (p *page) UnmarshalJSON(b []byte) error {
	type meta page
	if err := json.Unmarshal(b, (*meta)(p)); err != nil {
		return err
	}
	return json.Unmarshal(b, &p.Items)
}

// FetchCollection walks resource page by page and yields its records in
// server order. Paging stops on an explicit isLast, else on reaching total,
// else on a page shorter than pageSize; servers may cap maxResults, so a
// short page alone does not stop paging when isLast or total is present. An
// empty page always stops. A record whose id was already yielded is dropped
// with a warning. On failure the error is yielded once and the
// sequence ends; calling FetchCollection again starts over from offset zero.
func (c *Client) FetchCollection(ctx context.Context, res Resource, query url.Values, pageSize int) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		seen := map[string]struct{}{}
		start := 0
		for {
			q := url.Values{}
			for k, v := range query {
				q[k] = v
			}
			q.Set("startAt", strconv.Itoa(start))
			q.Set("maxResults", strconv.Itoa(pageSize))

			var p page
			if err := c.getJSON(ctx, res.Name, res.Path, q, &p); err != nil {
				yield(Record{}, err)
				return
			}
			var items []json.RawMessage
			if raw, ok := p.Items[res.Items]; ok {
				if err := json.Unmarshal(raw, &items); err != nil {
					yield(Record{}, &APIError{Resource: res.Name, Status: 200, Attempts: 1, Err: err})
					return
				}
			}

			for _, raw := range items {
				id := recordID(raw)
				if id != "" {
					if _, dup := seen[id]; dup {
						c.log.Warn().Str("resource", res.Name).Str("id", id).Msg("duplicate record across pages dropped")
						continue
					}
					seen[id] = struct{}{}
				}
				if !yield(Record{ID: id, Raw: raw}, nil) {
					return
				}
			}

			n := len(items)
			start += n
			switch {
			case n == 0:
				return
			case p.IsLast != nil:
				if *p.IsLast {
					return
				}
			case p.Total != nil:
				if start >= *p.Total {
					return
				}
			case n < pageSize:
				return
			}
		}
	}
}

// recordID extracts "id" whether the server sent it as a number or a string.
func recordID(raw json.RawMessage) string {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.ID) == 0 {
		return ""
	}
	id := bytes.Trim(probe.ID, `"`)
	if string(id) == "null" {
		return ""
	}
	return string(id)
}
