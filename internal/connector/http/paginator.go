package http

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// CURSOR PAGINATION
// =============================================================================

// CursorPaginator pages through a POSTed query. Each response carries the
// cursor for the next page under NextCursorKey; an empty or missing cursor
// ends the iteration.
type CursorPaginator struct {
	Path          string
	NextCursorKey string // JSON key of the next cursor (default: "next_cursor")

	// Body builds the request body for the page starting at cursor
	// ("" for the first page).
	Body func(cursor string) any
}

// NewCursorPaginator creates a cursor paginator for path.
func NewCursorPaginator(path string, body func(cursor string) any) *CursorPaginator {
	return &CursorPaginator{
		Path:          path,
		NextCursorKey: "next_cursor",
		Body:          body,
	}
}

// Each posts every page in order and hands each response to fn. It stops at
// the first error from the client or from fn.
func (p *CursorPaginator) Each(ctx context.Context, c *Client, fn func(*Response) error) error {
	cursor := ""
	seen := make(map[string]bool)
	for {
		resp, err := c.Post(ctx, p.Path, p.Body(cursor))
		if err != nil {
			return err
		}
		if err := fn(resp); err != nil {
			return err
		}

		var page map[string]json.RawMessage
		if err := resp.JSON(&page); err != nil {
			return fmt.Errorf("decode page: %w", err)
		}
		next := ""
		if raw, ok := page[p.NextCursorKey]; ok {
			if err := json.Unmarshal(raw, &next); err != nil {
				return fmt.Errorf("decode %s: %w", p.NextCursorKey, err)
			}
		}
		if next == "" {
			return nil
		}
		if seen[next] {
			return fmt.Errorf("pagination loop: cursor %q repeated", next)
		}
		seen[next] = true
		cursor = next
	}
}
