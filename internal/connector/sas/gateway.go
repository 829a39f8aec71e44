package sas

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/04d4/spinta/internal/connector/http"
	"github.com/04d4/spinta/internal/core"
)

// Gateway endpoints. The gateway is a small JVM process that owns the JDBC
// driver (com.sas.rio.MVADriver) and answers JSON queries over HTTP.
const (
	pathConnect = "/v1/connect"
	pathQuery   = "/v1/query"
)

type connectRequest struct {
	Target string `json:"target"`
}

type connectResponse struct {
	DefaultSchema string `json:"default_schema"`
	Product       string `json:"product"`
	Version       string `json:"version"`
}

type queryRequest struct {
	Target    string `json:"target"`
	SQL       string `json:"sql"`
	Params    []any  `json:"params,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	FetchSize int    `json:"fetch_size,omitempty"`
}

type queryResponse struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// row is one result row keyed by lowercased column name.
type row map[string]any

// Gateway is a client for the JDBC gateway.
type Gateway struct {
	client    *http.Client
	target    string
	fetchSize int
}

// NewGateway creates a gateway client for the JDBC target URL.
func NewGateway(client *http.Client, target string, fetchSize int) *Gateway {
	return &Gateway{client: client, target: target, fetchSize: fetchSize}
}

// Connect opens (or validates) the gateway's JDBC session for the target.
func (g *Gateway) Connect(ctx context.Context) (*connectResponse, error) {
	resp, err := g.client.Post(ctx, pathConnect, connectRequest{Target: g.target})
	if err != nil {
		return nil, classify(core.KindConnection, err)
	}
	var out connectResponse
	if err := resp.JSON(&out); err != nil {
		return nil, core.ConnectionError(false, "decode connect response: %v", err)
	}
	return &out, nil
}

// Query runs sql with positional parameters and collects every page.
func (g *Gateway) Query(ctx context.Context, sql string, params ...any) ([]row, error) {
	var rows []row
	p := http.NewCursorPaginator(pathQuery, func(cursor string) any {
		return queryRequest{
			Target:    g.target,
			SQL:       sql,
			Params:    params,
			Cursor:    cursor,
			FetchSize: g.fetchSize,
		}
	})
	err := p.Each(ctx, g.client, func(resp *http.Response) error {
		var page queryResponse
		if err := resp.JSON(&page); err != nil {
			return fmt.Errorf("decode query response: %w", err)
		}
		cols := make([]string, len(page.Columns))
		for i, c := range page.Columns {
			cols[i] = strings.ToLower(strings.TrimSpace(c))
		}
		for _, values := range page.Rows {
			if len(values) != len(cols) {
				return fmt.Errorf("row has %d values for %d columns", len(values), len(cols))
			}
			r := make(row, len(cols))
			for i, c := range cols {
				r[c] = values[i]
			}
			rows = append(rows, r)
		}
		return nil
	})
	if err != nil {
		return nil, classify(core.KindEntityInspection, err)
	}
	return rows, nil
}

// classify maps transport failures onto the error taxonomy. Authentication
// failures and unreachable gateways are connection errors regardless of
// fallback.
func classify(fallback core.Kind, err error) error {
	var httpErr *http.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.IsAuthError():
			return core.Wrap(core.KindConnection, false, err)
		case httpErr.IsServerError(), httpErr.IsRateLimited():
			return core.Wrap(fallback, true, err)
		}
		return core.Wrap(fallback, false, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.Wrap(core.KindConnection, true, err)
	}
	return core.Wrap(fallback, false, err)
}

// str renders a dictionary value as trimmed text. SAS pads character
// columns with blanks.
func (r row) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (r row) num(key string) int {
	switch v := r[key].(type) {
	case float64:
		return int(v)
	case string:
		i, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return int(i)
		}
	}
	return 0
}

// flag reads SAS 0/1 numeric flags; booleans and "yes"/"no" also work.
func (r row) flag(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "yes", "y", "true":
			return true
		}
	}
	return false
}
