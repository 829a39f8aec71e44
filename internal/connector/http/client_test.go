package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&ClientConfig{
		BaseURL:       url,
		MaxRetries:    2,
		RateLimit:     1000,
		RateBurst:     100,
		RetryInterval: time.Millisecond,
		Auth:          BasicAuth{Username: "sas", Password: "secret"},
	})
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sas", user)
		assert.Equal(t, "secret", pass)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Post(context.Background(), "/query", map[string]string{"sql": "select 1"})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Post(context.Background(), "/health", nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.True(t, httpErr.IsAuthError())
	assert.Equal(t, "bad credentials", httpErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Post(context.Background(), "/health", nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCursorPaginator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Cursor string `json:"cursor"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body.Cursor {
		case "":
			w.Write([]byte(`{"rows":[1,2],"next_cursor":"p2"}`))
		case "p2":
			w.Write([]byte(`{"rows":[3]}`))
		default:
			t.Errorf("unexpected cursor %q", body.Cursor)
		}
	}))
	defer srv.Close()

	p := NewCursorPaginator("/query", func(cursor string) any {
		return map[string]string{"cursor": cursor}
	})
	var rows []int
	err := p.Each(context.Background(), newTestClient(srv.URL), func(resp *Response) error {
		var page struct {
			Rows []int `json:"rows"`
		}
		if err := resp.JSON(&page); err != nil {
			return err
		}
		rows = append(rows, page.Rows...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, rows)
}

func TestCursorPaginator_DetectsLoops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"next_cursor":"same"}`))
	}))
	defer srv.Close()

	p := NewCursorPaginator("/query", func(cursor string) any { return map[string]string{"cursor": cursor} })
	err := p.Each(context.Background(), newTestClient(srv.URL), func(*Response) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated")
}
