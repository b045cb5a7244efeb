package carelinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveSendsVersionAndCredentials(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"o1","status":"Approved","version":2}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	o, err := c.Approve(context.Background(), "o1", 1, "covering leave")
	require.NoError(t, err)
	assert.Equal(t, "/v0/overrides/o1/approve", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.EqualValues(t, 1, gotBody["expected_version"])
	assert.Equal(t, "covering leave", gotBody["reason"])
	assert.Equal(t, "Approved", o.Status)
	assert.Equal(t, 2, o.Version)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"version_conflict","message":"stale"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.ActorID = "dina"
	_, err := c.Deny(context.Background(), "o1", 3, "no")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "version_conflict", apiErr.Code)
}

func TestEventsPageQuery(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`{"items":[{"id":7,"type":"case.evaluated","payload":{"status":"RED"}}],"next_cursor":"7"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "clk_x"
	page, err := c.EventsPage(context.Background(), 10, "42")
	require.NoError(t, err)
	assert.Equal(t, "cursor=42&limit=10", gotQuery)
	assert.Equal(t, "clk_x", gotKey)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "RED", page.Items[0].Payload["status"])
	assert.Equal(t, "7", page.NextCursor)
}
