package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "weather edinburgh", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Edinburgh weather","url":"https://example.com/wx","content":"12C, rain"},
			{"title":"Forecast","url":"https://example.com/fc","content":"improving"}
		]}`))
	}))
	defer srv.Close()

	results, err := New(srv.URL, "").Search(context.Background(), "weather edinburgh")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Edinburgh weather", results[0].Title)
	assert.Equal(t, "https://example.com/wx", results[0].URL)
	assert.Equal(t, "12C, rain", results[0].Snippet)
}

func TestSearch_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	results, err := New(srv.URL, "").Search(context.Background(), "nothing")

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_HTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Search(context.Background(), "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 429")
}

func TestSearch_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "sekrit").Search(context.Background(), "q")
	require.NoError(t, err)
}
