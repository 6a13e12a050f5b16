package vectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_SendsQueryAndParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)

		var body struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "project ideas", body.Query)
		assert.Equal(t, 5, body.TopK)

		_, _ = w.Write([]byte(`{"hits":[
			{"id":"Ideas/app.md","text":"Build a birding app","score":0.91},
			{"id":"Ideas/site.md","text":"Redesign the site","score":0.84}
		]}`))
	}))
	defer srv.Close()

	hits, err := New(srv.URL, "").Search(context.Background(), "project ideas", 5)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Ideas/app.md", hits[0].ID)
	assert.Equal(t, "Build a birding app", hits[0].Text)
	assert.InDelta(t, 0.91, hits[0].Score, 0.001)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Search(context.Background(), "q", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 503")
}
