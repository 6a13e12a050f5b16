// Package vectors is the client for the external notes vector index.
package vectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/pkg/log"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (c *Client) Search(ctx context.Context, query string, k int) ([]core.NoteHit, error) {
	payload, err := json.Marshal(map[string]any{
		"query": query,
		"top_k": k,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", core.AideUserAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("vector search returned http %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		Hits []struct {
			ID    string  `json:"id"`
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode vector search response: %w", err)
	}

	hits := make([]core.NoteHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, core.NoteHit{ID: h.ID, Text: h.Text, Score: h.Score})
	}

	log.FromCtx(ctx).Debug().Str("query", query).Int("hits", len(hits)).Msg("notes search completed")
	return hits, nil
}
