package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSearchFiltersByScoreAndTopK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "caching", req.Query)
		assert.Equal(t, 2, req.TopK)
		_ = json.NewEncoder(w).Encode(searchResponse{Results: []searchHit{
			{Text: "low", Score: 0.1},
			{Text: "LRU evicts the oldest entry", Score: 0.9},
			{Text: "", Score: 0.9},
			{Text: "TTL bounds staleness", Score: 0.8},
			{Text: "extra", Score: 0.95},
		}})
	}))
	defer srv.Close()

	c := NewClient(Config{Enabled: true, BaseURL: srv.URL, TopK: 2, MinScore: 0.5}, zaptest.NewLogger(t))
	got, err := c.Search(context.Background(), "caching")
	require.NoError(t, err)
	assert.Equal(t, []string{"LRU evicts the oldest entry", "TTL bounds staleness"}, got)
}

func TestSearchDisabledReturnsNothing(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, zaptest.NewLogger(t))
	got, err := c.Search(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{Enabled: true, BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := c.Search(context.Background(), "q")
	assert.Error(t, err)
}
