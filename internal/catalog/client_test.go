package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/model"
)

func int64ptr(v int64) *int64 { return &v }

func newTestClient(baseURL string) *Client {
	cfg := &config.Config{
		CatalogBaseURL: baseURL,
		CatalogTimeout: 2 * time.Second,
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestFetchPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/questions/pool", r.URL.Path)
		assert.Equal(t, "40", r.URL.Query().Get("limit"))
		assert.Equal(t, "3", r.URL.Query().Get("category_id"))
		assert.Equal(t, "", r.URL.Query().Get("level_id"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"questions":[
			{"id":1,"question_text":"q1","options":["a","b"],"correct_answer":"a"},
			{"id":2,"question_text":"q2","options":["c","d"],"correct_answer":"d"}
		]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	pool, err := client.FetchPool(context.Background(), PoolFilter{
		CategoryID: int64ptr(3),
		Limit:      40,
	})
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, int64(1), pool[0].ID)
	assert.Equal(t, "d", pool[1].CorrectAnswer)
}

func TestFetchPoolRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"questions":[{"id":1,"question_text":"q1","options":["a"],"correct_answer":"a"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	pool, err := client.FetchPool(context.Background(), PoolFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, pool, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPoolUnavailableAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.FetchPool(context.Background(), PoolFilter{Limit: 10})
	assert.True(t, errors.Is(err, model.ErrCatalogUnavailable))
	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
}

func TestFetchPoolConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Port is now closed.

	client := newTestClient(srv.URL)
	_, err := client.FetchPool(context.Background(), PoolFilter{Limit: 10})
	assert.True(t, errors.Is(err, model.ErrCatalogUnavailable))
}
