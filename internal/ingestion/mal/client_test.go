package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body pushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "13", body.MangaID)
		assert.Equal(t, "1100", body.NumChaptersRead)

		fmt.Fprint(w, `{"num_chapters_read":1100}`)
	}))
	defer srv.Close()

	result := NewClient(srv.URL, "secret", 1, time.Millisecond, nil).Push(context.Background(), "13", "1100")

	assert.True(t, result.Success)
	assert.JSONEq(t, `{"num_chapters_read":1100}`, string(result.Body))
	assert.Empty(t, result.Error)
}

func TestPush_AlwaysFailingIsCalledMaxRetriesPlusOne(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"invalid manga id"}`)
	}))
	defer srv.Close()

	result := NewClient(srv.URL, "", 1, time.Millisecond, nil).Push(context.Background(), "13", "5")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.False(t, result.Success)
	assert.Equal(t, "Failed to update MAL: invalid manga id (Status: 400)", result.Error)
	assert.Equal(t, http.StatusBadRequest, result.Status)
}

func TestPush_RecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	result := NewClient(srv.URL, "", 1, time.Millisecond, nil).Push(context.Background(), "13", "5")

	assert.True(t, result.Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPush_WaitsRetryDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	start := time.Now()
	result := NewClient(srv.URL, "", 1, 50*time.Millisecond, nil).Push(context.Background(), "13", "5")

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, "Failed to update MAL: No additional error message provided (Status: 500)", result.Error)
}

func TestPush_TransportErrorIsUnexpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := NewClient(url, "", 1, time.Millisecond, nil).Push(context.Background(), "13", "5")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Unexpected error:")
}

func TestPush_ContextCancelledDuringDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := NewClient(srv.URL, "", 1, time.Hour, nil).Push(ctx, "13", "5")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Unexpected error:")
}
