package jikan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetManga(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/manga/13", r.URL.Path)
		w.Write([]byte(`{"data":{
			"mal_id":13,
			"url":"https://myanimelist.net/manga/13/One_Piece",
			"images":{"jpg":{"image_url":"https://cdn.test/13.jpg","large_image_url":"https://cdn.test/13l.jpg"}},
			"titles":[{"type":"Default","title":"One Piece"}],
			"score":9.22,
			"synopsis":"Pirates."
		}}`))
	}))
	defer srv.Close()

	m, err := NewClient(srv.URL).GetManga(context.Background(), 13)
	require.NoError(t, err)

	entry := ToEnrichment(*m)
	require.NotNil(t, entry.Score)
	assert.Equal(t, 9.22, *entry.Score)
	assert.Equal(t, "https://cdn.test/13l.jpg", entry.ImageURL)
	assert.Equal(t, "Pirates.", entry.Description)
	assert.Equal(t, "https://myanimelist.net/manga/13/One_Piece", entry.URL)
	assert.Equal(t, "One Piece", entry.Titles[0].Title)
}

func TestGetManga_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetManga(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
