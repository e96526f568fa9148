package anilist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMangaByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GraphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(30013), req.Variables["id"])

		w.Write([]byte(`{"data":{"Media":{
			"id":30013,
			"siteUrl":"https://anilist.co/manga/30013",
			"title":{"english":"One Piece","romaji":"ONE PIECE","native":"ワンピース"},
			"description":"Gol D. Roger<br>&amp; crew",
			"coverImage":{"extraLarge":"https://img.test/xl.jpg","large":"https://img.test/l.jpg"},
			"averageScore":89
		}}}`))
	}))
	defer srv.Close()

	media, err := NewClient(srv.URL).GetMangaByID(context.Background(), 30013)
	require.NoError(t, err)

	entry := ToEnrichment(*media)
	require.NotNil(t, entry.Score)
	assert.InDelta(t, 8.9, *entry.Score, 0.0001)
	assert.Equal(t, "https://img.test/xl.jpg", entry.ImageURL)
	assert.Equal(t, "Gol D. Roger& crew", entry.Description)
	assert.Equal(t, "https://anilist.co/manga/30013", entry.AniURL)
	require.Len(t, entry.Titles, 3)
	assert.Equal(t, "ONE PIECE", entry.Titles[0].Title)
}

func TestGetMangaByID_GraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"Not Found."}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetMangaByID(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found.")
}

func TestGetMangaByID_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetMangaByID(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
}
