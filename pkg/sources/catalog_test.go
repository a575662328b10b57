package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/entries", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "road", r.URL.Query().Get("title"))
		w.Write([]byte(`{"data":[{"id":"e1","title":"The Long Road","author":"A. Writer","status":"ongoing"}]}`))
	})
	mux.HandleFunc("/entries/e1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"e1","title":"The Long Road","cover":"https://img/cover.jpg"}}`))
	})
	mux.HandleFunc("/entries/e1/chapters", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"c1","name":"Part 1","narrator":"Sam","number":1,"published":"2024-01-02T03:04:05Z"},
			{"id":"c2","name":"Part 2","number":2,"published":"not-a-date"}
		]}`))
	})
	mux.HandleFunc("/chapters/c1/media", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[{"url":"/audio/c1-1.mp3","size":4},{"url":"/audio/c1-2.mp3","size":4}]}`))
	})
	mux.HandleFunc("/audio/c1-1.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abcd"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCatalog_Search(t *testing.T) {
	server := newCatalogServer(t)
	catalog := NewCatalog("catalog", "", server.URL)

	entries, err := catalog.Search(context.Background(), "road")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "catalog:e1", entries[0].ID)
	assert.Equal(t, "The Long Road", entries[0].Title)
	assert.Equal(t, "catalog", entries[0].Source)
	assert.Equal(t, "catalog", catalog.Name())
}

func TestCatalog_GetEntry(t *testing.T) {
	server := newCatalogServer(t)
	catalog := NewCatalog("catalog", "Catalog", server.URL)

	entry, err := catalog.GetEntry(context.Background(), "catalog:e1")
	require.NoError(t, err)
	assert.Equal(t, "catalog:e1", entry.ID)
	assert.Equal(t, "https://img/cover.jpg", entry.CoverURL)

	// Raw ids from the catalog itself still resolve.
	entry, err = catalog.GetEntry(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "catalog:e1", entry.ID)
}

func TestCatalog_GetChapters(t *testing.T) {
	server := newCatalogServer(t)
	catalog := NewCatalog("catalog", "Catalog", server.URL)

	chapters, err := catalog.GetChapters(context.Background(), &data.Entry{ID: "catalog:e1"})
	require.NoError(t, err)
	require.Len(t, chapters, 2)

	assert.Equal(t, "catalog:c1", chapters[0].ID)
	assert.Equal(t, "catalog:e1", chapters[0].EntryID)
	assert.Equal(t, "Sam", chapters[0].Scanlator)
	assert.Equal(t, 0, chapters[0].SourceOrder)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), chapters[0].UploadDate)
	assert.Equal(t, 1, chapters[1].SourceOrder)
	assert.True(t, chapters[1].UploadDate.IsZero())
}

func TestCatalog_GetMediaAndSegments(t *testing.T) {
	server := newCatalogServer(t)
	catalog := NewCatalog("catalog", "Catalog", server.URL)

	media, err := catalog.GetMedia(context.Background(), nil, &data.Chapter{ID: "catalog:c1"})
	require.NoError(t, err)
	assert.Equal(t, "mp3", media.Format)
	require.Len(t, media.Segments, 2)
	assert.Equal(t, int64(4), media.Segments[0].Size)

	body, size, err := catalog.OpenSegment(context.Background(), media.Segments[0])
	require.NoError(t, err)
	defer body.Close()
	content, _ := io.ReadAll(body)
	assert.Equal(t, "abcd", string(content))
	assert.Equal(t, int64(4), size)

	_, _, err = catalog.OpenSegment(context.Background(), media.Segments[1])
	assert.Error(t, err)
}

func TestCatalogIDsDoNotCollideAcrossSources(t *testing.T) {
	server := newCatalogServer(t)
	primary := NewCatalog("primary", "", server.URL)
	mirror := NewCatalog("mirror", "", server.URL)

	a, err := primary.GetEntry(context.Background(), "e1")
	require.NoError(t, err)
	b, err := mirror.GetEntry(context.Background(), "e1")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	chaptersA, err := primary.GetChapters(context.Background(), a)
	require.NoError(t, err)
	chaptersB, err := mirror.GetChapters(context.Background(), b)
	require.NoError(t, err)
	assert.NotEqual(t, chaptersA[0].ID, chaptersB[0].ID)
	assert.Equal(t, QualifiedID("mirror", "c1"), chaptersB[0].ID)
}

func TestRegistryAndStub(t *testing.T) {
	registry := NewRegistry(NewCatalog("catalog", "Catalog", "http://localhost"), NewStub("gone"))

	src, ok := registry.Get("catalog")
	require.True(t, ok)
	assert.False(t, IsStub(src))

	stub, ok := registry.Get("gone")
	require.True(t, ok)
	assert.True(t, IsStub(stub))
	_, err := stub.GetMedia(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNotInstalled)

	_, ok = registry.Get("unknown")
	assert.False(t, ok)
	assert.Len(t, registry.List(), 2)
}
