package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLibraryClient_LookupISBN(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/isbn/9780441013593.json", r.URL.Path)
		assert.Equal(t, "shelfsync-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"key": "/books/OL7353617M", "title": "Dune"}`)
	}))
	defer server.Close()

	c := NewOpenLibraryClient(server.Client(), server.URL+"/", "shelfsync-test", 100)
	res, err := c.LookupISBN(context.Background(), "9780441013593")
	require.NoError(t, err)

	doc, ok := res.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/books/OL7353617M", doc["key"])
}

func TestOpenLibraryClient_SearchEncodesParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Dune", q.Get("title"))
		assert.Equal(t, "Frank Herbert", q.Get("author"))
		assert.Equal(t, "language:eng", q.Get("q"))
		fmt.Fprint(w, `{"num_found": 0, "docs": []}`)
	}))
	defer server.Close()

	c := NewOpenLibraryClient(server.Client(), server.URL, "shelfsync-test", 100)
	params := url.Values{}
	params.Set("title", "Dune")
	params.Set("author", "Frank Herbert")
	params.Set("q", "language:eng")

	res, err := c.Search(context.Background(), params)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestOpenLibraryClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/isbn/missing.json" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `not json`)
	}))
	defer server.Close()

	c := NewOpenLibraryClient(server.Client(), server.URL, "shelfsync-test", 100)

	_, err := c.LookupISBN(context.Background(), "missing")
	assert.ErrorContains(t, err, "status 404")

	_, err = c.LookupISBN(context.Background(), "garbled")
	assert.ErrorContains(t, err, "decode")
}

func TestOpenLibraryClient_CancelledContext(t *testing.T) {
	c := NewOpenLibraryClient(http.DefaultClient, "http://127.0.0.1:1", "shelfsync-test", 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, url.Values{"title": {"Dune"}})
	assert.Error(t, err)
}
