package service_test

import (
	"context"
	"errors"
	"net/url"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/service"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw, title, subtitle string
	}{
		{"Dune (Dune #1)", "Dune", ""},
		{"Sapiens: A Brief History of Humankind", "Sapiens", "A Brief History of Humankind"},
		{"The Hobbit [Illustrated]: There and Back Again (Anniversary)", "The Hobbit", "There and Back Again"},
		{"Title: Part: Two", "Title", "Part: Two"},
		{"  Plain  ", "Plain", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			title, subtitle := service.CleanTitle(tt.raw)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.subtitle, subtitle)

			again, againSub := service.CleanTitle(title)
			assert.Equal(t, title, again, "cleaning a clean title changes nothing")
			assert.Empty(t, againSub)
		})
	}
}

func TestCleanISBN(t *testing.T) {
	assert.Equal(t, "0441013597", service.CleanISBN(`="0441013597"`))
	assert.Equal(t, "9780441013593", service.CleanISBN(` ="9780441013593" `))
	assert.Equal(t, "", service.CleanISBN(`=""`))
	assert.Equal(t, "", service.CleanISBN(""))
	assert.Equal(t, "0441013597", service.CleanISBN("0441013597"))
}

func TestQueryFromRow(t *testing.T) {
	q := service.QueryFromRow(newRow(0, map[string]string{
		models.ColTitle:           "Dune: Deluxe Edition (Dune #1)",
		models.ColAuthor:          "Frank Herbert",
		models.ColISBN13:          `="9780441013593"`,
		models.ColBookID:          "234225",
		models.ColOriginalPubYear: "1965",
	}))
	assert.Equal(t, "Dune", q.Title)
	assert.Equal(t, "Deluxe Edition", q.Subtitle)
	assert.Equal(t, "9780441013593", q.ISBN13)
	assert.Empty(t, q.ISBN10)
	assert.Equal(t, "234225", q.SourceID)
	assert.Equal(t, "1965", q.FirstPublishYear)
}

func isStrict(p url.Values) bool { return p.Has("publisher") }
func isLoose(p url.Values) bool  { return !p.Has("publisher") }

func searchHit(key string) map[string]any {
	return map[string]any{
		"num_found": float64(1),
		"docs": []any{
			map[string]any{"editions": map[string]any{"docs": []any{map[string]any{"key": "/books/" + key}}}},
		},
	}
}

func TestResolver_ISBN13ShortCircuits(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("LookupISBN", mock.Anything, "9780441013593").Return(map[string]any{"key": "/books/OL999M"}, nil).Once()

	key, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColTitle:  "Dune",
		models.ColAuthor: "Frank Herbert",
		models.ColISBN13: `="9780441013593"`,
		models.ColISBN:   `="0441013597"`,
	}))
	require.True(t, ok)
	assert.Equal(t, "OL999M", key)
	cat.AssertExpectations(t)
	cat.AssertNotCalled(t, "LookupISBN", mock.Anything, "0441013597")
	cat.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestResolver_FallsBackToISBN10(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("LookupISBN", mock.Anything, "9780441013593").Return(nil, errors.New("catalog returned status 404")).Once()
	cat.On("LookupISBN", mock.Anything, "0441013597").Return(map[string]any{"key": "/books/OL10M"}, nil).Once()

	key, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColISBN13: `="9780441013593"`,
		models.ColISBN:   `="0441013597"`,
	}))
	require.True(t, ok)
	assert.Equal(t, "OL10M", key)
	cat.AssertExpectations(t)
}

func TestResolver_StrictZeroThenLoose(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("Search", mock.Anything, mock.MatchedBy(isStrict)).
		Return(map[string]any{"num_found": float64(0), "docs": []any{}}, nil).Once()
	cat.On("Search", mock.Anything, mock.MatchedBy(isLoose)).
		Return(searchHit("OL42M"), nil).Once()

	key, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColTitle:     "Emma",
		models.ColAuthor:    "Jane Austen",
		models.ColPublisher: "Penguin",
		models.ColISBN:      `=""`,
		models.ColISBN13:    `=""`,
	}))
	require.True(t, ok)
	assert.Equal(t, "OL42M", key)
	cat.AssertExpectations(t)
	cat.AssertNotCalled(t, "LookupISBN", mock.Anything, mock.Anything)
}

func TestResolver_StrictParams(t *testing.T) {
	cat := &mockCatalog{}
	var got url.Values
	cat.On("Search", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(url.Values) }).
		Return(searchHit("OL1M"), nil).Once()

	_, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColTitle:         "Sapiens: A Brief History (Illustrated)",
		models.ColAuthor:        "Yuval Noah Harari",
		models.ColBookID:        "23692271",
		models.ColYearPublished: "2015",
	}))
	require.True(t, ok)
	assert.Equal(t, "Sapiens", got.Get("title"))
	assert.Equal(t, "A Brief History", got.Get("subtitle"))
	assert.Equal(t, "23692271", got.Get("id_goodreads"))
	assert.Equal(t, "2015", got.Get("publish_year"))
	assert.Equal(t, "language:eng", got.Get("q"))
	assert.Equal(t, "key,editions,editions.key", got.Get("fields"))
	assert.False(t, got.Has("publisher"), "empty fields are left out")
}

func TestResolver_StrictMatchWithoutKeyFallsThrough(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("Search", mock.Anything, mock.MatchedBy(isStrict)).
		Return(map[string]any{"num_found": float64(3), "docs": []any{map[string]any{"editions": map[string]any{"docs": []any{}}}}}, nil).Once()
	cat.On("Search", mock.Anything, mock.MatchedBy(isLoose)).
		Return(searchHit("OL7M"), nil).Once()

	key, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColTitle:     "Emma",
		models.ColAuthor:    "Jane Austen",
		models.ColPublisher: "Penguin",
	}))
	require.True(t, ok)
	assert.Equal(t, "OL7M", key)
}

func TestResolver_NothingFound(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("catalog returned status 503"))

	_, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColTitle: "Unknown Book",
	}))
	assert.False(t, ok)
	cat.AssertNumberOfCalls(t, "Search", 2)
}

func TestResolver_EmptyRowMakesNoCalls(t *testing.T) {
	cat := &mockCatalog{}
	_, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColISBN: `=""`,
	}))
	assert.False(t, ok)
	cat.AssertNotCalled(t, "LookupISBN", mock.Anything, mock.Anything)
	cat.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestResolver_SourceIDOnlySendsStrictSearch(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("Search", mock.Anything, mock.MatchedBy(func(p url.Values) bool {
		return p.Get("id_goodreads") == "234225" && p.Get("publisher") == "Ace" && !p.Has("title")
	})).Return(map[string]any{"num_found": float64(0)}, nil).Once()

	_, ok := service.NewResolver(cat).Resolve(context.Background(), newRow(0, map[string]string{
		models.ColBookID:    "234225",
		models.ColPublisher: "Ace",
	}))
	assert.False(t, ok)
	cat.AssertExpectations(t)
	cat.AssertNumberOfCalls(t, "Search", 1)
}

func TestResolver_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := &mockCatalog{}
	cat.On("LookupISBN", mock.Anything, "9780441013593").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	_, ok := service.NewResolver(cat).Resolve(ctx, newRow(0, map[string]string{
		models.ColTitle:  "Dune",
		models.ColAuthor: "Frank Herbert",
		models.ColISBN:   `="0441013597"`,
		models.ColISBN13: `="9780441013593"`,
	}))
	assert.False(t, ok)
	cat.AssertNumberOfCalls(t, "LookupISBN", 1)
	cat.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}
