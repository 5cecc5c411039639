package service

import (
	"context"
	"net/url"
	"regexp"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"shelfsync/internal/core/domain/tree"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// The catalog ignores its lang parameter, so language goes through q.
	searchLanguage = "language:eng"
	// The minimum field set that still carries the edition key.
	searchFields = "key,editions,editions.key"
)

var annotation = regexp.MustCompile(`[\[\(].*?[\]\)]`)

// CleanTitle removes (...) and [...] annotations anywhere in the title and
// splits the rest once on the first colon into title and subtitle.
func CleanTitle(raw string) (title, subtitle string) {
	stripped := annotation.ReplaceAllString(raw, "")
	parts := strings.SplitN(stripped, ":", 2)
	title = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		subtitle = strings.TrimSpace(parts[1])
	}
	return title, subtitle
}

// CleanISBN strips the ="..." quoting spreadsheet exports wrap ISBNs in.
func CleanISBN(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, `="`)
	return strings.TrimRight(s, `"`)
}

// QueryFromRow extracts the catalog-identifying fields of a row.
func QueryFromRow(row *models.ImportRow) models.CatalogQuery {
	title, subtitle := CleanTitle(row.Get(models.ColTitle))
	return models.CatalogQuery{
		ISBN13:           CleanISBN(row.Get(models.ColISBN13)),
		ISBN10:           CleanISBN(row.Get(models.ColISBN)),
		Title:            title,
		Subtitle:         subtitle,
		Author:           row.Get(models.ColAuthor),
		SourceID:         row.Get(models.ColBookID),
		Publisher:        row.Get(models.ColPublisher),
		PublishYear:      row.Get(models.ColYearPublished),
		FirstPublishYear: row.Get(models.ColOriginalPubYear),
	}
}

// strategy is one resolution attempt. It reports ok only for a usable key.
type strategy struct {
	name    string
	resolve func(ctx context.Context, q models.CatalogQuery) (string, bool)
}

// Resolver maps rows to catalog edition keys.
type Resolver struct {
	catalog    ports.Catalog
	strategies []strategy
}

func NewResolver(catalog ports.Catalog) *Resolver {
	r := &Resolver{catalog: catalog}
	r.strategies = []strategy{
		{"isbn13", func(ctx context.Context, q models.CatalogQuery) (string, bool) { return r.byISBN(ctx, q.ISBN13) }},
		{"isbn10", func(ctx context.Context, q models.CatalogQuery) (string, bool) { return r.byISBN(ctx, q.ISBN10) }},
		{"strict search", func(ctx context.Context, q models.CatalogQuery) (string, bool) { return r.search(ctx, strictParams(q)) }},
		{"loose search", func(ctx context.Context, q models.CatalogQuery) (string, bool) { return r.search(ctx, looseParams(q)) }},
	}
	return r
}

// Resolve returns the edition key for row, or false when every strategy
// came up empty. A cancelled ctx stops the chain before the next strategy.
func (r *Resolver) Resolve(ctx context.Context, row *models.ImportRow) (string, bool) {
	q := QueryFromRow(row)
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return "", false
		}
		if key, ok := s.resolve(ctx, q); ok {
			log.Debug().Str("strategy", s.name).Str("key", key).Str("row", row.Label()).Msg("catalog key resolved")
			return key, true
		}
	}
	return "", false
}

func (r *Resolver) byISBN(ctx context.Context, isbn string) (string, bool) {
	if isbn == "" {
		return "", false
	}
	res, err := r.catalog.LookupISBN(ctx, isbn)
	if err != nil {
		log.Warn().Err(err).Str("isbn", isbn).Msg("isbn lookup failed")
		return "", false
	}
	return editionKey(res, "key")
}

func (r *Resolver) search(ctx context.Context, params url.Values) (string, bool) {
	if params == nil {
		return "", false
	}
	res, err := r.catalog.Search(ctx, params)
	if err != nil {
		log.Warn().Err(err).Msg("catalog search failed")
		return "", false
	}
	if n, ok := tree.Number(res, "num_found"); ok && n == 0 {
		return "", false
	}
	return editionKey(res, "docs", 0, "editions", "docs", 0, "key")
}

// editionKey reads a catalog path such as "/books/OL1M" and keeps the last
// segment.
func editionKey(res any, path ...any) (string, bool) {
	key, ok := tree.String(res, path...)
	if !ok {
		return "", false
	}
	key = key[strings.LastIndex(key, "/")+1:]
	return key, key != ""
}

// strictParams is sent whenever any identifying field is present, so a
// row carrying only a source id or publisher still gets a search.
func strictParams(q models.CatalogQuery) url.Values {
	if q.Title == "" && q.Subtitle == "" && q.Author == "" && q.SourceID == "" &&
		q.Publisher == "" && q.PublishYear == "" && q.FirstPublishYear == "" {
		return nil
	}
	return compact(map[string]string{
		"title":              q.Title,
		"subtitle":           q.Subtitle,
		"author":             q.Author,
		"id_goodreads":       q.SourceID,
		"publisher":          q.Publisher,
		"publish_year":       q.PublishYear,
		"first_publish_year": q.FirstPublishYear,
		"q":                  searchLanguage,
		"fields":             searchFields,
	})
}

// looseParams only makes sense with a title or author to match on.
func looseParams(q models.CatalogQuery) url.Values {
	if q.Title == "" && q.Author == "" {
		return nil
	}
	return compact(map[string]string{
		"title":  q.Title,
		"author": q.Author,
		"q":      searchLanguage,
		"fields": searchFields,
	})
}

// compact drops empty values so absence, not "", marks a field as
// unconstrained.
func compact(fields map[string]string) url.Values {
	params := url.Values{}
	for k, v := range fields {
		if v != "" {
			params.Set(k, v)
		}
	}
	return params
}
