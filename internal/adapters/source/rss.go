package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"
	"github.com/rs/zerolog/log"
)

// Ensure ShelfFeedSource implements RowSource
var _ ports.RowSource = (*ShelfFeedSource)(nil)

// Avoid runaway paging on a feed that never returns an empty page.
const maxFeedPages = 50

// feedColumns is the column set a shelf feed produces, in export order.
var feedColumns = []string{
	models.ColBookID,
	models.ColTitle,
	models.ColAuthor,
	models.ColISBN,
	models.ColISBN13,
	models.ColMyRating,
	models.ColPublisher,
	models.ColYearPublished,
	models.ColOriginalPubYear,
	models.ColDateRead,
	models.ColDateAdded,
	models.ColMyReview,
	models.ColReadCount,
}

// feedFields maps the feed's custom item elements onto export columns.
var feedFields = map[string]string{
	"book_id":         models.ColBookID,
	"author_name":     models.ColAuthor,
	"isbn":            models.ColISBN,
	"isbn13":          models.ColISBN13,
	"user_rating":     models.ColMyRating,
	"book_published":  models.ColYearPublished,
	"user_review":     models.ColMyReview,
	"user_read_at":    models.ColDateRead,
	"user_date_added": models.ColDateAdded,
}

var feedDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC3339}

// ShelfFeedSource reads a Goodreads shelf RSS feed, following ?page=N until
// a page comes back empty. Every item counts as read once.
type ShelfFeedSource struct {
	feedURL string
	client  *http.Client
}

func NewShelfFeedSource(feedURL string, client *http.Client) *ShelfFeedSource {
	return &ShelfFeedSource{feedURL: feedURL, client: client}
}

func (s *ShelfFeedSource) LoadRows(ctx context.Context) (*models.Batch, error) {
	if s.feedURL == "" {
		return nil, errors.New("feed URL is not configured")
	}

	batch := &models.Batch{Columns: feedColumns}
	seen := make(map[string]bool)

	for page := 1; page <= maxFeedPages; page++ {
		pageURL, err := withPage(s.feedURL, page)
		if err != nil {
			return nil, err
		}

		items, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Warn().Err(err).Str("url", pageURL).Msg("Stopping feed paging after error")
			break
		}
		if len(items) == 0 {
			break
		}

		added := 0
		for _, item := range items {
			row := rowFromItem(item)
			id := row.Get(models.ColBookID)
			if id != "" && seen[id] {
				continue
			}
			seen[id] = true
			row.Index = len(batch.Rows)
			batch.Rows = append(batch.Rows, row)
			added++
		}
		log.Debug().Int("page", page).Int("rows", added).Msg("Read shelf feed page")
		// Some servers ignore page and repeat the first page forever.
		if added == 0 {
			break
		}
	}

	return batch, nil
}

func (s *ShelfFeedSource) fetchPage(ctx context.Context, pageURL string) ([]*rss.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shelf feed from %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shelf feed returned status: %d", resp.StatusCode)
	}

	fp := &rss.Parser{}
	feed, err := fp.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse shelf feed as RSS: %w", err)
	}
	return feed.Items, nil
}

func rowFromItem(item *rss.Item) *models.ImportRow {
	fields := make(map[string]string, len(feedColumns))
	for _, col := range feedColumns {
		fields[col] = ""
	}
	fields[models.ColTitle] = strings.TrimSpace(item.Title)
	fields[models.ColReadCount] = "1"

	for elem, col := range feedFields {
		v := strings.TrimSpace(item.Custom[elem])
		if col == models.ColDateRead || col == models.ColDateAdded {
			v = exportDate(v)
		}
		fields[col] = v
	}
	if fields[models.ColMyRating] == "" {
		fields[models.ColMyRating] = "0"
	}
	return &models.ImportRow{Fields: fields}
}

// exportDate rewrites a feed timestamp as the export's YYYY/MM/DD.
func exportDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006/01/02")
		}
	}
	return raw
}

func withPage(feedURL string, page int) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL %q: %w", feedURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
