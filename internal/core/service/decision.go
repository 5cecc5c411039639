package service

import (
	"context"
	"regexp"
	"shelfsync/internal/core/domain/models"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

var dateOnly = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)

// KeyResolver maps a row to a catalog edition key.
type KeyResolver interface {
	Resolve(ctx context.Context, row *models.ImportRow) (string, bool)
}

// Engine decides, row by row, what the import does. The pre-run key set is
// never modified; keys imported during the run are tracked separately so a
// book listed twice in one export is only created once.
type Engine struct {
	resolver KeyResolver
	used     models.KeySet
	imported models.KeySet
	now      func() time.Time
}

func NewEngine(resolver KeyResolver, used models.KeySet) *Engine {
	if used == nil {
		used = models.NewKeySet()
	}
	return &Engine{
		resolver: resolver,
		used:     used,
		imported: models.NewKeySet(),
		now:      time.Now,
	}
}

// Decide classifies row. Validation failures return before any catalog call.
func (e *Engine) Decide(ctx context.Context, row *models.ImportRow) models.Outcome {
	readCount, ok := ParseReadCount(row.Get(models.ColReadCount))
	if !ok {
		log.Info().Str("row", row.Label()).Msg("Excluded: 'Read Count' column is 0 or invalid")
		return models.Outcome{Kind: models.OutcomeExcluded, Result: models.ResultExcluded}
	}

	key, ok := e.resolver.Resolve(ctx, row)
	if !ok {
		log.Info().Str("row", row.Label()).Msg("Failed: no open library key")
		return models.Outcome{Kind: models.OutcomeFailed, Result: models.ResultNoKey}
	}

	if e.used.Has(key) {
		log.Info().Str("row", row.Label()).Str("key", key).Msg("Skipped: already has a record")
		return models.Outcome{Kind: models.OutcomeSkipped, Result: models.ResultAlreadyImported, Key: key}
	}
	if e.imported.Has(key) {
		log.Info().Str("row", row.Label()).Str("key", key).Msg("Skipped: same book earlier in this import")
		return models.Outcome{Kind: models.OutcomeSkipped, Result: models.ResultDuplicateRow, Key: key}
	}

	return models.Outcome{
		Kind:   models.OutcomeSubmitted,
		Result: models.ResultSuccess,
		Key:    key,
		Record: BuildRecord(row, key, readCount, e.now()),
	}
}

// Commit marks key as imported in this run.
func (e *Engine) Commit(key string) {
	e.imported.Add(key)
}

// ParseReadCount accepts a positive integer read count.
func ParseReadCount(raw string) (int, bool) {
	if raw == "" || raw == "0" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// StoredRating converts a 0-5 star rating to the 1-10 scale. Unrated and
// unparsable ratings become 1.
func StoredRating(raw string) int {
	stars, _ := strconv.Atoi(strings.TrimSpace(raw))
	if rating := stars * 2; rating >= 1 {
		return rating
	}
	return 1
}

// FormatTimestamp renders t the way the record store expects.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// FinishTimestamp picks Date Read, then Date Added, then now. Date-only
// values (YYYY/MM/DD) become midnight UTC.
func FinishTimestamp(row *models.ImportRow, now time.Time) string {
	date := strings.TrimSpace(row.Get(models.ColDateRead))
	if date == "" {
		date = strings.TrimSpace(row.Get(models.ColDateAdded))
	}
	if date == "" {
		return FormatTimestamp(now)
	}
	date = strings.ReplaceAll(date, "/", "-")
	if dateOnly.MatchString(date) {
		return date + "T00:00:00.000Z"
	}
	return date
}

// BuildRecord assembles the payload for a novel key.
func BuildRecord(row *models.ImportRow, key string, readCount int, now time.Time) *models.SkylightsRecord {
	ts := FormatTimestamp(now)
	finished := FinishTimestamp(row, now)

	finishedAt := make([]string, readCount)
	for i := range finishedAt {
		finishedAt[i] = finished
	}

	return &models.SkylightsRecord{
		Type: models.SkylightsCollection,
		Item: models.RecordItem{Ref: models.OpenLibraryRef, Value: key},
		Note: models.RecordNote{
			Value:     row.Get(models.ColMyReview),
			CreatedAt: ts,
			UpdatedAt: ts,
		},
		Rating: models.RecordRating{
			Value:     StoredRating(row.Get(models.ColMyRating)),
			CreatedAt: ts,
		},
		FinishedAt: finishedAt,
	}
}
