package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Ensure Ledger implements RunLedger
var _ ports.RunLedger = (*Ledger)(nil)

type runEntry struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	ID         string    `bun:",pk"`
	ActorDID   string    `bun:",notnull"`
	Source     string    `bun:",notnull"`
	DryRun     bool      `bun:",notnull"`
	StartedAt  time.Time `bun:",notnull"`
	FinishedAt time.Time `bun:",nullzero"`
	Total      int       `bun:",notnull"`
	Submitted  int       `bun:",notnull"`
	Skipped    int       `bun:",notnull"`
	Failed     int       `bun:",notnull"`
	Excluded   int       `bun:",notnull"`
}

type rowEntry struct {
	bun.BaseModel `bun:"table:row_outcomes,alias:ro"`

	ID        int64     `bun:",pk,autoincrement"`
	RunID     string    `bun:",notnull"`
	RowIndex  int       `bun:",notnull"`
	Label     string    `bun:",notnull"`
	Outcome   string    `bun:",notnull"`
	Result    string    `bun:",notnull"`
	Key       string    `bun:"ol_key,nullzero"`
	RecordURI string    `bun:",nullzero"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// Ledger keeps run history in a SQLite database.
type Ledger struct {
	db *bun.DB
}

// NewLedger opens (or creates) the ledger at path. ":memory:" gives a
// throwaway ledger.
func NewLedger(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	// SQLite serialises writers anyway, and an in-memory database exists per connection.
	sqldb.SetMaxOpenConns(1)

	l, err := newLedger(context.Background(), bun.NewDB(sqldb, sqlitedialect.New()))
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return l, nil
}

func newLedger(ctx context.Context, db *bun.DB) (*Ledger, error) {
	if _, err := db.NewCreateTable().Model((*runEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*rowEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create row_outcomes table: %w", err)
	}
	if _, err := db.NewCreateIndex().Model((*rowEntry)(nil)).Index("row_outcomes_run_idx").Column("run_id").IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to index row_outcomes: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) StartRun(ctx context.Context, run *models.Run) error {
	entry := toRunEntry(run)
	if _, err := l.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func (l *Ledger) RecordRow(ctx context.Context, runID string, row *models.ImportRow, outcome models.Outcome, recordURI string) error {
	entry := &rowEntry{
		RunID:     runID,
		RowIndex:  row.Index,
		Label:     row.Label(),
		Outcome:   outcome.Kind.String(),
		Result:    outcome.Result,
		Key:       outcome.Key,
		RecordURI: recordURI,
	}
	if _, err := l.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert row %d of run %s: %w", row.Index, runID, err)
	}
	return nil
}

// FinishRun stores the final counts of a run started with StartRun.
func (l *Ledger) FinishRun(ctx context.Context, run *models.Run) error {
	res, err := l.db.NewUpdate().Model(toRunEntry(run)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run %s was never started", run.ID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	var entries []runEntry
	q := l.db.NewSelect().Model(&entries).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	runs := make([]models.Run, 0, len(entries))
	for _, e := range entries {
		runs = append(runs, models.Run{
			ID:         e.ID,
			ActorDID:   e.ActorDID,
			Source:     e.Source,
			DryRun:     e.DryRun,
			StartedAt:  e.StartedAt,
			FinishedAt: e.FinishedAt,
			Total:      e.Total,
			Submitted:  e.Submitted,
			Skipped:    e.Skipped,
			Failed:     e.Failed,
			Excluded:   e.Excluded,
		})
	}
	return runs, nil
}

// ListRows returns the row outcomes of a run in input order.
func (l *Ledger) ListRows(ctx context.Context, runID string) ([]models.RowEntry, error) {
	var entries []rowEntry
	if err := l.db.NewSelect().Model(&entries).Where("run_id = ?", runID).Order("row_index ASC").Scan(ctx); err != nil {
		return nil, err
	}

	rows := make([]models.RowEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.RowEntry{
			RunID:     e.RunID,
			Index:     e.RowIndex,
			Label:     e.Label,
			Outcome:   e.Outcome,
			Result:    e.Result,
			Key:       e.Key,
			RecordURI: e.RecordURI,
		})
	}
	return rows, nil
}

func toRunEntry(run *models.Run) *runEntry {
	return &runEntry{
		ID:         run.ID,
		ActorDID:   run.ActorDID,
		Source:     run.Source,
		DryRun:     run.DryRun,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Total:      run.Total,
		Submitted:  run.Submitted,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		Excluded:   run.Excluded,
	}
}
