package service_test

import (
	"context"
	"net/url"
	"shelfsync/internal/core/domain/models"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) LookupISBN(ctx context.Context, isbn string) (any, error) {
	args := m.Called(ctx, isbn)
	return args.Get(0), args.Error(1)
}

func (m *mockCatalog) Search(ctx context.Context, params url.Values) (any, error) {
	args := m.Called(ctx, params)
	return args.Get(0), args.Error(1)
}

type mockIdentity struct{ mock.Mock }

func (m *mockIdentity) ResolveHandle(ctx context.Context, handle string) (string, error) {
	args := m.Called(ctx, handle)
	return args.String(0), args.Error(1)
}

func (m *mockIdentity) ResolveServiceEndpoint(ctx context.Context, did string) (string, error) {
	args := m.Called(ctx, did)
	return args.String(0), args.Error(1)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) CreateSession(ctx context.Context, endpoint, identifier, password string) (*models.Session, error) {
	args := m.Called(ctx, endpoint, identifier, password)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

type mockRecords struct{ mock.Mock }

func (m *mockRecords) ListRecords(ctx context.Context, endpoint, did, collection string) ([]models.Record, error) {
	args := m.Called(ctx, endpoint, did, collection)
	records, _ := args.Get(0).([]models.Record)
	return records, args.Error(1)
}

func (m *mockRecords) CreateRecord(ctx context.Context, endpoint string, session *models.Session, repo, collection string, record any) (string, error) {
	args := m.Called(ctx, endpoint, session, repo, collection, record)
	return args.String(0), args.Error(1)
}

// mockResolver fails the test on any call it was not told to expect.
type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, row *models.ImportRow) (string, bool) {
	args := m.Called(ctx, row)
	return args.String(0), args.Bool(1)
}

// titleResolver resolves rows by title from a fixed table.
type titleResolver map[string]string

func (r titleResolver) Resolve(_ context.Context, row *models.ImportRow) (string, bool) {
	key, ok := r[row.Get(models.ColTitle)]
	return key, ok
}

type memLedger struct {
	mu       sync.Mutex
	started  []models.Run
	finished []models.Run
	rows     []models.RowEntry
}

func (l *memLedger) StartRun(_ context.Context, run *models.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, *run)
	return nil
}

// RecordRow refuses a done context the way a database driver would.
func (l *memLedger) RecordRow(ctx context.Context, runID string, row *models.ImportRow, outcome models.Outcome, recordURI string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, models.RowEntry{
		RunID:     runID,
		Index:     row.Index,
		Label:     row.Label(),
		Outcome:   outcome.Kind.String(),
		Result:    outcome.Result,
		Key:       outcome.Key,
		RecordURI: recordURI,
	})
	return nil
}

func (l *memLedger) FinishRun(_ context.Context, run *models.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, *run)
	return nil
}

func (l *memLedger) ListRuns(context.Context, int) ([]models.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Run(nil), l.finished...), nil
}

func (l *memLedger) ListRows(_ context.Context, runID string) ([]models.RowEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.RowEntry
	for _, r := range l.rows {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newRow(index int, fields map[string]string) *models.ImportRow {
	return &models.ImportRow{Index: index, Fields: fields}
}
