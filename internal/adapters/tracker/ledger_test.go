package tracker

import (
	"context"
	"path/filepath"
	"shelfsync/internal/core/domain/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func row(index int, title, author string) *models.ImportRow {
	return &models.ImportRow{
		Index:  index,
		Fields: map[string]string{models.ColTitle: title, models.ColAuthor: author},
	}
}

func TestLedger_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &models.Run{ID: "run-1", ActorDID: "did:plc:alice", Source: "csv", StartedAt: started, Total: 2}
	require.NoError(t, l.StartRun(ctx, run))

	require.NoError(t, l.RecordRow(ctx, run.ID, row(1, "Emma", "Jane Austen"), models.Outcome{
		Kind: models.OutcomeFailed, Result: models.ResultNoKey,
	}, ""))
	require.NoError(t, l.RecordRow(ctx, run.ID, row(0, "Dune", "Frank Herbert"), models.Outcome{
		Kind: models.OutcomeSubmitted, Result: models.ResultSuccess, Key: "OL999M",
	}, "at://did:plc:alice/my.skylights.rel/3k"))

	run.FinishedAt = started.Add(time.Minute)
	run.Submitted = 1
	run.Failed = 1
	require.NoError(t, l.FinishRun(ctx, run))

	runs, err := l.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "did:plc:alice", got.ActorDID)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Submitted)
	assert.Equal(t, 1, got.Failed)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(run.FinishedAt))

	rows, err := l.ListRows(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index, "rows come back in input order")
	assert.Equal(t, "Dune - Frank Herbert", rows[0].Label)
	assert.Equal(t, "submitted", rows[0].Outcome)
	assert.Equal(t, "OL999M", rows[0].Key)
	assert.Equal(t, "at://did:plc:alice/my.skylights.rel/3k", rows[0].RecordURI)
	assert.Equal(t, models.ResultNoKey, rows[1].Result)
	assert.Empty(t, rows[1].Key)
}

func TestLedger_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.StartRun(ctx, &models.Run{ID: id, ActorDID: "did:plc:x", Source: "csv", StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.True(t, runs[0].FinishedAt.IsZero(), "unfinished runs have no finish time")
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	l := newTestLedger(t)
	err := l.FinishRun(context.Background(), &models.Run{ID: "ghost", StartedAt: time.Now()})
	assert.ErrorContains(t, err, "never started")
}

func TestLedger_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	l, err := NewLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.StartRun(ctx, &models.Run{ID: "kept", ActorDID: "did:plc:x", Source: "rss", DryRun: true, StartedAt: time.Now()}))
	require.NoError(t, l.Close())

	l, err = NewLedger(path)
	require.NoError(t, err)
	defer l.Close()

	runs, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, "rss", runs[0].Source)
}
