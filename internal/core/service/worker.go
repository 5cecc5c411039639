package service

import (
	"context"
	"errors"
	"fmt"
	"shelfsync/internal/config"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Fatal preconditions. Any of these aborts the run before the first row.
var (
	ErrIdentityUnresolved = errors.New("no DID found for handle")
	ErrSessionUnavailable = errors.New("session creation unsuccessful")
	ErrRecordListing      = errors.New("could not list existing records")
)

const recordBrowserURL = "https://pdsls.dev/at/"

// Deps are the collaborators a pipeline talks to. Ledger may be nil.
type Deps struct {
	Identity ports.IdentityResolver
	Sessions ports.SessionProvider
	Records  ports.RecordStore
	Resolver KeyResolver
	Ledger   ports.RunLedger
}

// Pipeline is a connected import: the actor, where its repo lives, a live
// session and the keys it already has.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	DID      string
	Endpoint string
	Session  *models.Session
	UsedKeys models.KeySet

	engine *Engine
	now    func() time.Time
}

// Connect resolves the actor, discovers its PDS, opens a session and loads
// the existing records.
func Connect(ctx context.Context, cfg *config.Config, deps Deps, handle, password string) (*Pipeline, error) {
	did, err := deps.Identity.ResolveHandle(ctx, handle)
	if err != nil || did == "" {
		return nil, fmt.Errorf("%w %q: %v", ErrIdentityUnresolved, handle, err)
	}
	log.Info().Str("did", did).Msg("Resolved actor")

	endpoint, err := deps.Identity.ResolveServiceEndpoint(ctx, did)
	if err != nil || endpoint == "" {
		log.Warn().Err(err).Str("fallback", cfg.DefaultPDS).Msg("Could not retrieve service endpoint, using default")
		endpoint = cfg.DefaultPDS
	}
	endpoint = strings.TrimRight(endpoint, "/")
	log.Info().Str("endpoint", endpoint).Msg("Using service endpoint")

	session, err := deps.Sessions.CreateSession(ctx, endpoint, handle, password)
	if err != nil || session == nil || session.AccessJwt == "" {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: access token expired at %s", ErrSessionUnavailable, session.ExpiresAt.Format(time.RFC3339))
	}

	records, err := deps.Records.ListRecords(ctx, endpoint, did, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordListing, err)
	}
	used := BuildUsedKeys(records)
	log.Info().Int("records", len(records)).Int("keys", len(used)).Msg("Loaded existing records")

	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		DID:      did,
		Endpoint: endpoint,
		Session:  session,
		UsedKeys: used,
		engine:   NewEngine(deps.Resolver, used),
		now:      time.Now,
	}, nil
}

// Run processes the batch strictly in order. Row failures never stop the
// batch. If ctx is cancelled the remaining rows are marked as not processed
// and the report is returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, batch *models.Batch) (*Report, error) {
	report := NewReport(batch.Columns)
	run := &models.Run{
		ID:        uuid.NewString(),
		ActorDID:  p.DID,
		Source:    p.cfg.SourceType,
		DryRun:    p.cfg.DryRun,
		StartedAt: p.now(),
		Total:     len(batch.Rows),
	}
	p.ledgerStart(ctx, run)

	log.Info().Int("rows", len(batch.Rows)).Bool("dry_run", p.cfg.DryRun).Str("run", run.ID).Msg("Starting import")

	var runErr error
	for _, row := range batch.Rows {
		if runErr == nil && ctx.Err() != nil {
			runErr = ctx.Err()
			log.Warn().Err(runErr).Msg("Import interrupted, remaining rows are not processed")
		}
		if runErr != nil {
			outcome := models.Outcome{Kind: models.OutcomeNotProcessed, Result: models.ResultInterrupted}
			report.Append(row, outcome.Kind, outcome.Result)
			p.ledgerRow(ctx, run.ID, row, outcome, "")
			continue
		}

		outcome, uri := p.processRow(ctx, row)
		if outcome.Kind == models.OutcomeNotProcessed && runErr == nil {
			runErr = ctx.Err()
			log.Warn().Err(runErr).Str("row", row.Label()).Msg("Import interrupted, remaining rows are not processed")
		}
		report.Append(row, outcome.Kind, outcome.Result)
		p.ledgerRow(ctx, run.ID, row, outcome, uri)
	}

	run.FinishedAt = p.now()
	run.Submitted = report.Count(models.OutcomeSubmitted)
	run.Skipped = report.Count(models.OutcomeSkipped)
	run.Failed = report.Count(models.OutcomeFailed)
	run.Excluded = report.Count(models.OutcomeExcluded)
	p.ledgerFinish(run)

	log.Info().
		Int("submitted", run.Submitted).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Int("excluded", run.Excluded).
		Msg("Import complete")

	return report, runErr
}

func (p *Pipeline) processRow(ctx context.Context, row *models.ImportRow) (models.Outcome, string) {
	outcome := p.engine.Decide(ctx, row)
	// Lookups that failed because of the interruption say nothing about the row.
	if ctx.Err() != nil && outcome.Kind != models.OutcomeExcluded {
		return models.Outcome{Kind: models.OutcomeNotProcessed, Result: models.ResultInterrupted}, ""
	}
	if outcome.Kind != models.OutcomeSubmitted {
		return outcome, ""
	}

	if p.cfg.DryRun {
		log.Info().Str("row", row.Label()).Str("key", outcome.Key).Msg("Dry run: would create record")
		p.engine.Commit(outcome.Key)
		outcome.Result = models.ResultDryRun
		return outcome, ""
	}

	log.Info().Str("row", row.Label()).Str("key", outcome.Key).Msg("Success: creating record")
	uri, err := p.deps.Records.CreateRecord(ctx, p.Endpoint, p.Session, p.DID, p.cfg.Collection, outcome.Record)
	if err != nil {
		log.Error().Err(err).Str("row", row.Label()).Str("key", outcome.Key).Msg("Record creation failed")
		outcome.Kind = models.OutcomeFailed
		outcome.Result = models.ResultCreateFailed
		return outcome, ""
	}

	p.engine.Commit(outcome.Key)
	log.Info().Str("link", RecordLink(uri)).Msg("Record created")
	return outcome, uri
}

// RecordLink points at a record browser for an at:// URI.
func RecordLink(uri string) string {
	return recordBrowserURL + strings.TrimPrefix(uri, "at://")
}

func (p *Pipeline) ledgerStart(ctx context.Context, run *models.Run) {
	if p.deps.Ledger == nil {
		return
	}
	if err := p.deps.Ledger.StartRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to record run start in ledger")
	}
}

// ledgerRow detaches from ctx cancellation so interrupted rows are recorded
// too and the ledger always holds Total rows for a run.
func (p *Pipeline) ledgerRow(ctx context.Context, runID string, row *models.ImportRow, outcome models.Outcome, uri string) {
	if p.deps.Ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Ledger.RecordRow(ctx, runID, row, outcome, uri); err != nil {
		log.Warn().Err(err).Str("row", row.Label()).Msg("Failed to record row in ledger")
	}
}

// ledgerFinish uses a fresh context so an interrupted run is still closed out.
func (p *Pipeline) ledgerFinish(run *models.Run) {
	if p.deps.Ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.deps.Ledger.FinishRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to record run end in ledger")
	}
}
