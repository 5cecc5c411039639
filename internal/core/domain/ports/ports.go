package ports

import (
	"context"
	"net/url"
	"shelfsync/internal/core/domain/models"
)

// RowSource produces the rows of a reading-history export.
type RowSource interface {
	LoadRows(ctx context.Context) (*models.Batch, error)
}

// Catalog is the bibliographic catalog. Responses are decoded JSON trees.
type Catalog interface {
	LookupISBN(ctx context.Context, isbn string) (any, error)
	Search(ctx context.Context, params url.Values) (any, error)
}

// IdentityResolver maps a handle to a DID and a DID to its PDS endpoint.
type IdentityResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
	ResolveServiceEndpoint(ctx context.Context, did string) (string, error)
}

type SessionProvider interface {
	CreateSession(ctx context.Context, endpoint, identifier, password string) (*models.Session, error)
}

// RecordStore lists and creates records in an actor's repo.
type RecordStore interface {
	ListRecords(ctx context.Context, endpoint, did, collection string) ([]models.Record, error)
	// CreateRecord writes into repo, the actor's DID, which need not be the
	// DID the session was opened for.
	CreateRecord(ctx context.Context, endpoint string, session *models.Session, repo, collection string, record any) (string, error)
}

// ReportWriter serialises the annotated rows once the batch is done.
type ReportWriter interface {
	Write(columns []string, rows []*models.ImportRow) error
}

// RunLedger keeps a local history of runs and their row outcomes.
type RunLedger interface {
	StartRun(ctx context.Context, run *models.Run) error
	RecordRow(ctx context.Context, runID string, row *models.ImportRow, outcome models.Outcome, recordURI string) error
	FinishRun(ctx context.Context, run *models.Run) error
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
	ListRows(ctx context.Context, runID string) ([]models.RowEntry, error)
}
