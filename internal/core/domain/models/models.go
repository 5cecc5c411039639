package models

import "time"

// Goodreads export column names. Other row sources map their fields onto these.
const (
	ColBookID          = "Book Id"
	ColTitle           = "Title"
	ColAuthor          = "Author"
	ColISBN            = "ISBN"
	ColISBN13          = "ISBN13"
	ColMyRating        = "My Rating"
	ColPublisher       = "Publisher"
	ColYearPublished   = "Year Published"
	ColOriginalPubYear = "Original Publication Year"
	ColDateRead        = "Date Read"
	ColDateAdded       = "Date Added"
	ColMyReview        = "My Review"
	ColReadCount       = "Read Count"
	ColImportResult    = "Import Result"
)

// ImportRow is one input row. Fields is read-only after load; Result is set
// once by the pipeline.
type ImportRow struct {
	Index  int
	Fields map[string]string
	Result string
}

// Get returns the named column, or "" when the row has no such column.
func (r *ImportRow) Get(col string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return r.Fields[col]
}

// Label identifies the row in log lines.
func (r *ImportRow) Label() string {
	return r.Get(ColTitle) + " - " + r.Get(ColAuthor)
}

// Batch is everything a row source produced: the column order and the rows.
type Batch struct {
	Columns []string
	Rows    []*ImportRow
}

// CatalogQuery is the set of identifying fields extracted from a row.
type CatalogQuery struct {
	ISBN13           string
	ISBN10           string
	Title            string
	Subtitle         string
	Author           string
	SourceID         string
	Publisher        string
	PublishYear      string
	FirstPublishYear string
}

// KeySet is a set of catalog edition keys.
type KeySet map[string]struct{}

func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s KeySet) Add(key string) { s[key] = struct{}{} }

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Record is an existing entry in the actor's collection.
type Record struct {
	URI   string `json:"uri"`
	CID   string `json:"cid"`
	Value any    `json:"value"`
}

// Session holds the credentials returned by the actor's PDS.
type Session struct {
	DID        string    `json:"did"`
	Handle     string    `json:"handle"`
	AccessJwt  string    `json:"accessJwt"`
	RefreshJwt string    `json:"refreshJwt"`
	ExpiresAt  time.Time `json:"-"`
}

// Run summarises one import run.
type Run struct {
	ID         string
	ActorDID   string
	Source     string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Submitted  int
	Skipped    int
	Failed     int
	Excluded   int
}

// RowEntry is the ledger's copy of one row outcome.
type RowEntry struct {
	RunID     string
	Index     int
	Label     string
	Outcome   string
	Result    string
	Key       string
	RecordURI string
}
