package models

// OutcomeKind classifies what happened to a row.
type OutcomeKind int

const (
	OutcomeExcluded OutcomeKind = iota
	OutcomeFailed
	OutcomeSkipped
	OutcomeSubmitted
	OutcomeNotProcessed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExcluded:
		return "excluded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeNotProcessed:
		return "not processed"
	default:
		return "unknown"
	}
}

// Import Result column values.
const (
	ResultExcluded        = "Excluded: Read count invalid"
	ResultNoKey           = "Failure: No open library key found"
	ResultAlreadyImported = "Skipped: Already had a record"
	ResultDuplicateRow    = "Skipped: Duplicate of an earlier row"
	ResultSuccess         = "Success"
	ResultCreateFailed    = "Failure: Record creation failed"
	ResultDryRun          = "Dry run: Record not created"
	ResultInterrupted     = "Not processed: Import interrupted"
)

// Outcome is the engine's verdict on a single row. Record is set only for
// OutcomeSubmitted.
type Outcome struct {
	Kind   OutcomeKind
	Result string
	Key    string
	Record *SkylightsRecord
}

// SkylightsRecord is the my.skylights.rel payload written to the actor's repo.
type SkylightsRecord struct {
	Type       string       `json:"$type"`
	Item       RecordItem   `json:"item"`
	Note       RecordNote   `json:"note"`
	Rating     RecordRating `json:"rating"`
	FinishedAt []string     `json:"finishedAt"`
}

type RecordItem struct {
	Ref   string `json:"ref"`
	Value string `json:"value"`
}

type RecordNote struct {
	Value     string `json:"value"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type RecordRating struct {
	Value     int    `json:"value"`
	CreatedAt string `json:"createdAt"`
}

const (
	SkylightsCollection = "my.skylights.rel"
	OpenLibraryRef      = "open-library"
)
