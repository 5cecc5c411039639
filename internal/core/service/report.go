package service

import "shelfsync/internal/core/domain/models"

// Report accumulates annotated rows in input order.
type Report struct {
	columns []string
	rows    []*models.ImportRow
	counts  map[models.OutcomeKind]int
}

// NewReport starts a report for rows with the given source columns. The
// Import Result column is appended unless the source already had one.
func NewReport(sourceColumns []string) *Report {
	cols := make([]string, 0, len(sourceColumns)+1)
	hasResult := false
	for _, c := range sourceColumns {
		if c == models.ColImportResult {
			hasResult = true
		}
		cols = append(cols, c)
	}
	if !hasResult {
		cols = append(cols, models.ColImportResult)
	}
	return &Report{columns: cols, counts: make(map[models.OutcomeKind]int)}
}

// Append records row with its final result.
func (r *Report) Append(row *models.ImportRow, kind models.OutcomeKind, result string) {
	row.Result = result
	r.rows = append(r.rows, row)
	r.counts[kind]++
}

func (r *Report) Columns() []string { return r.columns }

func (r *Report) Rows() []*models.ImportRow { return r.rows }

func (r *Report) Len() int { return len(r.rows) }

// Count returns how many rows ended with the given outcome.
func (r *Report) Count(kind models.OutcomeKind) int { return r.counts[kind] }
