package backfill

import "fmt"

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "updated"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// rowResult is the tagged outcome of one row's pipeline.
type rowResult struct {
	Outcome  outcome
	Kind     Kind
	Err      error
	ImageURL string
	Detail   string
}

func succeeded(url string) rowResult {
	return rowResult{Outcome: outcomeSuccess, Kind: KindUpdated, ImageURL: url}
}

func skipped(kind Kind, format string, args ...any) rowResult {
	return rowResult{Outcome: outcomeSkipped, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func failed(kind Kind, err error) rowResult {
	return rowResult{Outcome: outcomeFailed, Kind: kind, Err: err}
}

// entry renders the result as a report entry for row id in table.
func (r rowResult) entry(table, id string) Entry {
	e := Entry{Table: table, RowID: id, Kind: r.Kind}
	switch r.Outcome {
	case outcomeSuccess:
		e.Level = LevelInfo
		e.Message = "updated: " + r.ImageURL
	case outcomeSkipped:
		e.Level = LevelInfo
		e.Message = r.Detail
	default:
		e.Level = LevelError
		e.Message = fmt.Sprintf("%s: %v", r.Kind, r.Err)
	}
	return e
}
