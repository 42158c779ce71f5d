package backfill

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusDone        Status = "done"
	StatusFailedFatal Status = "failed_fatal"
)

// Level is the severity of a report entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Kind classifies a report entry.
type Kind string

const (
	KindConfigError   Kind = "config_error"
	KindFetchError    Kind = "fetch_error"
	KindProviderError Kind = "provider_error"
	KindNoCandidate   Kind = "no_candidate"
	KindDownloadError Kind = "download_error"
	KindStorageError  Kind = "storage_error"
	KindUpdateError   Kind = "update_error"
	KindSkipped       Kind = "skipped"
	KindUpdated       Kind = "updated"
	KindProgress      Kind = "progress"
	KindScope         Kind = "scope"
	KindInterrupted   Kind = "interrupted"
)

// Entry is one line of the run report.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Table   string    `json:"table,omitempty"`
	RowID   string    `json:"row_id,omitempty"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
}

// TableTally counts row outcomes for one table.
type TableTally struct {
	Table       string `json:"table"`
	Rows        int    `json:"rows"`
	Succeeded   int    `json:"succeeded"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Deferred    int    `json:"deferred"`
	FetchFailed bool   `json:"fetch_failed"`
}

// RunReport is the result of one invocation. It is built in memory and
// returned to the caller; nothing is persisted.
type RunReport struct {
	RunID       string       `json:"run_id"`
	Status      Status       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Interrupted bool         `json:"interrupted"`
	Entries     []Entry      `json:"entries"`
	Tables      []TableTally `json:"tables"`

	mu sync.Mutex
}

// HTTPStatus maps the run status to the trigger's response code.
func (r *RunReport) HTTPStatus() int {
	if r.Status == StatusFailedFatal {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// Totals sums the per-table tallies.
func (r *RunReport) Totals() TableTally {
	var t TableTally
	for i := range r.Tables {
		t.Rows += r.Tables[i].Rows
		t.Succeeded += r.Tables[i].Succeeded
		t.Skipped += r.Tables[i].Skipped
		t.Failed += r.Tables[i].Failed
		t.Deferred += r.Tables[i].Deferred
	}
	return t
}

// EntriesOfKind returns the entries with kind k, in report order.
func (r *RunReport) EntriesOfKind(k Kind) []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Summary renders a short human readable digest of the run.
func (r *RunReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished with status %s", r.RunID, r.Status)
	if r.Interrupted {
		b.WriteString(" (interrupted)")
	}
	b.WriteString(".\n")

	if r.Status == StatusFailedFatal {
		for _, e := range r.EntriesOfKind(KindConfigError) {
			fmt.Fprintf(&b, "%s\n", e.Message)
		}
		return b.String()
	}

	for _, t := range r.Tables {
		if t.FetchFailed {
			fmt.Fprintf(&b, "%s: rows could not be listed\n", t.Table)
			continue
		}
		fmt.Fprintf(&b, "%s: %d updated, %d skipped, %d failed of %d rows\n",
			t.Table, t.Succeeded, t.Skipped, t.Failed, t.Rows)
	}
	total := r.Totals()
	fmt.Fprintf(&b, "Total: %d updated, %d skipped, %d failed in %s",
		total.Succeeded, total.Skipped, total.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	return b.String()
}

func (r *RunReport) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, e)
}

func (r *RunReport) addTally(t TableTally) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tables = append(r.Tables, t)
}

func (r *RunReport) markInterrupted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Interrupted = true
}

// finish sets the terminal state and orders tallies by the table scope.
func (r *RunReport) finish(status Status, at time.Time, scope []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.FinishedAt = at
	slices.SortStableFunc(r.Tables, func(a, b TableTally) int {
		return slices.Index(scope, a.Table) - slices.Index(scope, b.Table)
	})
}
