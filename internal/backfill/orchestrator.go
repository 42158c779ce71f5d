// Package backfill finds rows without an image, resolves an image for each
// by name, copies it into the object store and patches the row with the
// public URL. Row level failures are recorded and never abort a run.
package backfill

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wanderlist/imagebackfill/internal/datastore"
	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/imageprovider"
	"github.com/wanderlist/imagebackfill/internal/logger"
	"github.com/wanderlist/imagebackfill/internal/objectstore"
	"github.com/wanderlist/imagebackfill/internal/observability/metrics"
)

const (
	DefaultChunkSize    = 10
	DefaultPrimaryTable = "activities"
)

// RowSource lists the rows of a table that lack an image.
type RowSource interface {
	ListRows(ctx context.Context, table string) ([]datastore.Row, error)
}

// Resolver finds an image candidate for a name; nil means none was found.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*imageprovider.ImageCandidate, error)
}

// Fetcher downloads image bytes.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Writer stores bytes under a key and returns the public URL.
type Writer interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// Updater sets a row's image URL.
type Updater interface {
	PatchImageURL(ctx context.Context, table, rowID, url string) error
}

// Requirement is a configuration value the run cannot start without.
type Requirement struct {
	Name  string
	Value string
}

// Config parameterises a run.
type Config struct {
	Tables        []string
	PrimaryTable  string
	Bucket        string
	ChunkSize     int
	InterRowDelay time.Duration
	MaxChunks     int // per table, 0 = unlimited
	TableWorkers  int // 1 = sequential
	Required      []Requirement
}

// Dependencies are the collaborators a run drives.
type Dependencies struct {
	Rows     RowSource
	Resolver Resolver
	Fetcher  Fetcher
	Writer   Writer
	Updater  Updater
}

// Orchestrator runs backfills. A single Orchestrator may serve concurrent
// Run calls; each gets its own report.
type Orchestrator struct {
	cfg     Config
	deps    Dependencies
	log     logger.Logger
	metrics *metrics.BackfillMetrics
	now     func() time.Time
	sleep   func(time.Duration)

	// setup holds construction errors keyed by collaborator name.
	setup map[string]error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records run and row metrics.
func WithMetrics(m *metrics.BackfillMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleeper overrides the inter-row pause.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithSetupError records that the named collaborator could not be built.
// Names are those used in the fatal entry: "row source", "image resolver",
// "image fetcher", "object store writer" and "row updater".
func WithSetupError(collaborator string, err error) Option {
	return func(o *Orchestrator) {
		if err == nil {
			return
		}
		if o.setup == nil {
			o.setup = make(map[string]error)
		}
		o.setup[collaborator] = err
	}
}

// New creates an Orchestrator. Zero values in cfg take their defaults.
func New(cfg Config, deps Dependencies, opts ...Option) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.InterRowDelay < 0 {
		cfg.InterRowDelay = 0
	}
	if cfg.TableWorkers < 1 {
		cfg.TableWorkers = 1
	}
	if cfg.MaxChunks < 0 {
		cfg.MaxChunks = 0
	}
	if cfg.PrimaryTable == "" {
		cfg.PrimaryTable = DefaultPrimaryTable
	}
	if cfg.Bucket == "" {
		cfg.Bucket = objectstore.DefaultBucket
	}

	o := &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		log:   logger.NewDiscard(),
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one backfill invocation and returns its report.
//
// Cancelling ctx stops the run at the next chunk boundary; the chunk in
// progress always completes. An interrupted run still ends in StatusDone
// with Interrupted set. The only fatal condition is missing configuration.
func (o *Orchestrator) Run(ctx context.Context) *RunReport {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: o.now(),
	}
	log := o.log.With(logger.String("run_id", report.RunID))

	if o.metrics != nil {
		o.metrics.RunStarted()
		defer func() {
			o.metrics.RunFinished(string(report.Status), report.FinishedAt.Sub(report.StartedAt).Seconds())
		}()
	}

	if missing := o.missing(); len(missing) > 0 {
		err := errors.Newf("missing required configuration: %s", strings.Join(missing, ", ")).
			Component("backfill").
			Category(errors.CategoryConfiguration).
			Priority(errors.PriorityCritical).
			Context("missing", missing).
			Build()
		o.record(report, log, Entry{Level: LevelError, Kind: KindConfigError, Message: err.Error()})
		report.finish(StatusFailedFatal, o.now(), nil)
		log.Error("backfill aborted", logger.Error(err))
		return report
	}

	scope := o.scope(report, log)
	log.Info("backfill started",
		logger.Any("tables", scope),
		logger.Int("chunk_size", o.cfg.ChunkSize),
		logger.Duration("inter_row_delay", o.cfg.InterRowDelay),
		logger.Int("table_workers", o.cfg.TableWorkers))

	if o.cfg.TableWorkers == 1 {
		for _, table := range scope {
			if ctx.Err() != nil {
				o.interrupt(report, log, table)
				break
			}
			o.runTable(ctx, report, log, table)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.cfg.TableWorkers)
		for _, table := range scope {
			g.Go(func() error {
				if ctx.Err() != nil {
					o.interrupt(report, log, table)
					return nil
				}
				o.runTable(ctx, report, log, table)
				return nil
			})
		}
		_ = g.Wait()
	}

	report.finish(StatusDone, o.now(), scope)
	totals := report.Totals()
	log.Info("backfill finished",
		logger.Int("updated", totals.Succeeded),
		logger.Int("skipped", totals.Skipped),
		logger.Int("failed", totals.Failed),
		logger.Bool("interrupted", report.Interrupted),
		logger.Time("started_at", report.StartedAt),
		logger.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

// missing names every absent requirement, or failing that every absent
// collaborator.
func (o *Orchestrator) missing() []string {
	var missing []string
	for _, r := range o.cfg.Required {
		if strings.TrimSpace(r.Value) == "" {
			missing = append(missing, r.Name)
		}
	}
	if len(o.cfg.Tables) == 0 && !slices.ContainsFunc(missing, isTableScope) {
		missing = append(missing, tableScopeRequirement)
	}
	// Collaborators are only built once configuration is complete.
	if len(missing) > 0 {
		return missing
	}

	collaborators := []struct {
		name    string
		present bool
	}{
		{"row source", o.deps.Rows != nil},
		{"image resolver", o.deps.Resolver != nil},
		{"image fetcher", o.deps.Fetcher != nil},
		{"object store writer", o.deps.Writer != nil},
		{"row updater", o.deps.Updater != nil},
	}
	for _, c := range collaborators {
		if c.present {
			continue
		}
		if err := o.setup[c.name]; err != nil {
			missing = append(missing, fmt.Sprintf("%s (%v)", c.name, err))
			continue
		}
		missing = append(missing, c.name)
	}
	return missing
}

const tableScopeRequirement = "table scope"

func isTableScope(name string) bool {
	return strings.HasPrefix(name, tableScopeRequirement)
}

// scope returns the allow-listed tables minus the primary table and duplicates.
func (o *Orchestrator) scope(report *RunReport, log logger.Logger) []string {
	scope := make([]string, 0, len(o.cfg.Tables))
	for _, table := range o.cfg.Tables {
		table = strings.TrimSpace(table)
		switch {
		case table == "":
			continue
		case strings.EqualFold(table, o.cfg.PrimaryTable):
			o.record(report, log, Entry{
				Level:   LevelWarn,
				Table:   table,
				Kind:    KindScope,
				Message: fmt.Sprintf("table %s is the curated primary table and is never backfilled", table),
			})
		case slices.Contains(scope, table):
			continue
		default:
			scope = append(scope, table)
		}
	}
	return scope
}

func (o *Orchestrator) interrupt(report *RunReport, log logger.Logger, table string) {
	report.markInterrupted()
	o.record(report, log, Entry{
		Level:   LevelWarn,
		Table:   table,
		Kind:    KindInterrupted,
		Message: "run cancelled before table started",
	})
}

// runTable processes one table chunk by chunk.
func (o *Orchestrator) runTable(ctx context.Context, report *RunReport, log logger.Logger, table string) {
	log = log.With(logger.String("table", table))
	tally := TableTally{Table: table}
	defer func() { report.addTally(tally) }()

	rows, err := o.deps.Rows.ListRows(ctx, table)
	if err != nil {
		tally.FetchFailed = true
		if o.metrics != nil {
			o.metrics.RecordTableFailure(table)
		}
		o.record(report, log, Entry{
			Level:   LevelError,
			Table:   table,
			Kind:    KindFetchError,
			Message: fmt.Sprintf("%s: %v", KindFetchError, err),
		})
		return
	}

	tally.Rows = len(rows)
	o.record(report, log, Entry{
		Level:   LevelInfo,
		Table:   table,
		Kind:    KindProgress,
		Message: fmt.Sprintf("%d rows without an image", len(rows)),
	})

	// Rows already in flight finish even when ctx is cancelled.
	rowCtx := context.WithoutCancel(ctx)

	for chunk, start := 0, 0; start < len(rows); chunk, start = chunk+1, start+o.cfg.ChunkSize {
		if o.cfg.MaxChunks > 0 && chunk >= o.cfg.MaxChunks {
			tally.Deferred = len(rows) - start
			o.record(report, log, Entry{
				Level:   LevelInfo,
				Table:   table,
				Kind:    KindProgress,
				Message: fmt.Sprintf("chunk limit %d reached, %d rows left for the next run", o.cfg.MaxChunks, tally.Deferred),
			})
			return
		}
		if ctx.Err() != nil {
			tally.Deferred = len(rows) - start
			report.markInterrupted()
			o.record(report, log, Entry{
				Level:   LevelWarn,
				Table:   table,
				Kind:    KindInterrupted,
				Message: fmt.Sprintf("run cancelled at chunk %d, %d rows left for the next run", chunk+1, tally.Deferred),
			})
			return
		}

		end := min(start+o.cfg.ChunkSize, len(rows))
		log.Debug("processing chunk",
			logger.Int("chunk", chunk+1),
			logger.Int("from", start),
			logger.Int("to", end))

		for _, row := range rows[start:end] {
			res := o.processRow(rowCtx, table, row)
			switch res.Outcome {
			case outcomeSuccess:
				tally.Succeeded++
			case outcomeSkipped:
				tally.Skipped++
			case outcomeFailed:
				tally.Failed++
			}
			if o.metrics != nil {
				o.metrics.RecordRow(table, res.Outcome.String())
			}
			o.record(report, log, res.entry(table, row.ID))

			if res.Outcome == outcomeSuccess && o.cfg.InterRowDelay > 0 {
				o.sleep(o.cfg.InterRowDelay)
			}
		}
	}
}

// processRow runs resolve, download, store and patch for one row.
func (o *Orchestrator) processRow(ctx context.Context, table string, row datastore.Row) rowResult {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return skipped(KindSkipped, "skipped: empty name")
	}

	var candidate *imageprovider.ImageCandidate
	err := o.stage("resolve", func() (err error) {
		candidate, err = o.deps.Resolver.Resolve(ctx, name)
		return err
	})
	if err != nil {
		return failed(KindProviderError, err)
	}
	if candidate == nil {
		return skipped(KindNoCandidate, "skipped: no image found for %q", name)
	}

	var data []byte
	err = o.stage("download", func() (err error) {
		data, err = o.deps.Fetcher.Download(ctx, candidate.SourceURL)
		return err
	})
	if err != nil {
		return failed(KindDownloadError, err)
	}

	key := objectstore.ObjectKey(table, name, row.ID)
	var url string
	err = o.stage("store", func() (err error) {
		url, err = o.deps.Writer.Put(ctx, o.cfg.Bucket, key, data, objectstore.ContentTypeJPEG)
		return err
	})
	if err != nil {
		return failed(KindStorageError, err)
	}

	err = o.stage("update", func() error {
		return o.deps.Updater.PatchImageURL(ctx, table, row.ID, url)
	})
	if err != nil {
		return failed(KindUpdateError, err)
	}
	return succeeded(url)
}

func (o *Orchestrator) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.metrics != nil {
		o.metrics.ObserveStage(name, time.Since(start).Seconds())
	}
	return err
}

// record stamps e, appends it to the report and mirrors it to the log.
func (o *Orchestrator) record(report *RunReport, log logger.Logger, e Entry) {
	e.Time = o.now()
	report.add(e)

	fields := []logger.Field{logger.String("kind", string(e.Kind))}
	if e.Table != "" {
		fields = append(fields, logger.String("table", e.Table))
	}
	if e.RowID != "" {
		fields = append(fields, logger.String("row_id", e.RowID))
	}
	switch e.Level {
	case LevelError, LevelWarn:
		log.Warn(e.Message, fields...)
	default:
		log.Debug(e.Message, fields...)
	}
}
