// Package app assembles a backfill orchestrator and its collaborators from
// settings and owns their lifetime. Both the run command and the HTTP
// trigger go through a Runner.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wanderlist/imagebackfill/internal/backfill"
	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/datastore"
	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
	"github.com/wanderlist/imagebackfill/internal/imagefetch"
	"github.com/wanderlist/imagebackfill/internal/imageprovider"
	"github.com/wanderlist/imagebackfill/internal/logger"
	"github.com/wanderlist/imagebackfill/internal/notification"
	"github.com/wanderlist/imagebackfill/internal/objectstore"
	"github.com/wanderlist/imagebackfill/internal/observability"
)

// notifyTimeout bounds the post-run notification.
const notifyTimeout = 30 * time.Second

// Option configures a Runner.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	metrics   *observability.Metrics
	sleeper   func(time.Duration)
}

// WithTransport routes every outbound HTTP request through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithMetrics uses m instead of a freshly created metrics registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSleeper overrides the pause between successful rows.
func WithSleeper(fn func(time.Duration)) Option {
	return func(o *options) { o.sleeper = fn }
}

// Runner executes backfill runs with collaborators built once from settings.
type Runner struct {
	settings     *conf.Settings
	log          logger.Logger
	metrics      *observability.Metrics
	orchestrator *backfill.Orchestrator
	notifier     *notification.Notifier
	closers      []func() error
}

// New builds a Runner. Backends are only opened when every configuration
// requirement is present; a backend that fails to open does not fail New but
// turns every run into a fatal report naming the error.
func New(ctx context.Context, settings *conf.Settings, log logger.Logger, opts ...Option) (*Runner, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.NewDiscard()
	}

	m := o.metrics
	if m == nil {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	r := &Runner{settings: settings, log: log, metrics: m}

	userAgent := "imagebackfill/" + settings.Version
	apiClient := r.httpClient(o.transport, httpclient.DefaultTimeout, userAgent)
	providerClient := r.httpClient(o.transport, settings.Provider.Timeout, userAgent)
	fetchClient := r.httpClient(o.transport, settings.Fetch.Timeout, userAgent)

	deps := backfill.Dependencies{
		Resolver: newResolver(settings, providerClient, m, log.Module("imageprovider")),
		Fetcher:  imagefetch.New(fetchClient, settings.Fetch.MaxBytes, m.ImageProvider),
	}
	orchestratorOpts := []backfill.Option{
		backfill.WithLogger(log.Module("backfill")),
		backfill.WithMetrics(m.Backfill),
	}
	if o.sleeper != nil {
		orchestratorOpts = append(orchestratorOpts, backfill.WithSleeper(o.sleeper))
	}

	required := requirements(settings)
	if len(conf.Missing(settings.Requirements())) == 0 {
		store, err := datastore.New(ctx, &settings.DataSource, apiClient, log.Module("datastore"))
		if err != nil {
			log.Error("failed to open data source",
				logger.String("type", settings.DataSource.Type),
				logger.Error(err))
			orchestratorOpts = append(orchestratorOpts,
				backfill.WithSetupError("row source", err),
				backfill.WithSetupError("row updater", err))
		} else {
			deps.Rows = store
			deps.Updater = store
			r.closers = append(r.closers, store.Close)
		}

		writer, err := objectstore.New(ctx, &settings.Storage, apiClient)
		if err != nil {
			log.Error("failed to create object store writer",
				logger.String("type", settings.Storage.Type),
				logger.Error(err))
			orchestratorOpts = append(orchestratorOpts, backfill.WithSetupError("object store writer", err))
		} else {
			if c, ok := writer.(io.Closer); ok {
				r.closers = append(r.closers, c.Close)
			}
			deps.Writer = objectstore.Instrument(writer, settings.Storage.Type, m.Backfill)
		}
	}

	r.orchestrator = backfill.New(backfill.Config{
		Tables:        settings.Backfill.Tables,
		PrimaryTable:  settings.Backfill.PrimaryTable,
		Bucket:        settings.Storage.Bucket,
		ChunkSize:     settings.Backfill.ChunkSize,
		InterRowDelay: settings.Backfill.InterRowDelay,
		MaxChunks:     settings.Backfill.MaxChunks,
		TableWorkers:  settings.Backfill.TableWorkers,
		Required:      required,
	}, deps, orchestratorOpts...)

	notifier, err := notification.New(settings.Notification.URLs, settings.Notification.Title, log.Module("notification"))
	if err != nil {
		log.Warn("notifications disabled", logger.Error(err))
	}
	r.notifier = notifier

	return r, nil
}

func (r *Runner) httpClient(rt http.RoundTripper, timeout time.Duration, userAgent string) *httpclient.Client {
	c := httpclient.New(&httpclient.Config{
		DefaultTimeout: timeout,
		UserAgent:      userAgent,
		Transport:      rt,
	})
	r.closers = append(r.closers, func() error {
		c.Close()
		return nil
	})
	return c
}

func requirements(settings *conf.Settings) []backfill.Requirement {
	reqs := settings.Requirements()
	out := make([]backfill.Requirement, len(reqs))
	for i, req := range reqs {
		out[i] = backfill.Requirement{Name: req.Name, Value: req.Value}
	}
	return out
}

// newResolver builds the configured provider behind the shared limiter,
// cache and selection policy.
func newResolver(settings *conf.Settings, client *httpclient.Client, m *observability.Metrics, log logger.Logger) *imageprovider.ImageResolver {
	p := &settings.Provider

	var searcher imageprovider.Searcher
	switch p.Type {
	case conf.ProviderWikimedia:
		searcher = imageprovider.NewWikimediaSearcher(client, p.BaseURL, p.ThumbSize, settings.Version)
	default:
		searcher = imageprovider.NewPexelsSearcher(client, p.BaseURL, p.APIKey)
	}

	selection := imageprovider.FirstResult()
	if p.Selection == conf.SelectionRandom {
		selection = imageprovider.RandomResult(p.Seed)
	}

	opts := []imageprovider.Option{
		imageprovider.WithPerPage(p.PerPage),
		imageprovider.WithSelection(selection),
		imageprovider.WithMetrics(m.ImageProvider),
		imageprovider.WithLogger(log),
	}
	if limiter := providerLimiter(settings); limiter != nil {
		opts = append(opts, imageprovider.WithRateLimiter(limiter))
	}
	opts = append(opts, imageprovider.WithCache(p.CacheTTL))

	log.Debug("image resolver configured",
		logger.String("provider", p.Type),
		logger.String("selection", p.Selection),
		logger.Int64("seed", p.Seed),
		logger.Float64("rate_limit", p.RateLimit),
		logger.Duration("cache_ttl", p.CacheTTL))
	return imageprovider.NewResolver(searcher, opts...)
}

// providerLimiter returns the request budget shared by all table workers.
// With several workers and no explicit rate the sequential pacing of one
// request per inter-row delay is kept.
func providerLimiter(settings *conf.Settings) *rate.Limiter {
	switch {
	case settings.Provider.RateLimit > 0:
		return rate.NewLimiter(rate.Limit(settings.Provider.RateLimit), 1)
	case settings.Backfill.TableWorkers > 1 && settings.Backfill.InterRowDelay > 0:
		return rate.NewLimiter(rate.Every(settings.Backfill.InterRowDelay), 1)
	default:
		return nil
	}
}

// Run executes one backfill and sends the run notification. Notification
// failures never change the report.
func (r *Runner) Run(ctx context.Context) *backfill.RunReport {
	report := r.orchestrator.Run(ctx)

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	_ = r.notifier.NotifyRun(notifyCtx, report)

	return report
}

// Metrics returns the registry the runner records into.
func (r *Runner) Metrics() *observability.Metrics {
	return r.metrics
}

// Close releases backends and HTTP clients.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
