// Package telemetry wires optional Sentry error reporting. Nothing is sent
// unless a DSN is configured.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/privacy"
)

// FlushTimeout bounds how long shutdown waits for queued events.
const FlushTimeout = 2 * time.Second

var enabled atomic.Bool

// Init initializes the Sentry SDK and routes enhanced errors to it. It
// returns false without error when no DSN is configured.
func Init(settings *conf.TelemetrySettings, version string) (bool, error) {
	if settings == nil || settings.SentryDSN == "" {
		return false, nil
	}
	return initWithOptions(clientOptions(settings, version))
}

func clientOptions(settings *conf.TelemetrySettings, version string) sentry.ClientOptions {
	env := settings.Environment
	if env == "" {
		env = "production"
	}
	return sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      env,
		ServerName:       "", // never leak the hostname
		Release:          fmt.Sprintf("imagebackfill@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
}

func initWithOptions(opts sentry.ClientOptions) (bool, error) {
	if err := sentry.Init(opts); err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	enabled.Store(true)
	return true, nil
}

// Enabled reports whether Init activated Sentry.
func Enabled() bool {
	return enabled.Load()
}

// Flush waits up to timeout for queued events to be delivered.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
