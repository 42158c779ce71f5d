// Package notification pushes backfill run summaries to chat and mail
// services through shoutrrr URLs.
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/wanderlist/imagebackfill/internal/backfill"
	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/logger"
	"github.com/wanderlist/imagebackfill/internal/privacy"
)

const (
	defaultTitle   = "Image backfill"
	defaultTimeout = 10 * time.Second
)

// sender is the part of shoutrrr's router the notifier uses.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends one message per finished run. A nil *Notifier is valid and
// sends nothing.
type Notifier struct {
	sender sender
	title  string
	log    logger.Logger
}

// New builds a notifier for urls. It returns nil when no URL is configured.
func New(urls []string, title string, l logger.Logger) (*Notifier, error) {
	urls = slices.DeleteFunc(slices.Clone(urls), func(u string) bool { return strings.TrimSpace(u) == "" })
	if len(urls) == 0 {
		return nil, nil
	}

	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("invalid notification URL: %w", err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(urls)).
			Build()
	}
	router.Timeout = defaultTimeout
	router.SetLogger(log.New(io.Discard, "", 0))

	return newNotifier(router, title, l), nil
}

func newNotifier(s sender, title string, l logger.Logger) *Notifier {
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	if l == nil {
		l = logger.NewDiscard()
	}
	return &Notifier{sender: s, title: title, log: l}
}

// NotifyRun sends the run summary. Delivery failures are returned and logged
// but never change the run's outcome.
func (n *Notifier) NotifyRun(ctx context.Context, report *backfill.RunReport) error {
	if n == nil || report == nil {
		return nil
	}
	return n.send(ctx, statusLabel(report), report.Summary(), "run_id", report.RunID)
}

// Send delivers a free-form message titled "<title>: subject".
func (n *Notifier) Send(ctx context.Context, subject, message string) error {
	if n == nil {
		return nil
	}
	return n.send(ctx, subject, message, "subject", subject)
}

// send delivers one message. It returns when ctx is done even if the
// underlying services have not answered; the sender's own timeout ends
// that delivery.
func (n *Notifier) send(ctx context.Context, subject, message, key, value string) error {
	params := stypes.Params{}
	params.SetTitle(fmt.Sprintf("%s: %s", n.title, subject))

	sendErr := ctx.Err()
	if sendErr == nil {
		done := make(chan []error, 1)
		go func() { done <- n.sender.Send(message, &params) }()

		select {
		case errs := <-done:
			for _, err := range errs {
				if err != nil {
					sendErr = err
					break
				}
			}
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
	}

	if sendErr != nil {
		category := errors.CategoryIntegration
		switch {
		case errors.Is(sendErr, context.DeadlineExceeded):
			category = errors.CategoryTimeout
		case errors.Is(sendErr, context.Canceled):
			category = errors.CategoryCancellation
		}
		err := errors.New(privacy.WrapError(sendErr)).
			Component("notification").
			Category(category).
			Priority(errors.PriorityLow).
			Context(key, value).
			Build()
		n.log.Warn("failed to send notification",
			logger.String(key, value),
			logger.Error(err))
		return err
	}

	n.log.Debug("notification sent", logger.String(key, value))
	return nil
}

func statusLabel(r *backfill.RunReport) string {
	switch {
	case r.Status == backfill.StatusFailedFatal:
		return "failed"
	case r.Interrupted:
		return "interrupted"
	case r.Totals().Failed > 0:
		return "completed with errors"
	default:
		return "completed"
	}
}
