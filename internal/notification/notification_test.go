package notification

import (
	"context"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderlist/imagebackfill/internal/backfill"
	"github.com/wanderlist/imagebackfill/internal/errors"
)

type fakeSender struct {
	messages []string
	titles   []string
	errs     []error
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	f.messages = append(f.messages, message)
	if params != nil {
		f.titles = append(f.titles, (*params)["title"])
	}
	return f.errs
}

func doneReport(failed int) *backfill.RunReport {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &backfill.RunReport{
		RunID:      "run-1",
		Status:     backfill.StatusDone,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Tables: []backfill.TableTally{
			{Table: "neighborhoods", Rows: 3, Succeeded: 3 - failed, Failed: failed},
		},
	}
}

func TestNew_NoURLs(t *testing.T) {
	t.Parallel()
	n, err := New([]string{"", "  "}, "", nil)
	require.NoError(t, err)
	assert.Nil(t, n)

	// A nil notifier is a no-op.
	assert.NoError(t, n.NotifyRun(t.Context(), doneReport(0)))
}

func TestNew_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := New([]string{"notaservice://token@host"}, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNotifyRun_SendsSummary(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := newNotifier(fs, "", nil)

	require.NoError(t, n.NotifyRun(t.Context(), doneReport(0)))
	require.Len(t, fs.messages, 1)
	assert.Contains(t, fs.messages[0], "neighborhoods: 3 updated, 0 skipped, 0 failed of 3 rows")
	assert.Equal(t, []string{"Image backfill: completed"}, fs.titles)
}

func TestNotifyRun_Titles(t *testing.T) {
	t.Parallel()

	interrupted := doneReport(0)
	interrupted.Interrupted = true

	tests := []struct {
		name   string
		report *backfill.RunReport
		want   string
	}{
		{"completed", doneReport(0), "Nightly: completed"},
		{"with errors", doneReport(1), "Nightly: completed with errors"},
		{"interrupted", interrupted, "Nightly: interrupted"},
		{"fatal", &backfill.RunReport{RunID: "x", Status: backfill.StatusFailedFatal}, "Nightly: failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := &fakeSender{}
			require.NoError(t, newNotifier(fs, "Nightly", nil).NotifyRun(t.Context(), tt.report))
			assert.Equal(t, []string{tt.want}, fs.titles)
		})
	}
}

func TestNotifyRun_DeliveryFailure(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{errs: []error{nil, errors.NewStd("telegram: 401 unauthorized")}}
	n := newNotifier(fs, "", nil)

	err := n.NotifyRun(t.Context(), doneReport(0))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIntegration))
	assert.Contains(t, err.Error(), "401")
}

func TestSend_FreeFormMessage(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := newNotifier(fs, "Nightly", nil)

	require.NoError(t, n.Send(t.Context(), "test", "hello from imagebackfill"))
	assert.Equal(t, []string{"hello from imagebackfill"}, fs.messages)
	assert.Equal(t, []string{"Nightly: test"}, fs.titles)

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.Send(t.Context(), "test", "ignored"))
}

// blockingSender answers only once release is closed.
type blockingSender struct {
	release chan struct{}
}

func (b *blockingSender) Send(string, *stypes.Params) []error {
	<-b.release
	return nil
}

func TestSend_HonoursContextDeadline(t *testing.T) {
	t.Parallel()
	bs := &blockingSender{release: make(chan struct{})}
	defer close(bs.release)
	n := newNotifier(bs, "", nil)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.NotifyRun(ctx, doneReport(0))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}

func TestSend_CancelledBeforeSending(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := newNotifier(fs, "", nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := n.Send(ctx, "test", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Empty(t, fs.messages)
}
