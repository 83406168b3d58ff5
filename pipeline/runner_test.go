package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/stockwatch/history"
	"github.com/hazyhaar/stockwatch/render"
	"github.com/hazyhaar/stockwatch/stock"
)

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (render.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return render.Snapshot{}, f.err
	}
	return render.Snapshot{URL: url, HTML: f.html}, nil
}

type appended struct {
	name   string
	rarity stock.Rarity
}

type fakeStore struct {
	schemaErr error
	failFor   map[string]bool
	appends   []appended
	runs      []history.Run
}

func (f *fakeStore) EnsureSchema(context.Context) error { return f.schemaErr }

func (f *fakeStore) Append(_ context.Context, name string, rarity stock.Rarity) error {
	if f.failFor[name] {
		return errors.New("insert failed")
	}
	f.appends = append(f.appends, appended{name, rarity})
	return nil
}

func (f *fakeStore) RecordRun(_ context.Context, run history.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

type fakeNotifier struct {
	err      error
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, msg string) error {
	f.messages = append(f.messages, msg)
	return f.err
}

func page(boxes ...string) string {
	return fmt.Sprintf(`<html><body><div id="mw-customcollapsible-Current">%s</div></body></html>`,
		strings.Join(boxes, ""))
}

func box(name, class string) string {
	return fmt.Sprintf(`<div class="fruit-stock"><span class="%s"><a href="/wiki/%s">%s</a></span></div>`, class, name, name)
}

var fixedNow = time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

type fixture struct {
	renderer *fakeRenderer
	store    *fakeStore
	notifier *fakeNotifier
	metrics  *Metrics
	slept    []time.Duration
	runner   *Runner
}

func newFixture(t *testing.T, html string, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		renderer: &fakeRenderer{html: html},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		metrics:  NewMetrics(prometheus.NewRegistry(), "test"),
	}
	cfg := Config{
		URL:     "https://example.test/Stock",
		Metrics: f.metrics,
		Now:     func() time.Time { return fixedNow },
		Sleep: func(_ context.Context, d time.Duration) error {
			f.slept = append(f.slept, d)
			return nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.runner = New(cfg, f.renderer, nil, f.store, f.notifier)
	return f
}

func TestRun_MythicalPersistedAndAlerted(t *testing.T) {
	f := newFixture(t, page(box("Dragon", "fruit--Mythical) Outline-B")), nil)

	rep := f.runner.Run(context.Background())

	require.Equal(t, Succeeded, rep.Outcome)
	assert.Equal(t, []appended{{"Dragon", stock.Mythical}}, f.store.appends)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "MYTHICAL DETECTED: Dragon")
	assert.Equal(t, "🚨 MYTHICAL DETECTED: Dragon at 09:05!", f.notifier.messages[0])
	assert.Equal(t, 1, rep.Persisted)
	assert.Equal(t, 1, rep.Alerted)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Alerts))
}

func TestRun_BaselineDropped(t *testing.T) {
	f := newFixture(t, page(box("Mink", "fruit--Common) Outline-B")), nil)

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.Empty(t, f.store.appends)
	assert.Empty(t, f.notifier.messages)
	assert.Equal(t, 1, rep.Baseline)
	assert.Empty(t, rep.Sightings)
	require.Len(t, f.store.runs, 1)
	assert.Equal(t, 1, f.store.runs[0].Baseline)
}

func TestRun_RenderTimeout(t *testing.T) {
	f := newFixture(t, "", nil)
	f.renderer.err = &render.Error{Stage: render.StageWaitVisible, URL: "u", Err: render.ErrTimeout}

	rep := f.runner.Run(context.Background())

	assert.Equal(t, FailedRender, rep.Outcome)
	assert.Equal(t, 2, rep.Outcome.ExitCode())
	assert.True(t, IsRenderTimeout(rep))
	assert.Empty(t, f.store.appends)
	assert.Empty(t, f.notifier.messages)
	require.Len(t, f.store.runs, 1)
	assert.Equal(t, "failed_render", f.store.runs[0].Outcome)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, rep.RunID, f.store.runs[0].RunID)
	assert.NotEmpty(t, f.store.runs[0].Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("failed_render")))
}

func TestRun_TargetBypassesTierAndMalformedSkipped(t *testing.T) {
	html := page(
		box("Kitsune", "fruit--Rare) Outline-B"),
		`<div class="fruit-stock"><span class="fruit--Mythical) Outline-B"><a href="/wiki/x"> </a></span></div>`,
	)
	f := newFixture(t, html, nil)

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.Equal(t, []appended{{"Kitsune", stock.Rare}}, f.store.appends)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "RARE DETECTED: Kitsune")
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 2, rep.Containers)
}

func TestRun_NoContainersIsExtractionFailure(t *testing.T) {
	f := newFixture(t, `<html><body><p>maintenance</p></body></html>`, nil)

	rep := f.runner.Run(context.Background())

	assert.Equal(t, FailedExtraction, rep.Outcome)
	assert.ErrorIs(t, rep.Err, stock.ErrNoStockContainers)
	assert.Equal(t, 3, rep.Outcome.ExitCode())
	assert.Empty(t, f.store.appends)
}

func TestRun_NonAlertWorthyPersistedOnly(t *testing.T) {
	f := newFixture(t, page(box("Spin", "fruit--Uncommon) Outline-B")), nil)

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.Equal(t, []appended{{"Spin", stock.Uncommon}}, f.store.appends)
	assert.Empty(t, f.notifier.messages)
	require.Len(t, rep.Sightings, 1)
	assert.False(t, rep.Sightings[0].AlertWorthy)
}

func TestRun_UnrecognizedRarityDropped(t *testing.T) {
	f := newFixture(t, page(box("Dragon", "fruit--Prismatic) Outline-B"), box("Flame", "fruit--Rare) Outline-B")), nil)

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.Equal(t, 1, rep.Unrecognized)
	assert.Equal(t, []appended{{"Flame", stock.Rare}}, f.store.appends)
	assert.Empty(t, f.notifier.messages)
	require.Len(t, f.store.runs, 1)
	assert.Equal(t, 1, f.store.runs[0].Unrecognized)
	assert.Equal(t, 1, f.store.runs[0].Persisted)
}

func TestRun_PerEntryFailuresContinue(t *testing.T) {
	f := newFixture(t, page(
		box("Dragon", "fruit--Mythical) Outline-B"),
		box("Buddha", "fruit--Legendary) Outline-B"),
	), nil)
	f.store.failFor = map[string]bool{"Dragon": true}
	f.notifier.err = errors.New("telegram down")

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.Equal(t, 1, rep.PersistFailures)
	assert.Equal(t, 1, rep.Persisted)
	assert.Equal(t, 2, rep.AlertFailures)
	// A failed persist does not suppress the alert.
	assert.Len(t, f.notifier.messages, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AlertFailures))
}

func TestRun_SchemaFailureDegrades(t *testing.T) {
	f := newFixture(t, page(box("Dragon", "fruit--Mythical) Outline-B")), nil)
	f.store.schemaErr = errors.New("permission denied")

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.True(t, rep.Degraded)
	assert.Empty(t, f.store.appends)
	assert.Len(t, f.notifier.messages, 1)
	// The run row still says why nothing was persisted.
	require.Len(t, f.store.runs, 1)
	assert.True(t, f.store.runs[0].Degraded)
	assert.Equal(t, 1, f.store.runs[0].Extracted)
	assert.Zero(t, f.store.runs[0].Persisted)
}

func TestRun_NilStore(t *testing.T) {
	f := newFixture(t, page(box("Dragon", "fruit--Mythical) Outline-B")), nil)
	f.runner.store = nil

	rep := f.runner.Run(context.Background())

	assert.Equal(t, Succeeded, rep.Outcome)
	assert.True(t, rep.Degraded)
	assert.Len(t, f.notifier.messages, 1)
}

func TestRun_DelayOnlyWhenUnattended(t *testing.T) {
	f := newFixture(t, page(box("Mink", "fruit--Common) Outline-B")), nil)
	f.runner.Run(context.Background())
	assert.Empty(t, f.slept)

	f = newFixture(t, page(box("Mink", "fruit--Common) Outline-B")), func(c *Config) {
		c.Unattended = true
		c.Jitter = func(n time.Duration) time.Duration { return n - 1 }
	})
	f.runner.Run(context.Background())
	require.Len(t, f.slept, 1)
	assert.Equal(t, DefaultDelayMax, f.slept[0])
}

func TestRun_DelayWithinWindow(t *testing.T) {
	for range 50 {
		f := newFixture(t, page(box("Mink", "fruit--Common) Outline-B")), func(c *Config) {
			c.Unattended = true
			c.DelayMin = time.Second
			c.DelayMax = 3 * time.Second
			c.Jitter = nil
		})
		f.runner.Run(context.Background())
		require.Len(t, f.slept, 1)
		assert.GreaterOrEqual(t, f.slept[0], time.Second)
		assert.LessOrEqual(t, f.slept[0], 3*time.Second)
	}
}

// sqliteStore is a real, context-honouring store that remembers run-log
// writes and their results.
type sqliteStore struct {
	*history.SQLite
	runs []history.Run
	errs []error
}

func (s *sqliteStore) RecordRun(ctx context.Context, run history.Run) error {
	err := s.SQLite.RecordRun(ctx, run)
	s.runs = append(s.runs, run)
	s.errs = append(s.errs, err)
	return err
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	db, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(context.Background()))
	store := &sqliteStore{SQLite: db}

	renderer := &fakeRenderer{html: page(box("Dragon", "fruit--Mythical) Outline-B"))}
	notifier := &fakeNotifier{}
	runner := New(Config{
		URL:        "https://example.test/Stock",
		Unattended: true,
		DelayMin:   time.Hour,
		DelayMax:   time.Hour,
		Metrics:    NewMetrics(prometheus.NewRegistry(), "test"),
		Now:        func() time.Time { return fixedNow },
	}, renderer, nil, store, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := runner.Run(ctx)

	assert.Equal(t, FailedRender, rep.Outcome)
	assert.ErrorIs(t, rep.Err, context.Canceled)
	assert.False(t, rep.Degraded)
	assert.Zero(t, renderer.calls)
	assert.Empty(t, notifier.messages)

	// The run row is written on a context detached from the cancelled run.
	require.Len(t, store.runs, 1)
	assert.NoError(t, store.errs[0])
	assert.Equal(t, "failed_render", store.runs[0].Outcome)
	assert.Equal(t, rep.RunID, store.runs[0].RunID)
	assert.Contains(t, store.runs[0].Error, "cancelled before render")

	// The same write on the cancelled context would have been refused.
	assert.Error(t, db.RecordRun(ctx, store.runs[0]))
}

func TestAlertMessage(t *testing.T) {
	got := AlertMessage(stock.Sighting{Name: "Tiger", Rarity: stock.Legendary}, "23:59")
	assert.Equal(t, "🚨 LEGENDARY DETECTED: Tiger at 23:59!", got)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed_extraction", FailedExtraction.String())
	assert.Equal(t, 0, Succeeded.ExitCode())
	assert.Equal(t, 1, Outcome(9).ExitCode())
}
