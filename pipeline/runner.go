// Package pipeline runs one stock check end to end: optional start delay,
// schema setup, render, extract, then classify, persist and notify each
// entry in page order.
//
// Only render and structural extraction failures end a run early. Schema,
// persistence and notification errors are logged and counted; the run still
// reports Succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hazyhaar/stockwatch/history"
	"github.com/hazyhaar/stockwatch/notify"
	"github.com/hazyhaar/stockwatch/render"
	"github.com/hazyhaar/stockwatch/stock"
)

const tracerName = "github.com/hazyhaar/stockwatch/pipeline"

// Default unattended start delay window.
const (
	DefaultDelayMin = 900 * time.Second
	DefaultDelayMax = 1080 * time.Second
)

// runLogTimeout bounds the run-log write, which happens on a context
// detached from the run so cancelled runs are still recorded.
const runLogTimeout = 10 * time.Second

// Renderer produces the post-script markup of a page.
type Renderer interface {
	Render(ctx context.Context, url string) (render.Snapshot, error)
}

// Store is the part of history.Store the runner writes to.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, name string, rarity stock.Rarity) error
	RecordRun(ctx context.Context, run history.Run) error
}

// Config holds runner settings. Zero values take defaults.
type Config struct {
	URL string

	// Unattended enables the randomized start delay.
	Unattended bool
	DelayMin   time.Duration
	DelayMax   time.Duration

	Logger  *slog.Logger
	Metrics *Metrics

	// NewID names a run. Default: UUIDv7, so ids sort by start time.
	NewID func() string

	// Test hooks.
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(n time.Duration) time.Duration
}

func (c *Config) defaults() {
	if c.DelayMin <= 0 {
		c.DelayMin = DefaultDelayMin
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = max(DefaultDelayMax, c.DelayMin)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(prometheus.NewRegistry(), "")
	}
	if c.NewID == nil {
		c.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.Jitter == nil {
		c.Jitter = rand.N[time.Duration]
	}
}

// Runner wires the stages together. A nil store runs without persistence.
type Runner struct {
	cfg        Config
	renderer   Renderer
	classifier *stock.Classifier
	store      Store
	notifier   notify.Notifier
	tracer     trace.Tracer
}

// New creates a Runner. A nil classifier uses the default targeting.
func New(cfg Config, r Renderer, c *stock.Classifier, s Store, n notify.Notifier) *Runner {
	cfg.defaults()
	if c == nil {
		c = stock.NewClassifier(nil, nil)
	}
	if n == nil {
		n = notify.NewLog(cfg.Logger)
	}
	return &Runner{
		cfg:        cfg,
		renderer:   r,
		classifier: c,
		store:      s,
		notifier:   n,
		tracer:     otel.Tracer(tracerName),
	}
}

// Run executes one check and returns its report. It never panics on stage
// failures; the outcome carries them.
func (r *Runner) Run(ctx context.Context) *Report {
	rep := &Report{RunID: r.cfg.NewID(), StartedAt: r.cfg.Now()}
	log := r.cfg.Logger.With("run_id", rep.RunID)

	ctx, span := r.tracer.Start(ctx, "stockwatch.run", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.String("url", r.cfg.URL),
		attribute.Bool("unattended", r.cfg.Unattended),
	))
	defer span.End()

	defer func() {
		rep.FinishedAt = r.cfg.Now()
		r.finish(ctx, log, rep)
		span.SetAttributes(attribute.String("outcome", rep.Outcome.String()))
		if rep.Err != nil {
			span.RecordError(rep.Err)
			span.SetStatus(codes.Error, rep.Outcome.String())
		}
	}()

	if r.cfg.Unattended {
		r.delay(ctx, log)
	}
	if err := ctx.Err(); err != nil {
		rep.Outcome = FailedRender
		rep.Err = fmt.Errorf("pipeline: cancelled before render: %w", err)
		log.WarnContext(ctx, "pipeline: run cancelled before render", "error", err)
		return rep
	}

	persist := r.ensureSchema(ctx, log)
	rep.Degraded = !persist

	snap, err := r.render(ctx)
	if err != nil {
		rep.Outcome = FailedRender
		rep.Err = err
		log.ErrorContext(ctx, "pipeline: render failed", "url", r.cfg.URL, "error", err)
		return rep
	}

	ext, err := r.extract(ctx, log, snap.HTML)
	if err != nil {
		rep.Outcome = FailedExtraction
		rep.Err = err
		log.ErrorContext(ctx, "pipeline: extraction failed", "url", r.cfg.URL, "error", err)
		return rep
	}
	rep.Containers = ext.Containers
	rep.Extracted = len(ext.Entries)
	rep.Skipped = len(ext.Skipped)
	r.cfg.Metrics.EntriesSeen.Add(float64(len(ext.Entries)))
	r.cfg.Metrics.EntriesDropped.WithLabelValues("partial").Add(float64(len(ext.Skipped)))

	// One timestamp for every alert of the run.
	clock := r.cfg.Now().Format("15:04")
	for _, e := range ext.Entries {
		r.process(ctx, log, rep, e, persist, clock)
	}

	rep.Outcome = Succeeded
	log.InfoContext(ctx, "pipeline: run complete",
		"extracted", rep.Extracted,
		"retained", len(rep.Sightings),
		"persisted", rep.Persisted,
		"alerted", rep.Alerted,
		"degraded", rep.Degraded,
	)
	return rep
}

// delay waits a random duration in [DelayMin, DelayMax]. Cancellation ends
// the wait early and Run stops before touching the store or the browser.
func (r *Runner) delay(ctx context.Context, log *slog.Logger) {
	d := r.cfg.DelayMin
	if span := r.cfg.DelayMax - r.cfg.DelayMin; span > 0 {
		d += r.cfg.Jitter(span + 1)
	}
	log.InfoContext(ctx, "pipeline: start delay", "duration", d.Round(time.Second).String())
	if err := r.cfg.Sleep(ctx, d); err != nil {
		log.WarnContext(ctx, "pipeline: start delay interrupted", "error", err)
	}
}

// ensureSchema reports whether persistence is available for this run.
func (r *Runner) ensureSchema(ctx context.Context, log *slog.Logger) bool {
	if r.store == nil {
		log.WarnContext(ctx, "pipeline: no history store, persistence disabled")
		return false
	}
	ctx, span := r.tracer.Start(ctx, "history.ensure_schema")
	defer span.End()

	if err := r.store.EnsureSchema(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ensure schema")
		log.ErrorContext(ctx, "pipeline: schema setup failed, persistence disabled for this run", "error", err)
		return false
	}
	return true
}

func (r *Runner) render(ctx context.Context) (render.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "render")
	defer span.End()

	start := time.Now()
	snap, err := r.renderer.Render(ctx, r.cfg.URL)
	r.cfg.Metrics.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
		return render.Snapshot{}, err
	}
	span.SetAttributes(attribute.Int("html.bytes", len(snap.HTML)))
	return snap, nil
}

func (r *Runner) extract(ctx context.Context, log *slog.Logger, html string) (*stock.Extraction, error) {
	_, span := r.tracer.Start(ctx, "extract")
	defer span.End()

	ext, err := stock.Extract(html)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract")
		return nil, err
	}
	for _, s := range ext.Skipped {
		log.WarnContext(ctx, "pipeline: stock entry skipped", "index", s.Index, "reason", s.Reason)
	}
	span.SetAttributes(
		attribute.Int("containers", ext.Containers),
		attribute.Int("entries", len(ext.Entries)),
		attribute.Int("skipped", len(ext.Skipped)),
	)
	return ext, nil
}

// process classifies one entry, then persists and notifies it. Failures
// are recorded on rep and never abort the loop.
func (r *Runner) process(ctx context.Context, log *slog.Logger, rep *Report, e stock.Entry, persist bool, clock string) {
	m := r.cfg.Metrics
	ctx, span := r.tracer.Start(ctx, "entry", trace.WithAttributes(attribute.String("fruit", e.Name)))
	defer span.End()

	s, decision, err := r.classifier.Classify(e)
	span.SetAttributes(attribute.String("decision", decision.String()))
	switch decision {
	case stock.DropUnrecognized:
		rep.Unrecognized++
		m.EntriesDropped.WithLabelValues("unrecognized").Inc()
		log.WarnContext(ctx, "pipeline: unrecognized rarity, entry dropped",
			"fruit", e.Name, "label", e.RarityLabel, "error", err)
		return
	case stock.DropBaseline:
		rep.Baseline++
		m.EntriesDropped.WithLabelValues("baseline").Inc()
		return
	}

	rep.Sightings = append(rep.Sightings, s)
	span.SetAttributes(attribute.String("rarity", string(s.Rarity)), attribute.Bool("alert", s.AlertWorthy))

	if persist {
		if err := r.store.Append(ctx, s.Name, s.Rarity); err != nil {
			rep.PersistFailures++
			m.PersistFailures.Inc()
			span.RecordError(err)
			log.ErrorContext(ctx, "pipeline: persist failed", "fruit", s.Name, "rarity", s.Rarity, "error", err)
		} else {
			rep.Persisted++
			m.Persisted.Inc()
		}
	}

	if !s.AlertWorthy {
		log.InfoContext(ctx, "pipeline: found", "fruit", s.Name, "rarity", s.Rarity)
		return
	}

	msg := AlertMessage(s, clock)
	if err := r.notifier.Notify(ctx, msg); err != nil {
		rep.AlertFailures++
		m.AlertFailures.Inc()
		span.RecordError(err)
		log.ErrorContext(ctx, "pipeline: alert failed", "fruit", s.Name, "rarity", s.Rarity, "error", err)
		return
	}
	rep.Alerted++
	m.Alerts.Inc()
	log.InfoContext(ctx, "pipeline: alert sent", "fruit", s.Name, "rarity", s.Rarity)
}

// finish records metrics and the run-log row. Degraded runs are logged
// too; the write usually fails alongside the schema and is only warned.
func (r *Runner) finish(ctx context.Context, log *slog.Logger, rep *Report) {
	m := r.cfg.Metrics
	m.Runs.WithLabelValues(rep.Outcome.String()).Inc()
	if rep.Outcome == Succeeded {
		m.LastSuccess.Set(float64(rep.FinishedAt.Unix()))
	}

	if r.store == nil {
		return
	}
	run := history.Run{
		RunID:           rep.RunID,
		StartedAt:       rep.StartedAt,
		FinishedAt:      rep.FinishedAt,
		Outcome:         rep.Outcome.String(),
		Extracted:       rep.Extracted,
		Skipped:         rep.Skipped,
		Unrecognized:    rep.Unrecognized,
		Baseline:        rep.Baseline,
		Persisted:       rep.Persisted,
		PersistFailures: rep.PersistFailures,
		Alerted:         rep.Alerted,
		AlertFailures:   rep.AlertFailures,
		Degraded:        rep.Degraded,
	}
	if rep.Err != nil {
		run.Error = rep.Err.Error()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runLogTimeout)
	defer cancel()
	if err := r.store.RecordRun(wctx, run); err != nil {
		log.WarnContext(ctx, "pipeline: run log write failed", "error", err)
	}
}

// AlertMessage formats the chat alert for a sighting.
func AlertMessage(s stock.Sighting, clock string) string {
	return fmt.Sprintf("🚨 %s DETECTED: %s at %s!", s.Rarity.Upper(), s.Name, clock)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRenderTimeout reports whether a failed report was caused by a render
// stage timeout.
func IsRenderTimeout(rep *Report) bool {
	var re *render.Error
	return rep.Outcome == FailedRender && errors.As(rep.Err, &re) && re.Timeout()
}
