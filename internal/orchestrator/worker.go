// Package orchestrator runs extraction jobs end to end: one exclusive
// browser session per job, strictly sequential steps, guaranteed release.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/extractor"
	"github.com/openconvocatoria/seace-ingest/internal/metrics"
	"github.com/openconvocatoria/seace-ingest/internal/normalize"
	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Config controls Worker behavior.
type Config struct {
	PortalURL      string
	ResultsTimeout time.Duration
	MaxPages       int
	CompletedTopic string
	FailedTopic    string
}

// CompletionEvent is the payload published when a job reaches a terminal
// state.
type CompletionEvent struct {
	JobID      string            `json:"job_id"`
	RunID      string            `json:"run_id"`
	Status     seace.JobStatus   `json:"status"`
	Counters   seace.JobCounters `json:"counters"`
	DurationMs int64             `json:"duration_ms"`
	Message    string            `json:"message,omitempty"`
}

// Worker consumes queue items and executes the extraction pipeline.
type Worker struct {
	queue      seace.Queue
	jobs       seace.JobStore
	store      seace.RecordStore
	runLog     seace.RunLogStore
	sessions   seace.SessionFactory
	prober     seace.Prober
	sink       seace.ExportSink
	publisher  seace.Publisher
	normalizer *normalize.Normalizer
	clock      seace.Clock
	ids        seace.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue seace.Queue,
	jobs seace.JobStore,
	store seace.RecordStore,
	runLog seace.RunLogStore,
	sessions seace.SessionFactory,
	prober seace.Prober,
	sink seace.ExportSink,
	publisher seace.Publisher,
	clock seace.Clock,
	ids seace.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultsTimeout <= 0 {
		cfg.ResultsTimeout = 60 * time.Second
	}
	return &Worker{
		queue:      queue,
		jobs:       jobs,
		store:      store,
		runLog:     runLog,
		sessions:   sessions,
		prober:     prober,
		sink:       sink,
		publisher:  publisher,
		normalizer: normalize.New(logger),
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item seace.QueueItem) {
	started := w.clock.Now().UTC()
	runID, err := w.ids.NewID()
	if err != nil {
		runID = item.JobID + "-run"
	}
	metrics.ActiveJobs().Inc()
	defer metrics.ActiveJobs().Dec()

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, seace.JobStatusRunning, "", seace.JobCounters{}); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if err := w.runLog.StartRun(ctx, seace.RunLogEntry{
		ID:        runID,
		JobID:     item.JobID,
		Operation: "extract",
		Status:    seace.JobStatusRunning,
		StartedAt: started,
	}); err != nil {
		w.logger.Error("start run log failed", zap.String("job_id", item.JobID), zap.Error(err))
	}

	counters, message, execErr := w.execute(ctx, item)

	status := seace.JobStatusCompleted
	if execErr != nil {
		status = seace.JobStatusFailed
		message = execErr.Error()
		w.logger.Error("job failed",
			zap.String("job_id", item.JobID), zap.String("run_id", runID), zap.Error(execErr))
	}

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, status, message, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	duration := w.clock.Now().UTC().Sub(started)
	if err := w.runLog.FinishRun(ctx, runID, status, message, counters, duration); err != nil {
		w.logger.Error("finish run log failed", zap.String("run_id", runID), zap.Error(err))
	}
	metrics.JobsTotal().WithLabelValues(string(status)).Inc()
	metrics.JobDuration().Observe(duration.Seconds())

	w.publishEvent(ctx, CompletionEvent{
		JobID:      item.JobID,
		RunID:      runID,
		Status:     status,
		Counters:   counters,
		DurationMs: duration.Milliseconds(),
		Message:    message,
	})
}

// execute runs probe, browser session, extraction, export and ingestion.
// It returns counters accumulated so far even on failure.
func (w *Worker) execute(ctx context.Context, item seace.QueueItem) (seace.JobCounters, string, error) {
	var counters seace.JobCounters

	if err := w.prober.Check(ctx, w.cfg.PortalURL); err != nil {
		return counters, "", fmt.Errorf("portal unreachable: %w", err)
	}

	page, err := w.sessions.NewSearchPage(ctx)
	if err != nil {
		return counters, "", fmt.Errorf("open browser session: %w", err)
	}
	// The browser is released no matter how extraction ends.
	defer page.Close()

	if err := page.Open(ctx); err != nil {
		return counters, "", fmt.Errorf("open search form: %w", err)
	}

	form := extractor.NewFormDriver(page, w.logger)
	form.Configure(ctx, item.Params)
	if err := form.Submit(ctx); err != nil {
		return counters, "", err
	}
	if err := page.WaitResults(ctx, w.cfg.ResultsTimeout); err != nil {
		return counters, "", err
	}

	records, stats, err := w.collect(ctx, page)
	if err != nil {
		return counters, "", err
	}
	metrics.RowsExtracted().Add(float64(stats.RowsExtracted))
	metrics.RowsDropped().Add(float64(stats.RowsDropped))

	// Export before the database commit so a failed ingestion still
	// leaves a recoverable snapshot. Export failure is not fatal.
	var artifacts seace.ExportArtifacts
	if w.sink != nil {
		artifacts, err = w.sink.Export(ctx, item.JobID, records)
		if err != nil {
			w.logger.Warn("export failed, continuing with ingestion",
				zap.String("job_id", item.JobID), zap.Error(err))
		}
	}

	counters = w.ingest(ctx, item, records)

	message := fmt.Sprintf("%d pages, %d rows extracted, %d dropped, %d exported",
		stats.PagesVisited, stats.RowsExtracted, stats.RowsDropped, artifacts.RowsCount)
	return counters, message, nil
}

// collect walks every results page and normalizes rows in arrival order.
func (w *Worker) collect(ctx context.Context, page seace.SearchPage) ([]seace.ProcessRecord, extractor.Stats, error) {
	ext := extractor.New(page, extractor.Config{MaxPages: w.cfg.MaxPages}, w.logger)
	scrapedAt := w.clock.Now().UTC()

	var records []seace.ProcessRecord
	rowIndex := 0
	stats, err := ext.Run(ctx, func(pageNum int, rows []seace.RawRow) error {
		pageStart := time.Now()
		for _, row := range rows {
			rowIndex++
			records = append(records, w.normalizer.Record(row, rowIndex, scrapedAt))
		}
		metrics.PageDuration().Observe(time.Since(pageStart).Seconds())
		w.logger.Debug("page normalized", zap.Int("page", pageNum), zap.Int("rows", len(rows)))
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("extract results: %w", err)
	}
	return records, stats, nil
}

// ingest applies records to the store. The admission cap bounds new
// inserts only: once reached, remaining rows are applied as updates to
// already-known processes and never create rows. Per-record failures are
// counted, not fatal.
func (w *Worker) ingest(ctx context.Context, item seace.QueueItem, records []seace.ProcessRecord) seace.JobCounters {
	var counters seace.JobCounters
	insertCap := 0
	if item.Params.Bounded() {
		insertCap = *item.Params.MaxProcesses
	}

	for _, rec := range records {
		outcome := seace.RowOutcome{ProcessID: rec.ProcessID}

		if insertCap > 0 && counters.Inserted >= insertCap {
			applied, err := w.store.Refresh(ctx, rec)
			switch {
			case err != nil:
				counters.Errored++
				outcome.Kind = seace.OutcomeErrored
				outcome.Err = err.Error()
				w.logger.Warn("record refresh failed",
					zap.String("job_id", item.JobID), zap.String("process_id", rec.ProcessID), zap.Error(err))
			case applied:
				counters.Updated++
				outcome.Kind = seace.OutcomeUpdated
			default:
				outcome.Kind = seace.OutcomeSkipped
			}
		} else {
			res, err := w.store.Upsert(ctx, rec)
			switch {
			case err != nil:
				counters.Errored++
				outcome.Kind = seace.OutcomeErrored
				outcome.Err = err.Error()
				w.logger.Warn("record upsert failed",
					zap.String("job_id", item.JobID), zap.String("process_id", rec.ProcessID), zap.Error(err))
			case res.Created:
				counters.Inserted++
				outcome.Kind = seace.OutcomeInserted
			default:
				counters.Updated++
				outcome.Kind = seace.OutcomeUpdated
			}
		}

		metrics.RecordOutcomes().WithLabelValues(string(outcome.Kind)).Inc()
		if err := w.jobs.RecordOutcome(ctx, item.JobID, outcome); err != nil {
			w.logger.Error("record outcome failed",
				zap.String("job_id", item.JobID), zap.String("process_id", rec.ProcessID), zap.Error(err))
		}
	}
	return counters
}

func (w *Worker) publishEvent(ctx context.Context, event CompletionEvent) {
	if w.publisher == nil {
		return
	}
	topic := w.cfg.CompletedTopic
	if event.Status == seace.JobStatusFailed {
		topic = w.cfg.FailedTopic
	}
	if topic == "" {
		return
	}
	id, err := w.publisher.Publish(ctx, topic, event)
	if err != nil {
		w.logger.Warn("publish completion event failed",
			zap.String("job_id", event.JobID), zap.String("topic", topic), zap.Error(err))
		return
	}
	w.logger.Debug("completion event published",
		zap.String("job_id", event.JobID), zap.String("message_id", id))
}
