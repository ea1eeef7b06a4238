package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/DMS/document"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// markFailedTimeout bounds the best-effort update of an in-flight log after a fault
const markFailedTimeout = 5 * time.Second

// DocumentSource lists the documents a sweep processes
type DocumentSource interface {
	ListAll(ctx context.Context) ([]document.Document, error)
}

// StatusSnapshot is the externally visible sweep state
type StatusSnapshot struct {
	IsProcessing bool   `json:"is_processing"`
	Status       string `json:"status"`
}

const (
	statusLabelProcessing = "processing"
	statusLabelIdle       = "idle"
)

// Fault stages
const (
	StageSnapshot = "snapshot"
	StageAppend   = "append"
	StageProcess  = "process"
	StageUpdate   = "update"
	StagePanic    = "panic"
)

// SweepFault is an unexpected failure that stopped a sweep
type SweepFault struct {
	SweepID    string
	DocumentID int64 // 0 when no document was in flight
	Stage      string
	Err        error
}

func (f *SweepFault) Error() string {
	if f.DocumentID != 0 {
		return fmt.Sprintf("ingestion sweep %s stopped at %s (document %d): %v", f.SweepID, f.Stage, f.DocumentID, f.Err)
	}
	return fmt.Sprintf("ingestion sweep %s stopped at %s: %v", f.SweepID, f.Stage, f.Err)
}

func (f *SweepFault) Unwrap() error {
	return f.Err
}

// DocumentResult is the outcome recorded for one document in a sweep
type DocumentResult struct {
	DocumentID int64
	LogID      int64
	Outcome    Outcome
	Duration   time.Duration
}

// SweepReport summarises one finished sweep
type SweepReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Completed  int
	Failed     int
	Results    []DocumentResult
	Fault      *SweepFault
}

func (r *SweepReport) record(res DocumentResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome.Status {
	case StatusCompleted:
		r.Completed++
	case StatusFailed:
		r.Failed++
	}
}

// Duration is the wall time of the sweep
func (r *SweepReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner's logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source used for log timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMetrics records sweep metrics on m
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// Runner executes ingestion sweeps, at most one at a time
type Runner struct {
	docs      DocumentSource
	logs      LogStore
	processor Processor

	mu     sync.Mutex
	active bool
	last   *SweepReport
	subs   map[chan StatusSnapshot]struct{}

	wg      sync.WaitGroup
	logger  *zap.SugaredLogger
	now     func() time.Time
	metrics *Metrics
}

// NewRunner creates an idle runner
func NewRunner(docs DocumentSource, logs LogStore, processor Processor, opts ...Option) *Runner {
	r := &Runner{
		docs:      docs,
		logs:      logs,
		processor: processor,
		logger:    zap.NewNop().Sugar(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tryAcquire sets the active flag if it is clear
func (r *Runner) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return false
	}
	r.active = true
	r.publishLocked()
	return true
}

func (r *Runner) release(report *SweepReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.last = report
	r.publishLocked()
}

// Trigger starts a sweep in the background and reports whether one was
// started. The sweep outlives ctx's cancellation but keeps its values.
func (r *Runner) Trigger(ctx context.Context) bool {
	if !r.tryAcquire() {
		r.logger.Debugw("Ingestion already in progress, trigger ignored")
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.run(context.WithoutCancel(ctx))
	}()
	return true
}

// Sweep runs a sweep synchronously. If a sweep is already active it does
// nothing and returns (nil, nil). A non-nil error is always a *SweepFault,
// and the partial report is returned alongside it.
func (r *Runner) Sweep(ctx context.Context) (*SweepReport, error) {
	if !r.tryAcquire() {
		r.logger.Debugw("Ingestion already in progress, sweep skipped")
		return nil, nil
	}
	return r.run(ctx)
}

// Status returns the current sweep state without blocking on a sweep
func (r *Runner) Status() StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Runner) statusLocked() StatusSnapshot {
	if r.active {
		return StatusSnapshot{IsProcessing: true, Status: statusLabelProcessing}
	}
	return StatusSnapshot{IsProcessing: false, Status: statusLabelIdle}
}

// ListLogs returns all ingestion logs, most recently started first
func (r *Runner) ListLogs(ctx context.Context) ([]Log, error) {
	return r.logs.ListAll(ctx)
}

// Wait blocks until every background sweep started by Trigger has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// LastReport returns the report of the most recently finished sweep, or nil
func (r *Runner) LastReport() *SweepReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// run executes a sweep. The caller must hold the active flag; run clears it.
func (r *Runner) run(ctx context.Context) (report *SweepReport, err error) {
	report = &SweepReport{ID: uuid.NewString(), StartedAt: r.now()}
	log := logger.FromContext(ctx, r.logger).With(logger.FieldSweepID, report.ID)
	r.metrics.sweepStarted()

	defer func() {
		if p := recover(); p != nil {
			err = &SweepFault{SweepID: report.ID, Stage: StagePanic, Err: errors.Newf("panic: %v", p)}
		}
		report.FinishedAt = r.now()

		result := "completed"
		if err != nil {
			result = "faulted"
			errors.As(err, &report.Fault)
			log.Errorw("Ingestion sweep stopped",
				logger.FieldError, err,
				logger.FieldCount, len(report.Results))
		} else {
			log.Infow("Ingestion sweep finished",
				"total", report.Total,
				"completed", report.Completed,
				"failed", report.Failed,
				logger.FieldDurationMS, report.Duration().Milliseconds())
		}
		r.metrics.sweepFinished(result)
		r.release(report)
	}()

	docs, err := r.docs.ListAll(ctx)
	if err != nil {
		return report, &SweepFault{SweepID: report.ID, Stage: StageSnapshot, Err: err}
	}
	report.Total = len(docs)
	log.Infow("Ingestion sweep started", logger.FieldCount, len(docs))

	for _, doc := range docs {
		if err := r.ingest(ctx, report, doc, log); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ingest processes one document and records its log. A returned error is a
// *SweepFault that stops the sweep.
func (r *Runner) ingest(ctx context.Context, report *SweepReport, doc document.Document, log *zap.SugaredLogger) error {
	fault := func(stage string, err error) error {
		return &SweepFault{SweepID: report.ID, DocumentID: doc.ID, Stage: stage, Err: err}
	}

	started := r.now()
	logID, err := r.logs.Append(ctx, NewLog(doc.ID, started))
	if err != nil {
		return fault(StageAppend, err)
	}

	perr, err := r.process(ctx, doc)
	if err != nil {
		r.markFailed(ctx, logID, "unexpected error: "+err.Error(), log)
		r.metrics.documentDone(StatusFailed, r.now().Sub(started))
		return fault(StageProcess, err)
	}

	outcome := outcomeFor(perr)
	finished := r.now()
	if err := r.logs.UpdateTerminal(ctx, logID, outcome.Status, finished, outcome.errorMessage()); err != nil {
		r.markFailed(ctx, logID, "unexpected error: "+err.Error(), log)
		r.metrics.documentDone(StatusFailed, r.now().Sub(started))
		return fault(StageUpdate, err)
	}

	elapsed := finished.Sub(started)
	report.record(DocumentResult{DocumentID: doc.ID, LogID: logID, Outcome: outcome, Duration: elapsed})
	r.metrics.documentDone(outcome.Status, elapsed)

	if outcome.Status == StatusFailed {
		log.Warnw("Document ingestion failed",
			logger.FieldDocumentID, doc.ID,
			logger.FieldLogID, logID,
			logger.FieldError, outcome.Reason)
	} else {
		log.Debugw("Document ingested",
			logger.FieldDocumentID, doc.ID,
			logger.FieldLogID, logID,
			logger.FieldDurationMS, elapsed.Milliseconds())
	}
	return nil
}

// process runs the processor, separating per-document failures from
// unexpected errors. A panic is converted into an unexpected error.
func (r *Runner) process(ctx context.Context, doc document.Document) (perr *ProcessingError, err error) {
	defer func() {
		if p := recover(); p != nil {
			perr = nil
			err = errors.Newf("processor panicked: %v", p)
		}
	}()

	err = r.processor.Process(ctx, doc)
	if err == nil {
		return nil, nil
	}
	if errors.As(err, &perr) {
		return perr, nil
	}
	return nil, err
}

// markFailed moves an in-flight log to failed, ignoring errors
func (r *Runner) markFailed(ctx context.Context, logID int64, msg string, log *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()

	if err := r.logs.UpdateTerminal(ctx, logID, StatusFailed, r.now(), &msg); err != nil {
		log.Warnw("Failed to mark in-flight ingestion log as failed",
			logger.FieldLogID, logID,
			logger.FieldError, err)
	}
}
