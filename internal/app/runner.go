// Package app wires the orchestrator, the audit ledger and the download
// catalog into a single batch run.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvcoi/ytbatch/internal/catalog"
	"github.com/lvcoi/ytbatch/internal/downloader"
	"github.com/lvcoi/ytbatch/internal/logging"
	"github.com/lvcoi/ytbatch/internal/model"
)

// Auditor persists batch results.
type Auditor interface {
	Audit(ctx context.Context, results []model.Result) error
}

// Recorder mirrors successful downloads somewhere queryable.
type Recorder interface {
	Record(ctx context.Context, entries []catalog.Entry) error
}

// Runner executes one batch end to end.
type Runner struct {
	Orchestrator *downloader.Orchestrator
	Ledger       Auditor
	// Catalog is optional.
	Catalog Recorder
	Sink    downloader.ProgressSink
	Logger  *zap.Logger
	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

// Report summarizes a finished batch.
type Report struct {
	RunID     string
	Results   []model.Result
	Succeeded int
	Failed    int
	SizeMB    float64
	Elapsed   time.Duration
}

// Failures returns the failed results in completion order.
func (r Report) Failures() []model.Failure {
	_, failures := model.Split(r.Results)
	return failures
}

// Run fetches tasks, audits every result and records successes in the
// catalog. Results of an interrupted batch are still audited so a later
// retry can pick up the cancelled items.
//
// The returned error joins the batch error, any audit or catalog error and
// ErrItemsFailed when at least one item failed.
func (r *Runner) Run(ctx context.Context, tasks []model.Task) (Report, error) {
	if r.Orchestrator == nil {
		return Report{}, errors.New("runner has no orchestrator")
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := r.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}

	report := Report{RunID: newID()}
	logger = logging.WithRun(logger, report.RunID)

	artifacts := newArtifactCollector()
	var sink downloader.ProgressSink = artifacts
	if r.Sink != nil {
		sink = downloader.MultiSink{r.Sink, artifacts}
	}

	logger.Info("batch started", zap.Int("tasks", len(tasks)), zap.Int("concurrency", r.Orchestrator.Limit()))
	start := time.Now()
	results, batchErr := r.Orchestrator.RunBatch(ctx, tasks, sink)
	report.Elapsed = time.Since(start)
	report.Results = results

	var validationErr *model.ValidationError
	if errors.As(batchErr, &validationErr) {
		return report, batchErr
	}

	for _, res := range results {
		switch res := res.(type) {
		case model.Success:
			report.Succeeded++
			report.SizeMB += res.SizeMB
		case model.Failure:
			report.Failed++
			logger.Warn("download failed",
				zap.String("item_id", res.ItemID),
				zap.Stringer("config", res.Config),
				zap.String("error", res.ErrorMessage))
		}
	}

	// Persisting must survive the interrupt that ended the batch.
	persistCtx := context.WithoutCancel(ctx)

	var auditErr error
	if r.Ledger != nil && len(results) > 0 {
		if err := r.Ledger.Audit(persistCtx, results); err != nil {
			auditErr = fmt.Errorf("audit run %s: %w", report.RunID, err)
		}
	}

	var catalogErr error
	if r.Catalog != nil {
		entries := artifacts.entries(results, report.RunID)
		if err := r.Catalog.Record(persistCtx, entries); err != nil {
			catalogErr = fmt.Errorf("catalog run %s: %w", report.RunID, err)
			logger.Error("catalog update failed", zap.Error(err))
		}
	}

	logger.Info("batch finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Float64("size_mb", report.SizeMB),
		zap.Duration("elapsed", report.Elapsed))

	var itemsErr error
	if report.Failed > 0 {
		itemsErr = fmt.Errorf("%w: %d of %d", ErrItemsFailed, report.Failed, len(results))
	}
	return report, errors.Join(batchErr, auditErr, catalogErr, itemsErr)
}

// artifactCollector keeps the artifact of every completed task so catalog
// entries can carry paths and authors.
type artifactCollector struct {
	downloader.NopSink

	mu        sync.Mutex
	artifacts map[model.Key]downloader.Artifact
}

func newArtifactCollector() *artifactCollector {
	return &artifactCollector{artifacts: map[model.Key]downloader.Artifact{}}
}

func (c *artifactCollector) Complete(task model.Task, artifact downloader.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts[task.Key()] = artifact
}

func (c *artifactCollector) entries(results []model.Result, runID string) []catalog.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []catalog.Entry
	for _, res := range results {
		s, ok := res.(model.Success)
		if !ok {
			continue
		}
		artifact := c.artifacts[s.Key()]
		entries = append(entries, catalog.Entry{
			ItemID:       s.ItemID,
			Config:       s.Config,
			FileName:     s.FileName,
			FilePath:     artifact.Path,
			SizeMB:       s.SizeMB,
			Author:       artifact.Author,
			RunID:        runID,
			DownloadedAt: s.Timestamp,
		})
	}
	return entries
}
