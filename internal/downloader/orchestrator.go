package downloader

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lvcoi/ytbatch/internal/model"
)

// Artifact describes a file produced by a fetch.
type Artifact struct {
	Name   string
	SizeMB float64
	Path   string
	// Author is the uploading channel, when known.
	Author string
}

// Fetcher downloads one task. Implementations must return promptly once ctx
// is done. progress may be called any number of times.
type Fetcher interface {
	Fetch(ctx context.Context, task model.Task, progress ProgressFunc) (Artifact, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, task model.Task, progress ProgressFunc) (Artifact, error)

func (f FetcherFunc) Fetch(ctx context.Context, task model.Task, progress ProgressFunc) (Artifact, error) {
	return f(ctx, task, progress)
}

// Orchestrator runs batches of tasks with at most limit fetches in flight.
type Orchestrator struct {
	fetcher Fetcher
	limit   int64
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrchestrator returns an orchestrator for fetcher. limit must be at
// least one.
func NewOrchestrator(fetcher Fetcher, limit int, logger *zap.Logger) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, &model.ValidationError{Field: "fetcher", Reason: "must not be nil"}
	}
	if limit < 1 {
		return nil, &model.ValidationError{Field: "concurrency", Value: fmt.Sprint(limit), Reason: "must be at least 1"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher: fetcher,
		limit:   int64(limit),
		logger:  logger.Named("orchestrator"),
		now:     time.Now,
	}, nil
}

// Limit returns the concurrency cap.
func (o *Orchestrator) Limit() int { return int(o.limit) }

// RunBatch fetches every task and returns one result per task, in
// completion order. A fetch error or panic becomes a Failure for that task
// only. Tasks still waiting for a slot when ctx ends are not fetched and
// become failures carrying the context error; in that case the complete
// result set is returned together with an error wrapping ErrBatchAborted.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []model.Task, sink ProgressSink) ([]model.Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if err := model.ValidateTasks(tasks); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}

	sem := semaphore.NewWeighted(o.limit)
	results := make(chan model.Result, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task model.Task) {
			defer wg.Done()
			results <- o.run(ctx, sem, task, sink)
		}(task)
	}
	wg.Wait()
	close(results)

	out := make([]model.Result, 0, len(tasks))
	failed := 0
	for r := range results {
		if _, ok := r.(model.Failure); ok {
			failed++
		}
		out = append(out, r)
	}

	o.logger.Info("batch finished",
		zap.Int("tasks", len(tasks)),
		zap.Int("succeeded", len(out)-failed),
		zap.Int("failed", failed),
	)

	if ctx.Err() != nil {
		return out, abortError(ctx)
	}
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, sem *semaphore.Weighted, task model.Task, sink ProgressSink) (result model.Result) {
	if err := sem.Acquire(ctx, 1); err != nil {
		err = wrapCategory(CategoryCancelled, err)
		sink.Stop(task, err)
		return task.Failure(err.Error(), o.now())
	}
	defer sem.Release(1)

	if err := ctx.Err(); err != nil {
		err = wrapCategory(CategoryCancelled, err)
		sink.Stop(task, err)
		return task.Failure(err.Error(), o.now())
	}

	logger := o.logger.With(zap.String("item", task.ItemID), zap.Stringer("config", task.Config))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error("fetch panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			sink.Stop(task, err)
			result = task.Failure(err.Error(), o.now())
		}
	}()

	sink.Start(task)
	logger.Debug("fetch started")

	artifact, err := o.fetcher.Fetch(ctx, task, func(fraction float64) {
		sink.Report(task, clampFraction(fraction))
	})
	if err != nil {
		logger.Warn("fetch failed", zap.String("category", string(CategoryOf(err))), zap.Error(err))
		sink.Stop(task, err)
		return task.Failure(err.Error(), o.now())
	}

	logger.Info("fetch finished", zap.String("file", artifact.Name), zap.Float64("size_mb", artifact.SizeMB))
	sink.Complete(task, artifact)
	return task.Success(artifact.Name, artifact.SizeMB, o.now())
}
