package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytbatch/internal/catalog"
	"github.com/lvcoi/ytbatch/internal/downloader"
	"github.com/lvcoi/ytbatch/internal/ledger"
	"github.com/lvcoi/ytbatch/internal/model"
)

var (
	audioHigh = model.Audio{Quality: model.AudioHigh}
	audioLow  = model.Audio{Quality: model.AudioLow}
	videoHD   = model.Video{Quality: model.VideoHD}
)

// scriptedFetcher fails the items listed in failing and succeeds otherwise.
type scriptedFetcher struct {
	mu      sync.Mutex
	failing map[string]bool
}

func (f *scriptedFetcher) setFailing(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = map[string]bool{}
	for _, id := range ids {
		f.failing[id] = true
	}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, task model.Task, progress downloader.ProgressFunc) (downloader.Artifact, error) {
	f.mu.Lock()
	fail := f.failing[task.ItemID]
	f.mu.Unlock()
	progress(1)
	if fail {
		return downloader.Artifact{}, errors.New("video unavailable")
	}
	return downloader.Artifact{Name: "file-" + task.ItemID, SizeMB: 2, Path: "/media/" + task.ItemID, Author: "Artist - Topic"}, nil
}

type memoryRecorder struct {
	entries []catalog.Entry
}

func (m *memoryRecorder) Record(_ context.Context, entries []catalog.Entry) error {
	m.entries = append(m.entries, entries...)
	return nil
}

func newTestRunner(t *testing.T, fetcher downloader.Fetcher) (*Runner, *ledger.Ledger, *memoryRecorder) {
	t.Helper()
	orch, err := downloader.NewOrchestrator(fetcher, 2, nil)
	require.NoError(t, err)
	led := ledger.New(ledger.Options{
		Fs:              afero.NewMemMapFs(),
		SuccessPath:     "/audit/successful_downloads.csv",
		FailurePath:     "/audit/failed_downloads.csv",
		AuditSuccessful: true,
		AuditFailed:     true,
	})
	rec := &memoryRecorder{}
	ids := 0
	return &Runner{
		Orchestrator: orch,
		Ledger:       led,
		Catalog:      rec,
		NewRunID: func() string {
			ids++
			return "run-" + string(rune('0'+ids))
		},
	}, led, rec
}

func TestRunnerAuditsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	fetcher := &scriptedFetcher{}
	fetcher.setFailing("B")
	runner, led, rec := newTestRunner(t, fetcher)

	tasks := []model.Task{
		{ItemID: "A", Config: audioHigh},
		{ItemID: "B", Config: videoHD},
		{ItemID: "C", Config: audioLow},
	}
	report, err := runner.Run(ctx, tasks)
	require.ErrorIs(t, err, ErrItemsFailed)
	assert.Equal(t, ExitItemsFailed, ExitCode(err))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4.0, report.SizeMB)

	successes, err := led.ListSuccesses(ctx)
	require.NoError(t, err)
	assert.Len(t, successes, 2)

	failures, err := led.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "B", failures[0].ItemID)
	assert.Equal(t, uint(1), failures[0].RetryCount)
	assert.Equal(t, "video unavailable", failures[0].ErrorMessage)

	require.Len(t, rec.entries, 2)
	for _, e := range rec.entries {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "/media/"+e.ItemID, e.FilePath)
		assert.Equal(t, "Artist - Topic", e.Author)
	}

	// B fails again: one row, count two.
	_, err = runner.Run(ctx, TasksFromFailures(failures, nil, nil))
	require.ErrorIs(t, err, ErrItemsFailed)
	failures, err = led.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, uint(2), failures[0].RetryCount)

	// B finally succeeds: the failure row is pruned.
	fetcher.setFailing()
	report, err = runner.Run(ctx, TasksFromFailures(failures, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	failures, err = led.ListFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)

	successes, err = led.ListSuccesses(ctx)
	require.NoError(t, err)
	assert.Len(t, successes, 3)
}

func TestRunnerAuditsInterruptedBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := downloader.FetcherFunc(func(ctx context.Context, task model.Task, _ downloader.ProgressFunc) (downloader.Artifact, error) {
		cancel()
		<-ctx.Done()
		return downloader.Artifact{}, ctx.Err()
	})
	runner, led, _ := newTestRunner(t, fetcher)

	report, err := runner.Run(ctx, []model.Task{
		{ItemID: "A", Config: audioHigh},
		{ItemID: "B", Config: audioHigh},
		{ItemID: "C", Config: audioHigh},
	})
	require.ErrorIs(t, err, downloader.ErrBatchAborted)
	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.Equal(t, 3, report.Failed)

	failures, err := led.ListFailures(context.Background())
	require.NoError(t, err)
	assert.Len(t, failures, 3)
}

func TestRunnerRejectsInvalidTasks(t *testing.T) {
	runner, led, _ := newTestRunner(t, &scriptedFetcher{})
	_, err := runner.Run(context.Background(), []model.Task{{ItemID: "has space", Config: audioHigh}})
	assert.Equal(t, ExitValidation, ExitCode(err))

	failures, err := led.ListFailures(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failures)
}

type failingAuditor struct{}

func (failingAuditor) Audit(context.Context, []model.Result) error {
	return &ledger.StorageError{Op: "write", Path: "/audit/failed_downloads.csv", Err: errors.New("disk full")}
}

func TestRunnerReportsAuditFailure(t *testing.T) {
	runner, _, _ := newTestRunner(t, &scriptedFetcher{})
	runner.Ledger = failingAuditor{}
	report, err := runner.Run(context.Background(), []model.Task{{ItemID: "A", Config: audioHigh}})
	require.Error(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, ExitStorage, ExitCode(err))
}

func TestRunnerWithoutOrchestrator(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), nil)
	assert.Error(t, err)
}
