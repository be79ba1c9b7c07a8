package downloader

import "github.com/lvcoi/ytbatch/internal/model"

// ProgressFunc receives the completed fraction of a fetch, in [0, 1].
type ProgressFunc func(fraction float64)

// ProgressSink renders per-task progress. Implementations must be safe for
// concurrent use; every method may be called from any task goroutine.
type ProgressSink interface {
	Start(task model.Task)
	Report(task model.Task, fraction float64)
	Complete(task model.Task, artifact Artifact)
	Stop(task model.Task, err error)
}

// NopSink discards progress.
type NopSink struct{}

func (NopSink) Start(model.Task)              {}
func (NopSink) Report(model.Task, float64)    {}
func (NopSink) Complete(model.Task, Artifact) {}
func (NopSink) Stop(model.Task, error)        {}

// MultiSink fans progress out to several sinks.
type MultiSink []ProgressSink

func (m MultiSink) Start(task model.Task) {
	for _, s := range m {
		s.Start(task)
	}
}

func (m MultiSink) Report(task model.Task, fraction float64) {
	for _, s := range m {
		s.Report(task, fraction)
	}
}

func (m MultiSink) Complete(task model.Task, artifact Artifact) {
	for _, s := range m {
		s.Complete(task, artifact)
	}
}

func (m MultiSink) Stop(task model.Task, err error) {
	for _, s := range m {
		s.Stop(task, err)
	}
}

func clampFraction(f float64) float64 {
	switch {
	case f != f, f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
