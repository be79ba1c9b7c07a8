package model

import "time"

// Result is the outcome of one task. Success and Failure are the only
// implementations.
type Result interface {
	Key() Key
	When() time.Time
	result()
}

// Success is a completed download. It is also the persisted success record.
type Success struct {
	ItemID    string
	Config    Configuration
	Timestamp time.Time
	FileName  string
	SizeMB    float64
}

func (s Success) Key() Key        { return Key{ItemID: s.ItemID, Config: s.Config} }
func (s Success) When() time.Time { return s.Timestamp }
func (Success) result()           {}

// Failure is a download that did not complete.
type Failure struct {
	ItemID       string
	Config       Configuration
	Timestamp    time.Time
	ErrorMessage string
}

func (f Failure) Key() Key        { return Key{ItemID: f.ItemID, Config: f.Config} }
func (f Failure) When() time.Time { return f.Timestamp }
func (Failure) result()           {}

// Task returns the task that would retry this failure.
func (f Failure) Task() Task {
	return Task{ItemID: f.ItemID, Config: f.Config}
}

// FailureRecord is the persisted form of a failure: the latest occurrence
// for a key plus the number of times that key has failed across runs.
type FailureRecord struct {
	Failure
	RetryCount uint
}

// Split partitions results by outcome, preserving order.
func Split(results []Result) ([]Success, []Failure) {
	var successes []Success
	var failures []Failure
	for _, r := range results {
		switch r := r.(type) {
		case Success:
			successes = append(successes, r)
		case Failure:
			failures = append(failures, r)
		}
	}
	return successes, failures
}
