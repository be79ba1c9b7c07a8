package model

import (
	"strings"
	"time"
)

// Task is one requested download.
type Task struct {
	ItemID string
	Config Configuration
}

// Key identifies a task across runs: the same item under a different
// configuration is a different key.
type Key struct {
	ItemID string
	Config Configuration
}

func (k Key) String() string {
	if k.Config == nil {
		return k.ItemID
	}
	return k.ItemID + " (" + k.Config.String() + ")"
}

func (t Task) Key() Key {
	return Key{ItemID: t.ItemID, Config: t.Config}
}

func (t Task) String() string {
	return t.Key().String()
}

// Success builds the success result for t.
func (t Task) Success(fileName string, sizeMB float64, at time.Time) Success {
	return Success{
		ItemID:    t.ItemID,
		Config:    t.Config,
		Timestamp: at,
		FileName:  fileName,
		SizeMB:    sizeMB,
	}
}

// Failure builds the failure result for t. The message is sanitized.
func (t Task) Failure(message string, at time.Time) Failure {
	return Failure{
		ItemID:       t.ItemID,
		Config:       t.Config,
		Timestamp:    at,
		ErrorMessage: Sanitize(message),
	}
}

// ValidateItemID rejects ids that cannot be round-tripped through the ledger.
func ValidateItemID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "item id", Value: id, Reason: "must not be empty"}
	}
	if strings.ContainsAny(id, ",\r\n\t ") {
		return &ValidationError{Field: "item id", Value: id, Reason: "must not contain commas or whitespace"}
	}
	return nil
}

// ValidateTasks checks every task before anything is scheduled.
func ValidateTasks(tasks []Task) error {
	for _, task := range tasks {
		if err := ValidateItemID(task.ItemID); err != nil {
			return err
		}
		if task.Config == nil {
			return &ValidationError{Field: "configuration", Value: task.ItemID, Reason: "missing"}
		}
	}
	return nil
}

var delimiterReplacer = strings.NewReplacer(",", ";", "\r\n", ";", "\n", ";", "\r", ";")

// Sanitize replaces record delimiters (comma, CR, LF) with semicolons.
func Sanitize(s string) string {
	return delimiterReplacer.Replace(s)
}
