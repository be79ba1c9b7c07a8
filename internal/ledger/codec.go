package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lvcoi/ytbatch/internal/model"
)

// TimestampLayout is yyyy-MM-dd hh:mm:ss. The hour is on a 12-hour clock
// without an AM/PM marker; existing stores are written this way.
const TimestampLayout = "2006-01-02 03:04:05"

const separator = ","

var (
	successHeader = []string{"Video Id", "File Name", "File Format", "Quality", "Timestamp", "File Size In MB"}
	failureHeader = []string{"Video Id", "File Format", "Quality", "Timestamp", "Retry Count", "Error Message"}
)

// SuccessHeader is the first line of the success store.
func SuccessHeader() string { return strings.Join(successHeader, separator) }

// FailureHeader is the first line of the failure store.
func FailureHeader() string { return strings.Join(failureHeader, separator) }

func formatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(value), time.Local)
}

// FormatSuccess renders one success row.
func FormatSuccess(s model.Success) string {
	return strings.Join([]string{
		s.ItemID,
		model.Sanitize(s.FileName),
		s.Config.Format().String(),
		s.Config.QualityLabel(),
		formatTimestamp(s.Timestamp),
		strconv.FormatFloat(s.SizeMB, 'f', 2, 64),
	}, separator)
}

// FormatFailure renders one failure row.
func FormatFailure(r model.FailureRecord) string {
	return strings.Join([]string{
		r.ItemID,
		r.Config.Format().String(),
		r.Config.QualityLabel(),
		formatTimestamp(r.Timestamp),
		strconv.FormatUint(uint64(r.RetryCount), 10),
		model.Sanitize(r.ErrorMessage),
	}, separator)
}

// ParseSuccess parses one success row.
func ParseSuccess(line string) (model.Success, error) {
	cols := strings.Split(line, separator)
	if len(cols) != len(successHeader) {
		return model.Success{}, fmt.Errorf("expected %d columns, got %d", len(successHeader), len(cols))
	}
	cfg, err := model.ParseConfiguration(cols[2], cols[3])
	if err != nil {
		return model.Success{}, err
	}
	ts, err := parseTimestamp(cols[4])
	if err != nil {
		return model.Success{}, fmt.Errorf("timestamp: %w", err)
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(cols[5]), 64)
	if err != nil {
		return model.Success{}, fmt.Errorf("file size: %w", err)
	}
	return model.Success{
		ItemID:    cols[0],
		Config:    cfg,
		Timestamp: ts,
		FileName:  cols[1],
		SizeMB:    size,
	}, nil
}

// ParseFailure parses one failure row.
func ParseFailure(line string) (model.FailureRecord, error) {
	cols := strings.Split(line, separator)
	if len(cols) != len(failureHeader) {
		return model.FailureRecord{}, fmt.Errorf("expected %d columns, got %d", len(failureHeader), len(cols))
	}
	cfg, err := model.ParseConfiguration(cols[1], cols[2])
	if err != nil {
		return model.FailureRecord{}, err
	}
	ts, err := parseTimestamp(cols[3])
	if err != nil {
		return model.FailureRecord{}, fmt.Errorf("timestamp: %w", err)
	}
	count, err := strconv.ParseUint(strings.TrimSpace(cols[4]), 10, 32)
	if err != nil {
		return model.FailureRecord{}, fmt.Errorf("retry count: %w", err)
	}
	return model.FailureRecord{
		Failure: model.Failure{
			ItemID:       cols[0],
			Config:       cfg,
			Timestamp:    ts,
			ErrorMessage: cols[5],
		},
		RetryCount: uint(count),
	}, nil
}
