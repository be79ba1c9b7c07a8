package config

import (
	"fmt"
	"strings"

	"github.com/lvcoi/ytbatch/internal/model"
)

var (
	validLogLevels         = []string{"debug", "info", "warn", "error"}
	validLogFormats        = []string{"console", "json"}
	validDuplicatePolicies = []string{"overwrite", "skip", "rename"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDownloader(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateDownloader() error {
	if strings.TrimSpace(c.Downloader.SaveFolder) == "" {
		return &model.ValidationError{Field: "downloader.save_folder", Reason: "must be set"}
	}
	if c.Downloader.Concurrency < 1 {
		return &model.ValidationError{Field: "downloader.concurrency", Value: fmt.Sprint(c.Downloader.Concurrency), Reason: "must be at least 1"}
	}
	if c.Downloader.TimeoutSeconds < 0 {
		return &model.ValidationError{Field: "downloader.timeout", Value: fmt.Sprint(c.Downloader.TimeoutSeconds), Reason: "must not be negative"}
	}
	if c.Downloader.Retries < 0 {
		return &model.ValidationError{Field: "downloader.retries", Value: fmt.Sprint(c.Downloader.Retries), Reason: "must not be negative"}
	}
	if !contains(validDuplicatePolicies, c.Downloader.OnDuplicate) {
		return &model.ValidationError{Field: "downloader.on_duplicate", Value: c.Downloader.OnDuplicate, Reason: "must be one of " + strings.Join(validDuplicatePolicies, ", ")}
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Successful && strings.TrimSpace(c.Audit.SuccessfulPath) == "" {
		return &model.ValidationError{Field: "audit.successful_path", Reason: "must be set when audit.successful is true"}
	}
	if c.Audit.Failed && strings.TrimSpace(c.Audit.FailedPath) == "" {
		return &model.ValidationError{Field: "audit.failed_path", Reason: "must be set when audit.failed is true"}
	}
	if c.Audit.SuccessfulPath != "" && c.Audit.SuccessfulPath == c.Audit.FailedPath {
		return &model.ValidationError{Field: "audit.failed_path", Value: c.Audit.FailedPath, Reason: "must differ from audit.successful_path"}
	}
	return nil
}

func (c *Config) validateLog() error {
	if !contains(validLogLevels, c.Log.Level) {
		return &model.ValidationError{Field: "log.level", Value: c.Log.Level, Reason: "must be one of " + strings.Join(validLogLevels, ", ")}
	}
	if !contains(validLogFormats, c.Log.Format) {
		return &model.ValidationError{Field: "log.format", Value: c.Log.Format, Reason: "must be one of " + strings.Join(validLogFormats, ", ")}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
