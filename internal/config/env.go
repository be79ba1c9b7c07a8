package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "YTBATCH_"

// loadDotEnv loads dir/.env into the process environment. Variables that are
// already set win.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

type envBinding struct {
	name  string
	apply func(value string) error
}

func (c *Config) envBindings() []envBinding {
	str := func(dst *string) func(string) error {
		return func(v string) error {
			*dst = v
			return nil
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}

	return []envBinding{
		{"SAVE_FOLDER", str(&c.Downloader.SaveFolder)},
		{"FFMPEG_PATH", str(&c.Downloader.FFmpegPath)},
		{"FILE_NAME_TEMPLATE", str(&c.Downloader.FileNameTemplate)},
		{"CONCURRENCY", integer(&c.Downloader.Concurrency)},
		{"TIMEOUT", integer(&c.Downloader.TimeoutSeconds)},
		{"RETRIES", integer(&c.Downloader.Retries)},
		{"ON_DUPLICATE", str(&c.Downloader.OnDuplicate)},
		{"AUDIT_SUCCESSFUL", boolean(&c.Audit.Successful)},
		{"AUDIT_FAILED", boolean(&c.Audit.Failed)},
		{"AUDIT_SUCCESSFUL_PATH", str(&c.Audit.SuccessfulPath)},
		{"AUDIT_FAILED_PATH", str(&c.Audit.FailedPath)},
		{"AUDIT_LOCK", boolean(&c.Audit.Lock)},
		{"CATALOG_PATH", str(&c.Catalog.Path)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_FORMAT", str(&c.Log.Format)},
	}
}

// applyEnv overrides fields from YTBATCH_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	for _, binding := range c.envBindings() {
		name := EnvPrefix + binding.name
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := binding.apply(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
