// Package config loads ytbatch settings from defaults, an optional TOML
// file, a .env file and YTBATCH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is looked up in the working directory when no path is
// given.
const DefaultConfigFile = "ytbatch.toml"

// Downloader configures fetching.
type Downloader struct {
	SaveFolder       string `toml:"save_folder"`
	FFmpegPath       string `toml:"ffmpeg_path"`
	FileNameTemplate string `toml:"file_name_template"`
	Concurrency      int    `toml:"concurrency"`
	TimeoutSeconds   int    `toml:"timeout"`
	Retries          int    `toml:"retries"`
	// OnDuplicate is overwrite, skip or rename.
	OnDuplicate string `toml:"on_duplicate"`
}

// Timeout returns the per-request timeout; zero means none.
func (d Downloader) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// Audit configures the CSV ledger.
type Audit struct {
	Successful     bool   `toml:"successful"`
	Failed         bool   `toml:"failed"`
	SuccessfulPath string `toml:"successful_path"`
	FailedPath     string `toml:"failed_path"`
	Lock           bool   `toml:"lock"`
}

// Catalog configures the SQLite mirror. An empty path disables it.
type Catalog struct {
	Path string `toml:"path"`
}

// Log configures log output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full application configuration.
type Config struct {
	Downloader Downloader `toml:"downloader"`
	Audit      Audit      `toml:"audit"`
	Catalog    Catalog    `toml:"catalog"`
	Log        Log        `toml:"log"`
}

// Load builds the configuration. path may be empty, in which case
// DefaultConfigFile is used when it exists. It returns the resolved file
// path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		abs, err := filepath.Abs(DefaultConfigFile)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(abs)
		return abs, err == nil && !info.IsDir(), nil
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("config file %s not found", expanded)
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Downloader.SaveFolder, err = expandPath(strings.TrimSpace(c.Downloader.SaveFolder)); err != nil {
		return fmt.Errorf("downloader.save_folder: %w", err)
	}
	if c.Downloader.FFmpegPath, err = expandPath(strings.TrimSpace(c.Downloader.FFmpegPath)); err != nil {
		return fmt.Errorf("downloader.ffmpeg_path: %w", err)
	}
	if strings.TrimSpace(c.Downloader.FileNameTemplate) == "" {
		c.Downloader.FileNameTemplate = defaultFileNameTemplate
	}
	c.Downloader.OnDuplicate = strings.ToLower(strings.TrimSpace(c.Downloader.OnDuplicate))
	if c.Downloader.OnDuplicate == "" {
		c.Downloader.OnDuplicate = defaultOnDuplicate
	}
	if c.Audit.SuccessfulPath, err = expandPath(strings.TrimSpace(c.Audit.SuccessfulPath)); err != nil {
		return fmt.Errorf("audit.successful_path: %w", err)
	}
	if c.Audit.FailedPath, err = expandPath(strings.TrimSpace(c.Audit.FailedPath)); err != nil {
		return fmt.Errorf("audit.failed_path: %w", err)
	}
	if c.Catalog.Path, err = expandPath(strings.TrimSpace(c.Catalog.Path)); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
