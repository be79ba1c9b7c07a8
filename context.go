package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvcoi/ytbatch/internal/catalog"
	"github.com/lvcoi/ytbatch/internal/config"
	"github.com/lvcoi/ytbatch/internal/ledger"
	"github.com/lvcoi/ytbatch/internal/logging"
	"github.com/lvcoi/ytbatch/internal/model"
)

type globalFlags struct {
	config   string
	logLevel string
	quiet    bool
	noTUI    bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = &model.ValidationError{Field: "config", Value: c.flags.config, Reason: "cannot be loaded", Err: err}
			return
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Log.Level = strings.ToLower(level)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(output io.Writer) (*zap.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, output)
}

func (c *commandContext) ledger(logger *zap.Logger) (*ledger.Ledger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return ledger.New(ledger.Options{
		Fs:              afero.NewOsFs(),
		SuccessPath:     cfg.Audit.SuccessfulPath,
		FailurePath:     cfg.Audit.FailedPath,
		AuditSuccessful: cfg.Audit.Successful,
		AuditFailed:     cfg.Audit.Failed,
		Lock:            cfg.Audit.Lock,
		Logger:          logger,
	}), nil
}

// openCatalog returns nil when no catalog is configured.
func (c *commandContext) openCatalog() (*catalog.Catalog, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.Catalog.Path)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &ledger.StorageError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, &ledger.StorageError{Op: "open", Path: path, Err: err}
	}
	return cat, nil
}

func parseQuality(flagName, value string) (model.Configuration, error) {
	cfg, err := model.ParseSelector(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flagName, err)
	}
	return cfg, nil
}

func requireArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return &model.ValidationError{Field: "arguments", Reason: fmt.Sprintf("%s required", what)}
		}
		return nil
	}
}

func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &model.ValidationError{Field: "arguments", Reason: fmt.Sprintf("expected %s", what)}
		}
		return nil
	}
}
