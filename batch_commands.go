package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvcoi/ytbatch/internal/app"
	"github.com/lvcoi/ytbatch/internal/downloader"
	"github.com/lvcoi/ytbatch/internal/model"
)

const defaultQuality = "mp3:high"

var errInterrupted = errors.New("interrupted")

type batchFlags struct {
	quality string
	jobs    int
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.quality, "quality", defaultQuality, "Output as <format>:<quality>: mp3:low, mp3:high, mp4:sd, mp4:hd, mp4:fullhd")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "Concurrent downloads (default from config)")
}

// session holds everything a batch command needs. The progress manager, when
// set, also receives the log output.
type session struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	logger   *zap.Logger
	fetcher  *downloader.YouTubeFetcher
	progress *downloader.ProgressManager
	quiet    bool
	jobs     int
}

func newSession(cmd *cobra.Command, cc *commandContext, jobs int) (*session, error) {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancelCause(cmd.Context())
	s := &session{ctx: ctx, cancel: cancel, quiet: cc.flags.quiet, jobs: cfg.Downloader.Concurrency}
	if jobs > 0 {
		s.jobs = jobs
	}

	logOutput := cmd.ErrOrStderr()
	if !cc.flags.noTUI && !cc.flags.quiet && downloader.IsTerminal(os.Stdout) {
		s.progress = downloader.NewProgressManager(os.Stdout, cmd.ErrOrStderr(), func() {
			cancel(errInterrupted)
		})
		logOutput = s.progress
	}

	s.logger, err = cc.logger(logOutput)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	onDuplicate, err := downloader.ParseDuplicatePolicy(cfg.Downloader.OnDuplicate)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	s.fetcher, err = downloader.NewYouTubeFetcher(downloader.YouTubeOptions{
		SaveFolder:       cfg.Downloader.SaveFolder,
		FileNameTemplate: cfg.Downloader.FileNameTemplate,
		FFmpegPath:       cfg.Downloader.FFmpegPath,
		RequestTimeout:   cfg.Downloader.Timeout(),
		Retries:          cfg.Downloader.Retries,
		OnDuplicate:      onDuplicate,
		Logger:           s.logger,
	})
	if err != nil {
		cancel(nil)
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	s.cancel(nil)
	_ = s.logger.Sync()
}

// run executes tasks and prints the summary.
func (s *session) run(cmd *cobra.Command, cc *commandContext, tasks []model.Task) error {
	orch, err := downloader.NewOrchestrator(s.fetcher, s.jobs, s.logger)
	if err != nil {
		return err
	}
	led, err := cc.ledger(s.logger)
	if err != nil {
		return err
	}
	cat, err := cc.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	runner := &app.Runner{
		Orchestrator: orch,
		Ledger:       led,
		Logger:       s.logger,
	}
	if cat != nil {
		runner.Catalog = cat
	}

	out := cmd.OutOrStdout()
	var printer *downloader.Printer
	if s.progress != nil {
		runner.Sink = s.progress
		s.progress.Open(s.ctx)
	} else {
		printer = downloader.NewPrinter(out, len(tasks), s.quiet)
		runner.Sink = printer
	}

	report, err := runner.Run(s.ctx, tasks)
	if s.progress != nil {
		_ = s.progress.Close()
	}

	switch {
	case printer != nil:
		printer.Summary(report.Succeeded, report.Failed, report.SizeMB)
	case !s.quiet:
		fmt.Fprintln(out, app.RenderSummary(report))
	}
	return err
}

func newDownloadCommand(cc *commandContext) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "download <id|url>...",
		Short: "Download videos by id or URL",
		Args:  requireArgs(1, "at least one video id or URL"),
		RunE: func(cmd *cobra.Command, args []string) error {
			quality, err := parseQuality("quality", flags.quality)
			if err != nil {
				return err
			}
			tasks, err := app.TasksFromRefs(args, quality)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, cc, flags.jobs)
			if err != nil {
				return err
			}
			defer s.close()
			return s.run(cmd, cc, tasks)
		},
	}
	flags.register(cmd)
	return cmd
}

func newPlaylistCommand(cc *commandContext) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "playlist <id|url>",
		Short: "Download every video of a playlist",
		Args:  exactArgs(1, "one playlist id or URL"),
		RunE: func(cmd *cobra.Command, args []string) error {
			quality, err := parseQuality("quality", flags.quality)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, cc, flags.jobs)
			if err != nil {
				return err
			}
			defer s.close()

			tasks, info, err := app.TasksFromPlaylist(s.ctx, s.fetcher, args[0], quality)
			if err != nil {
				return err
			}
			if !cc.flags.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Playlist %q: %d videos\n", info.Title, len(tasks))
			}
			return s.run(cmd, cc, tasks)
		},
	}
	flags.register(cmd)
	return cmd
}

func newImportCommand(cc *commandContext) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Download the videos of an exported list file",
		Long:  "Reads a YouTube export file: a header line, then one video per line with the id in the first column.",
		Args:  exactArgs(1, "one exported list file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			quality, err := parseQuality("quality", flags.quality)
			if err != nil {
				return err
			}
			tasks, err := app.TasksFromExport(afero.NewOsFs(), args[0], quality)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, cc, flags.jobs)
			if err != nil {
				return err
			}
			defer s.close()
			return s.run(cmd, cc, tasks)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRetryCommand(cc *commandContext) *cobra.Command {
	var override string
	var only []string
	var jobs int
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry the downloads recorded in the failure store",
		Long:  "Re-runs every recorded failure with its original format and quality, or with --override-quality for all of them.",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var quality model.Configuration
			if override != "" {
				var err error
				if quality, err = parseQuality("override-quality", override); err != nil {
					return err
				}
			}
			s, err := newSession(cmd, cc, jobs)
			if err != nil {
				return err
			}
			defer s.close()

			led, err := cc.ledger(s.logger)
			if err != nil {
				return err
			}
			records, err := led.ListFailures(s.ctx)
			if err != nil {
				return err
			}
			tasks := app.TasksFromFailures(records, quality, only)
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to retry")
				return nil
			}
			return s.run(cmd, cc, tasks)
		},
	}
	cmd.Flags().StringVar(&override, "override-quality", "", "Retry everything as <format>:<quality> instead of each record's original")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Retry only these video ids")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Concurrent downloads (default from config)")
	return cmd
}
