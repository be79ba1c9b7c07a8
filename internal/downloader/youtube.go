package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/lvcoi/ytbatch/internal/model"
)

const (
	minChunkSize     int64 = 256 * 1024      // 256KB keeps progress responsive on small files
	maxChunkSize     int64 = 2 * 1024 * 1024 // cap to avoid excessive requests on large files
	targetChunkCount int64 = 64
)

// adjustChunkSize picks a smaller chunk size for the YouTube client to keep
// progress updates frequent without spawning thousands of requests.
func adjustChunkSize(client *youtube.Client, contentLength int64) {
	if client == nil || contentLength <= 0 {
		return
	}
	chunk := contentLength / targetChunkCount
	if chunk < minChunkSize {
		chunk = minChunkSize
	} else if chunk > maxChunkSize {
		chunk = maxChunkSize
	}
	client.ChunkSize = chunk
}

// YouTubeOptions configures a YouTubeFetcher.
type YouTubeOptions struct {
	SaveFolder       string
	FileNameTemplate string
	FFmpegPath       string
	// RequestTimeout bounds each HTTP request; zero means no limit.
	RequestTimeout time.Duration
	// Retries is the number of retries for transient HTTP failures.
	Retries int
	// OnDuplicate applies to files left by earlier runs. Empty means rename.
	OnDuplicate DuplicatePolicy
	Transport   http.RoundTripper
	Logger      *zap.Logger
}

// YouTubeFetcher downloads YouTube videos as mp3 or mp4 files.
type YouTubeFetcher struct {
	httpClient *http.Client
	saveFolder string
	template   string
	ffmpegPath string
	paths      *pathReservations
	logger     *zap.Logger
}

// NewYouTubeFetcher returns a fetcher writing into opts.SaveFolder.
func NewYouTubeFetcher(opts YouTubeOptions) (*YouTubeFetcher, error) {
	if opts.SaveFolder == "" {
		return nil, &model.ValidationError{Field: "save folder", Reason: "must not be empty"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := defaultRetryConfig
	if opts.Retries >= 0 {
		retry.MaxRetries = opts.Retries
	}
	return &YouTubeFetcher{
		httpClient: newHTTPClient(opts.Transport, opts.RequestTimeout, retry),
		saveFolder: opts.SaveFolder,
		template:   opts.FileNameTemplate,
		ffmpegPath: opts.FFmpegPath,
		paths:      newPathReservations(opts.OnDuplicate),
		logger:     logger.Named("youtube"),
	}, nil
}

// newClient returns a client for one fetch. Chunk size is tuned per stream,
// so clients are not shared between concurrent fetches.
func (f *YouTubeFetcher) newClient() *youtube.Client {
	return &youtube.Client{HTTPClient: f.httpClient}
}

// Fetch downloads task into the save folder. Fetches sharing a fetcher never
// write the same file.
func (f *YouTubeFetcher) Fetch(ctx context.Context, task model.Task, progress ProgressFunc) (Artifact, error) {
	client := f.newClient()

	video, err := client.GetVideoContext(ctx, task.ItemID)
	if err != nil {
		return Artifact{}, classifyYouTubeError(fmt.Errorf("fetching video metadata: %w", err))
	}

	ext := task.Config.Format().Ext()
	wanted, err := outputPath(f.saveFolder, resolveFileStem(f.template, video, task.Config), ext)
	if err != nil {
		return Artifact{}, wrapCategory(CategoryFilesystem, err)
	}
	if err := os.MkdirAll(filepath.Dir(wanted), 0o755); err != nil {
		return Artifact{}, wrapCategory(CategoryFilesystem, fmt.Errorf("creating save folder: %w", err))
	}

	logger := f.logger.With(zap.String("item", task.ItemID), zap.String("title", video.Title))

	path, existing, err := f.paths.claim(wanted)
	if err != nil {
		return Artifact{}, err
	}
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	if existing {
		logger.Info("file exists, skipping", zap.String("path", path))
		return existingArtifact(path, stem, video.Author)
	}
	if path != wanted {
		logger.Debug("output renamed", zap.String("wanted", wanted), zap.String("path", path))
	}

	var size int64
	switch cfg := task.Config.(type) {
	case model.Audio:
		size, err = f.fetchAudio(ctx, client, video, cfg.Quality, path, progress, logger)
	case model.Video:
		if cfg.Quality == model.VideoFullHD {
			size, err = f.fetchMuxed(ctx, client, video, cfg.Quality, path, progress, logger)
		} else {
			size, err = f.fetchProgressive(ctx, client, video, cfg.Quality, path, progress)
		}
	default:
		err = wrapCategory(CategoryUnsupported, fmt.Errorf("unsupported configuration %v", task.Config))
	}
	if err != nil {
		f.paths.release(path)
		return Artifact{}, err
	}

	return Artifact{Name: stem, SizeMB: megabytes(size), Path: path, Author: video.Author}, nil
}

func existingArtifact(path, stem, author string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, wrapCategory(CategoryFilesystem, err)
	}
	return Artifact{Name: stem, SizeMB: megabytes(info.Size()), Path: path, Author: author}, nil
}

func (f *YouTubeFetcher) fetchAudio(ctx context.Context, client *youtube.Client, video *youtube.Video, quality model.AudioQuality, path string, report ProgressFunc, logger *zap.Logger) (int64, error) {
	ffmpegBin, err := locateFFmpeg(f.ffmpegPath)
	if err != nil {
		return 0, wrapCategory(CategoryUnsupported, err)
	}
	format, err := selectAudioFormat(video.Formats, quality)
	if err != nil {
		return 0, err
	}

	source, cleanup, err := tempFileBeside(path)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	progress := newProgressWriter(contentLength(format), report)
	written, err := downloadStream(ctx, client, video, format, source, progress)
	if err != nil {
		return 0, err
	}

	if err := runFFmpeg(ctx, ffmpegBin, mp3Args(source, path, quality)); err != nil {
		return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("transcoding to mp3: %w", err))
	}
	if err := embedID3Tags(path, video); err != nil {
		logger.Warn("tag embedding failed", zap.String("path", path), zap.Error(err))
	}
	progress.Finish()

	if size := contentLength(format); size > 0 {
		return size, nil
	}
	return written, nil
}

func (f *YouTubeFetcher) fetchProgressive(ctx context.Context, client *youtube.Client, video *youtube.Video, quality model.VideoQuality, path string, report ProgressFunc) (int64, error) {
	format, err := selectProgressiveFormat(video.Formats, quality)
	if err != nil {
		return 0, err
	}

	part, cleanup, err := tempFileBeside(path)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	progress := newProgressWriter(contentLength(format), report)
	written, err := downloadStream(ctx, client, video, format, part, progress)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(part, path); err != nil {
		return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("renaming output: %w", err))
	}
	progress.Finish()
	return written, nil
}

func (f *YouTubeFetcher) fetchMuxed(ctx context.Context, client *youtube.Client, video *youtube.Video, quality model.VideoQuality, path string, report ProgressFunc, logger *zap.Logger) (int64, error) {
	ffmpegBin, err := locateFFmpeg(f.ffmpegPath)
	if err != nil {
		return 0, wrapCategory(CategoryUnsupported, err)
	}
	videoFormat, audioFormat, err := selectAdaptivePair(video.Formats, quality)
	if err != nil {
		if CategoryOf(err) != CategoryUnsupported {
			return 0, err
		}
		logger.Info("no separate streams, falling back to progressive", zap.Error(err))
		return f.fetchProgressive(ctx, client, video, quality, path, report)
	}

	videoPart, cleanupVideo, err := tempFileBeside(path)
	if err != nil {
		return 0, err
	}
	defer cleanupVideo()
	audioPart, cleanupAudio, err := tempFileBeside(path)
	if err != nil {
		return 0, err
	}
	defer cleanupAudio()

	progress := newProgressWriter(contentLength(videoFormat)+contentLength(audioFormat), report)
	videoBytes, err := downloadStream(ctx, client, video, videoFormat, videoPart, progress)
	if err != nil {
		return 0, err
	}
	progress.Advance()
	audioBytes, err := downloadStream(ctx, client, video, audioFormat, audioPart, progress)
	if err != nil {
		return 0, err
	}

	if err := runFFmpeg(ctx, ffmpegBin, muxArgs(videoPart, audioPart, path)); err != nil {
		return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("muxing streams: %w", err))
	}
	progress.Finish()
	return videoBytes + audioBytes, nil
}

// tempFileBeside creates an empty temp file next to path. cleanup removes it
// if it still exists.
func tempFileBeside(path string) (string, func(), error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return "", func() {}, wrapCategory(CategoryFilesystem, fmt.Errorf("creating temp file: %w", err))
	}
	name := tmp.Name()
	tmp.Close()
	return name, func() { _ = os.Remove(name) }, nil
}

// downloadStream writes one stream to dest. A 403 from the chunked download
// is retried once as a single request.
func downloadStream(ctx context.Context, client *youtube.Client, video *youtube.Video, format *youtube.Format, dest string, progress *progressWriter) (int64, error) {
	file, err := os.Create(dest)
	if err != nil {
		return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("opening output file: %w", err))
	}
	defer file.Close()

	written, err := copyStream(ctx, client, video, format, file, progress)
	if err != nil && isUnexpectedStatus(err, http.StatusForbidden) {
		if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
			return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("retry failed: %w", seekErr))
		}
		if truncErr := file.Truncate(0); truncErr != nil {
			return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("retry failed: %w", truncErr))
		}
		single := *format
		single.ContentLength = 0
		progress.written.Store(0)
		written, err = copyStream(ctx, client, video, &single, file, progress)
	}
	if err != nil {
		return 0, classifyYouTubeError(fmt.Errorf("downloading stream %d: %w", format.ItagNo, err))
	}
	if err := file.Sync(); err != nil {
		return 0, wrapCategory(CategoryFilesystem, fmt.Errorf("syncing output file: %w", err))
	}
	return written, nil
}

func copyStream(ctx context.Context, client *youtube.Client, video *youtube.Video, format *youtube.Format, dst io.Writer, progress *progressWriter) (int64, error) {
	adjustChunkSize(client, format.ContentLength)
	stream, _, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	return copyWithContext(ctx, io.MultiWriter(dst, progress), stream)
}

func isUnexpectedStatus(err error, code int) bool {
	var statusErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &statusErr) {
		return int(statusErr) == code
	}
	return false
}

// classifyYouTubeError assigns a category to errors from the YouTube client.
func classifyYouTubeError(err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}

	var playability youtube.ErrPlayabiltyStatus
	var playlistStatus youtube.ErrPlaylistStatus
	var status youtube.ErrUnexpectedStatusCode
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wrapCategory(CategoryCancelled, err)
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength),
		errors.Is(err, youtube.ErrInvalidPlaylist),
		errors.As(err, &playability),
		errors.As(err, &playlistStatus):
		return wrapCategory(CategoryUnavailable, err)
	case errors.As(err, &status):
		switch int(status) {
		case http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusUnavailableForLegalReasons:
			return wrapCategory(CategoryUnavailable, err)
		}
	}
	if isRestrictedAccess(err) {
		return wrapCategory(CategoryUnavailable, err)
	}
	return wrapCategory(CategoryNetwork, err)
}

// PlaylistInfo is an expanded playlist.
type PlaylistInfo struct {
	ID      string
	Title   string
	ItemIDs []string
}

// ListPlaylist returns the video ids of a playlist, in playlist order.
func (f *YouTubeFetcher) ListPlaylist(ctx context.Context, ref string) (PlaylistInfo, error) {
	playlist, err := f.newClient().GetPlaylistContext(ctx, ConvertMusicURL(ref))
	if err != nil {
		return PlaylistInfo{}, classifyYouTubeError(fmt.Errorf("fetching playlist: %w", err))
	}
	info := PlaylistInfo{ID: playlist.ID, Title: playlist.Title}
	for _, entry := range playlist.Videos {
		if entry == nil || entry.ID == "" {
			continue
		}
		info.ItemIDs = append(info.ItemIDs, entry.ID)
	}
	if len(info.ItemIDs) == 0 {
		return info, wrapCategory(CategoryUnavailable, errors.New("playlist has no videos"))
	}
	f.logger.Info("playlist expanded", zap.String("playlist", info.ID), zap.String("title", info.Title), zap.Int("videos", len(info.ItemIDs)))
	return info, nil
}
