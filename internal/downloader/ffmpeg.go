package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/lvcoi/ytbatch/internal/model"
)

// errFFmpegMissing is returned when a configuration needs ffmpeg and none
// was found.
var errFFmpegMissing = errors.New("ffmpeg not found (set downloader.ffmpeg_path or add it to PATH)")

// locateFFmpeg prefers the configured binary and falls back to PATH.
func locateFFmpeg(configured string) (string, error) {
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && !info.IsDir() {
			return configured, nil
		}
		if path, err := exec.LookPath(configured); err == nil {
			return path, nil
		}
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errFFmpegMissing
	}
	return path, nil
}

func mp3Args(inputPath, outputPath string, quality model.AudioQuality) []string {
	kwargs := ffmpeg.KwArgs{"vn": "", "acodec": "libmp3lame"}
	if quality == model.AudioLow {
		kwargs["q:a"] = "7"
	} else {
		kwargs["q:a"] = "2"
	}
	return ffmpeg.Input(inputPath).
		Output(outputPath, kwargs).
		OverWriteOutput().
		GetArgs()
}

func muxArgs(videoPath, audioPath, outputPath string) []string {
	video := ffmpeg.Input(videoPath).Video()
	audio := ffmpeg.Input(audioPath).Audio()
	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outputPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		GetArgs()
}

// runFFmpeg runs the binary with args and kills it when ctx ends.
func runFFmpeg(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if msg := lastLine(string(output)); msg != "" {
			return fmt.Errorf("ffmpeg: %s: %w", msg, err)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
