package downloader

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytbatch/internal/model"
)

const defaultFileNameTemplate = "{title}"

var invalidFileNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// resolveFileStem expands the file name template for video and strips
// characters that are not allowed in file names. An empty result falls back
// to the video id. Video variants carry their resolution ("Title [720p]")
// unless the template places {quality} itself.
func resolveFileStem(template string, video *youtube.Video, cfg model.Configuration) string {
	if strings.TrimSpace(template) == "" {
		template = defaultFileNameTemplate
	}
	quality := ""
	if cfg != nil {
		quality = cfg.QualityLabel()
	}
	v, isVideo := cfg.(model.Video)
	if isVideo {
		quality = v.Quality.Label()
	}
	replacer := strings.NewReplacer(
		"{title}", video.Title,
		"{id}", video.ID,
		"{author}", video.Author,
		"{quality}", quality,
	)
	stem := sanitizeFileName(replacer.Replace(template))
	if stem == "" {
		stem = video.ID
	}
	if isVideo && !strings.Contains(template, "{quality}") {
		stem = fmt.Sprintf("%s [%s]", stem, quality)
	}
	return stem
}

func sanitizeFileName(name string) string {
	clean := invalidFileNameChars.ReplaceAllString(name, "")
	clean = strings.TrimSpace(clean)
	return strings.Trim(clean, ". ")
}

// outputPath joins the save folder, stem and extension (with its dot),
// refusing to leave the save folder.
func outputPath(saveFolder, stem, ext string) (string, error) {
	base := filepath.Clean(saveFolder)
	full := filepath.Join(base, stem+ext)
	rel, err := filepath.Rel(base, full)
	if err != nil {
		return "", fmt.Errorf("resolve output path relative to %q: %w", base, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path escapes save folder %q", base)
	}
	return full, nil
}
