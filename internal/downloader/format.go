package downloader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytbatch/internal/model"
)

func isAudioOnly(f *youtube.Format) bool {
	return f.AudioChannels > 0 && f.Width == 0 && f.Height == 0
}

func isVideoOnly(f *youtube.Format) bool {
	return f.AudioChannels == 0 && f.Height > 0
}

func isProgressive(f *youtube.Format) bool {
	return f.AudioChannels > 0 && f.Height > 0
}

func isMP4(f *youtube.Format) bool {
	return strings.HasPrefix(f.MimeType, "video/mp4") || strings.HasPrefix(f.MimeType, "audio/mp4")
}

func bitrateForFormat(f *youtube.Format) int {
	if f.Bitrate > 0 {
		return f.Bitrate
	}
	return f.AverageBitrate
}

func collect(formats youtube.FormatList, keep func(*youtube.Format) bool) []*youtube.Format {
	out := make([]*youtube.Format, 0, len(formats))
	for i := range formats {
		if keep(&formats[i]) {
			out = append(out, &formats[i])
		}
	}
	return out
}

// selectAudioFormat picks the lowest or highest bitrate audio-only stream.
func selectAudioFormat(formats youtube.FormatList, quality model.AudioQuality) (*youtube.Format, error) {
	candidates := collect(formats, isAudioOnly)
	if len(candidates) == 0 {
		return nil, wrapCategory(CategoryUnsupported, errors.New("no audio-only streams available"))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return bitrateForFormat(candidates[i]) < bitrateForFormat(candidates[j])
	})
	if quality == model.AudioLow {
		return candidates[0], nil
	}
	return candidates[len(candidates)-1], nil
}

// selectProgressiveFormat picks a muxed mp4 stream for SD or HD. An exact
// quality label wins; otherwise the tallest stream not above the target,
// otherwise the shortest available.
func selectProgressiveFormat(formats youtube.FormatList, quality model.VideoQuality) (*youtube.Format, error) {
	candidates := collect(formats, func(f *youtube.Format) bool {
		return isProgressive(f) && isMP4(f)
	})
	if len(candidates) == 0 {
		return nil, wrapCategory(CategoryUnsupported, errors.New("no progressive mp4 streams available"))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Height != candidates[j].Height {
			return candidates[i].Height > candidates[j].Height
		}
		return bitrateForFormat(candidates[i]) > bitrateForFormat(candidates[j])
	})

	label := quality.Label()
	for _, f := range candidates {
		if strings.HasPrefix(f.QualityLabel, label) {
			return f, nil
		}
	}
	target := quality.Height()
	for _, f := range candidates {
		if f.Height <= target {
			return f, nil
		}
	}
	return candidates[len(candidates)-1], nil
}

// selectAdaptivePair picks the best mp4 video-only stream up to the target
// height and the best mp4 audio stream, to be muxed together.
func selectAdaptivePair(formats youtube.FormatList, quality model.VideoQuality) (video, audio *youtube.Format, err error) {
	videos := collect(formats, func(f *youtube.Format) bool {
		return isVideoOnly(f) && isMP4(f) && f.Height <= quality.Height()
	})
	if len(videos) == 0 {
		return nil, nil, wrapCategory(CategoryUnsupported, fmt.Errorf("no mp4 video streams up to %s available", quality.Label()))
	}
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].Height != videos[j].Height {
			return videos[i].Height > videos[j].Height
		}
		return bitrateForFormat(videos[i]) > bitrateForFormat(videos[j])
	})

	audios := collect(formats, func(f *youtube.Format) bool {
		return isAudioOnly(f) && isMP4(f)
	})
	if len(audios) == 0 {
		audios = collect(formats, isAudioOnly)
	}
	if len(audios) == 0 {
		return nil, nil, wrapCategory(CategoryUnsupported, errors.New("no audio streams available"))
	}
	sort.SliceStable(audios, func(i, j int) bool {
		return bitrateForFormat(audios[i]) > bitrateForFormat(audios[j])
	})
	return videos[0], audios[0], nil
}

func contentLength(f *youtube.Format) int64 {
	if f == nil || f.ContentLength < 0 {
		return 0
	}
	return f.ContentLength
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
