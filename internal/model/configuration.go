// Package model holds the values passed between the orchestrator, the ledger
// and the command line: configurations, tasks and their results.
package model

import (
	"fmt"
	"strings"
)

// Format is the container a configuration produces.
type Format int

const (
	FormatMP3 Format = iota
	FormatMP4
)

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatMP4:
		return "mp4"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	return "." + f.String()
}

// AudioQuality selects the source bitrate for audio extraction.
type AudioQuality int

const (
	AudioLow AudioQuality = iota
	AudioHigh
)

func (q AudioQuality) String() string {
	switch q {
	case AudioLow:
		return "LowBitrate"
	case AudioHigh:
		return "HighBitrate"
	default:
		return fmt.Sprintf("audio(%d)", int(q))
	}
}

// VideoQuality selects the target resolution for video downloads.
type VideoQuality int

const (
	VideoSD VideoQuality = iota
	VideoHD
	VideoFullHD
)

func (q VideoQuality) String() string {
	switch q {
	case VideoSD:
		return "SD"
	case VideoHD:
		return "HD"
	case VideoFullHD:
		return "FullHD"
	default:
		return fmt.Sprintf("video(%d)", int(q))
	}
}

// Height is the target vertical resolution in pixels.
func (q VideoQuality) Height() int {
	switch q {
	case VideoSD:
		return 480
	case VideoHD:
		return 720
	case VideoFullHD:
		return 1080
	default:
		return 0
	}
}

// Label is the stream quality label ("480p", "720p", "1080p").
func (q VideoQuality) Label() string {
	return fmt.Sprintf("%dp", q.Height())
}

// Configuration is the encoding variant requested for a download. The set is
// closed: Audio and Video are the only implementations.
type Configuration interface {
	Format() Format
	QualityLabel() string
	String() string
	configuration()
}

// Audio extracts the audio track and encodes it as mp3.
type Audio struct {
	Quality AudioQuality
}

func (Audio) Format() Format         { return FormatMP3 }
func (a Audio) QualityLabel() string { return a.Quality.String() }
func (a Audio) String() string       { return "mp3:" + a.Quality.String() }
func (Audio) configuration()         {}

// Video downloads an mp4 at the given resolution tier.
type Video struct {
	Quality VideoQuality
}

func (Video) Format() Format         { return FormatMP4 }
func (v Video) QualityLabel() string { return v.Quality.String() }
func (v Video) String() string       { return "mp4:" + v.Quality.String() }
func (Video) configuration()         {}

var (
	audioQualities = map[string]AudioQuality{
		"lowbitrate":  AudioLow,
		"low":         AudioLow,
		"highbitrate": AudioHigh,
		"high":        AudioHigh,
	}
	videoQualities = map[string]VideoQuality{
		"sd":     VideoSD,
		"480p":   VideoSD,
		"hd":     VideoHD,
		"720p":   VideoHD,
		"fullhd": VideoFullHD,
		"1080p":  VideoFullHD,
	}
)

// ParseConfiguration parses the persisted format and quality columns.
// Matching is case-insensitive.
func ParseConfiguration(format, quality string) (Configuration, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	q := strings.ToLower(strings.TrimSpace(quality))
	switch f {
	case "mp3":
		aq, ok := audioQualities[q]
		if !ok {
			return nil, fmt.Errorf("unknown audio quality %q", quality)
		}
		return Audio{Quality: aq}, nil
	case "mp4":
		vq, ok := videoQualities[q]
		if !ok {
			return nil, fmt.Errorf("unknown video quality %q", quality)
		}
		return Video{Quality: vq}, nil
	default:
		return nil, fmt.Errorf("unknown file format %q", format)
	}
}

// ParseSelector parses the command-line form "<format>:<quality>", e.g.
// "mp3:high" or "mp4:1080p".
func ParseSelector(value string) (Configuration, error) {
	format, quality, ok := strings.Cut(value, ":")
	if !ok {
		return nil, &ValidationError{Field: "quality", Value: value, Reason: "expected <format>:<quality>"}
	}
	cfg, err := ParseConfiguration(format, quality)
	if err != nil {
		return nil, &ValidationError{Field: "quality", Value: value, Reason: err.Error()}
	}
	return cfg, nil
}
