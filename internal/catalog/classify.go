package catalog

import "strings"

// ClassifyMediaType labels a download as music or video.
//
//   - Music: audio-only download, or the channel is an auto-generated
//     " - Topic" channel
//   - Movie: the channel is "YouTube Movies & TV"
//   - Video: everything else
func ClassifyMediaType(channelName string, audioOnly bool) string {
	channelName = strings.TrimSpace(channelName)
	if audioOnly || strings.HasSuffix(channelName, " - Topic") {
		return "music"
	}
	if channelName == "YouTube Movies & TV" {
		return "movie"
	}
	return "video"
}
