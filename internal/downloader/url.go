package downloader

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytbatch/internal/model"
)

var (
	playlistIDRegex  = regexp.MustCompile(`^(PL|UU|LL|FL|OL|RD)[A-Za-z0-9_-]{10,40}$`)
	playlistURLRegex = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]{13,42})`)
)

// LooksLikePlaylist reports whether ref is a playlist id or a URL carrying
// one.
func LooksLikePlaylist(ref string) bool {
	ref = strings.TrimSpace(ref)
	return playlistIDRegex.MatchString(ref) || playlistURLRegex.MatchString(ref)
}

// ResolveItemID turns a video id or any watch/short/embed URL into the
// bare video id.
func ResolveItemID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &model.ValidationError{Field: "item id", Reason: "must not be empty"}
	}
	id, err := youtube.ExtractVideoID(NormalizeYouTubeURL(ConvertMusicURL(ref)))
	if err != nil {
		return "", &model.ValidationError{Field: "item id", Value: ref, Reason: err.Error()}
	}
	if err := model.ValidateItemID(id); err != nil {
		return "", err
	}
	return id, nil
}

// normalizeHostname returns the normalized hostname from a URL:
// lowercase, with "www." prefix removed, and port stripped.
func normalizeHostname(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ConvertMusicURL converts YouTube Music URLs to regular YouTube URLs
func ConvertMusicURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	if normalizeHostname(parsed) != "music.youtube.com" {
		return u
	}

	parsed.Host = "www.youtube.com"
	query := parsed.Query()
	delete(query, "si")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// NormalizeYouTubeURL converts alternate YouTube URL forms (live/shorts/youtu.be) to watch?v=.
func NormalizeYouTubeURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	host := normalizeHostname(parsed)
	if host != "youtube.com" && host != "youtu.be" {
		return u
	}
	query := parsed.Query()
	if host == "youtu.be" {
		id := strings.TrimPrefix(parsed.Path, "/")
		if id != "" {
			query.Set("v", id)
		}
		parsed.Host = "www.youtube.com"
		parsed.Path = "/watch"
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) >= 2 && (parts[0] == "live" || parts[0] == "shorts") {
		if query.Get("v") == "" && parts[1] != "" {
			query.Set("v", parts[1])
		}
		parsed.Path = "/watch"
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}
	return u
}

func watchURLForID(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}
