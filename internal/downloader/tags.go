package downloader

import (
	"strconv"

	id3v2 "github.com/bogem/id3v2/v2"
	"github.com/kkdai/youtube/v2"
)

// embedID3Tags writes title, artist and year frames into an mp3 file.
func embedID3Tags(outputPath string, video *youtube.Video) error {
	tag, err := id3v2.Open(outputPath, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if video.Title != "" {
		tag.SetTitle(video.Title)
	}
	if video.Author != "" {
		tag.SetArtist(video.Author)
	}
	if !video.PublishDate.IsZero() {
		tag.SetYear(strconv.Itoa(video.PublishDate.Year()))
	}
	if video.ID != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    tag.DefaultEncoding(),
			Language:    "eng",
			Description: "source",
			Text:        watchURLForID(video.ID),
		})
	}
	return tag.Save()
}
