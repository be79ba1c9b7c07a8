package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytbatch/internal/model"
)

func TestHeaders(t *testing.T) {
	assert.Equal(t, "Video Id,File Name,File Format,Quality,Timestamp,File Size In MB", SuccessHeader())
	assert.Equal(t, "Video Id,File Format,Quality,Timestamp,Retry Count,Error Message", FailureHeader())
}

func TestFormatSuccess(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	s := model.Success{
		ItemID:    "dQw4w9WgXcQ",
		Config:    model.Audio{Quality: model.AudioHigh},
		Timestamp: at,
		FileName:  "Never Gonna, Give You Up.mp3",
		SizeMB:    3.456,
	}
	assert.Equal(t, "dQw4w9WgXcQ,Never Gonna; Give You Up.mp3,mp3,HighBitrate,2024-03-09 02:05:07,3.46", FormatSuccess(s))
}

func TestFailureRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 9, 10, 30, 0, 0, time.Local)
	rec := model.FailureRecord{
		Failure: model.Failure{
			ItemID:       "B",
			Config:       model.Video{Quality: model.VideoHD},
			Timestamp:    at,
			ErrorMessage: "HTTP 403; forbidden",
		},
		RetryCount: 4,
	}

	line := FormatFailure(rec)
	assert.Equal(t, "B,mp4,HD,2024-03-09 10:30:00,4,HTTP 403; forbidden", line)

	got, err := ParseFailure(line)
	require.NoError(t, err)
	assert.Equal(t, rec.ItemID, got.ItemID)
	assert.Equal(t, rec.Config, got.Config)
	assert.True(t, rec.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, rec.RetryCount, got.RetryCount)
	assert.Equal(t, rec.ErrorMessage, got.ErrorMessage)
}

func TestSuccessRoundTrip(t *testing.T) {
	at := time.Date(2023, 12, 31, 11, 59, 59, 0, time.Local)
	s := model.Success{
		ItemID:    "A",
		Config:    model.Video{Quality: model.VideoFullHD},
		Timestamp: at,
		FileName:  "clip.mp4",
		SizeMB:    120.5,
	}
	got, err := ParseSuccess(FormatSuccess(s))
	require.NoError(t, err)
	assert.Equal(t, s.Config, got.Config)
	assert.Equal(t, s.FileName, got.FileName)
	assert.InDelta(t, s.SizeMB, got.SizeMB, 0.001)
	assert.True(t, s.Timestamp.Equal(got.Timestamp))
}

func TestParseFailureRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"too few columns":  "A,mp3,HighBitrate,2024-01-01 10:00:00,1",
		"too many columns": "A,mp3,HighBitrate,2024-01-01 10:00:00,1,a,b",
		"bad format":       "A,ogg,HighBitrate,2024-01-01 10:00:00,1,x",
		"bad quality":      "A,mp4,HighBitrate,2024-01-01 10:00:00,1,x",
		"bad timestamp":    "A,mp3,HighBitrate,yesterday,1,x",
		"bad retry count":  "A,mp3,HighBitrate,2024-01-01 10:00:00,-1,x",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFailure(line)
			require.Error(t, err)
		})
	}
}
