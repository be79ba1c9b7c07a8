package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytbatch/internal/downloader"
	"github.com/lvcoi/ytbatch/internal/model"
)

func TestTasksFromRefs(t *testing.T) {
	tasks, err := TasksFromRefs([]string{
		"dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/9bZkp7q19f0",
	}, audioHigh)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "dQw4w9WgXcQ", tasks[0].ItemID)
	assert.Equal(t, "9bZkp7q19f0", tasks[1].ItemID)
	assert.Equal(t, audioHigh, tasks[1].Config)

	_, err = TasksFromRefs(nil, audioHigh)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = TasksFromRefs([]string{"dQw4w9WgXcQ"}, nil)
	assert.ErrorAs(t, err, &verr)
}

type stubLister struct {
	info downloader.PlaylistInfo
	err  error
}

func (s stubLister) ListPlaylist(context.Context, string) (downloader.PlaylistInfo, error) {
	return s.info, s.err
}

func TestTasksFromPlaylist(t *testing.T) {
	lister := stubLister{info: downloader.PlaylistInfo{ID: "PL1", Title: "Mix", ItemIDs: []string{"a1", "b2", "a1"}}}
	ref := "https://www.youtube.com/playlist?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf"
	tasks, info, err := TasksFromPlaylist(context.Background(), lister, ref, videoHD)
	require.NoError(t, err)
	assert.Equal(t, "Mix", info.Title)
	require.Len(t, tasks, 2)
	assert.Equal(t, "b2", tasks[1].ItemID)

	boom := errors.New("boom")
	_, _, err = TasksFromPlaylist(context.Background(), stubLister{err: boom}, ref, videoHD)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "list playlist")
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestTasksFromExport(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "Video Id,Time Added\n" +
		"dQw4w9WgXcQ,2024-01-01 10:00:00\n" +
		"\n" +
		"  9bZkp7q19f0 ,2024-01-02 10:00:00\n" +
		"dQw4w9WgXcQ,2024-01-03 10:00:00\n"
	require.NoError(t, afero.WriteFile(fs, "/exports/list.csv", []byte(content), 0o644))

	tasks, err := TasksFromExport(fs, "/exports/list.csv", audioLow)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "dQw4w9WgXcQ", tasks[0].ItemID)
	assert.Equal(t, "9bZkp7q19f0", tasks[1].ItemID)
}

func TestTasksFromExportErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/header-only.csv", []byte("Video Id,Time Added\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/bad.csv", []byte("Video Id\nok_id\nbad id,x\n"), 0o644))

	var verr *model.ValidationError
	_, err := TasksFromExport(fs, "/header-only.csv", audioLow)
	require.ErrorAs(t, err, &verr)

	_, err = TasksFromExport(fs, "/bad.csv", audioLow)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "line 3")

	_, err = TasksFromExport(fs, "/missing.csv", audioLow)
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestTasksFromFailures(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []model.FailureRecord{
		{Failure: model.Failure{ItemID: "A", Config: audioHigh, Timestamp: at, ErrorMessage: "x"}, RetryCount: 2},
		{Failure: model.Failure{ItemID: "B", Config: videoHD, Timestamp: at, ErrorMessage: "y"}, RetryCount: 1},
		{Failure: model.Failure{ItemID: "B", Config: audioLow, Timestamp: at, ErrorMessage: "z"}, RetryCount: 1},
	}

	keep := TasksFromFailures(records, nil, nil)
	require.Len(t, keep, 3)
	assert.Equal(t, videoHD, keep[1].Config)

	overridden := TasksFromFailures(records, audioLow, nil)
	require.Len(t, overridden, 2, "B collapses to one key under the override")
	for _, task := range overridden {
		assert.Equal(t, audioLow, task.Config)
	}

	only := TasksFromFailures(records, nil, []string{"A"})
	require.Len(t, only, 1)
	assert.Equal(t, "A", only[0].ItemID)
}
