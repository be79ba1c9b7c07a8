package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/lvcoi/ytbatch/internal/downloader"
	"github.com/lvcoi/ytbatch/internal/model"
)

// PlaylistLister expands a playlist reference into item ids.
type PlaylistLister interface {
	ListPlaylist(ctx context.Context, ref string) (downloader.PlaylistInfo, error)
}

// TasksFromRefs builds one task per video id or URL. Repeated items are
// dropped, keeping the first occurrence.
func TasksFromRefs(refs []string, cfg model.Configuration) ([]model.Task, error) {
	if cfg == nil {
		return nil, &model.ValidationError{Field: "quality", Reason: "missing"}
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := downloader.ResolveItemID(ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, &model.ValidationError{Field: "item id", Reason: "no videos given"}
	}
	return tasksFor(ids, cfg), nil
}

// TasksFromPlaylist expands ref and builds one task per entry.
func TasksFromPlaylist(ctx context.Context, lister PlaylistLister, ref string, cfg model.Configuration) ([]model.Task, downloader.PlaylistInfo, error) {
	if cfg == nil {
		return nil, downloader.PlaylistInfo{}, &model.ValidationError{Field: "quality", Reason: "missing"}
	}
	if !downloader.LooksLikePlaylist(ref) {
		return nil, downloader.PlaylistInfo{}, &model.ValidationError{Field: "playlist", Value: ref, Reason: "not a playlist id or URL"}
	}
	info, err := lister.ListPlaylist(ctx, ref)
	if err != nil {
		return nil, info, fmt.Errorf("list playlist %s: %w", ref, err)
	}
	return tasksFor(info.ItemIDs, cfg), info, nil
}

// TasksFromExport reads an exported list file: a header line followed by
// comma-separated rows whose first column is a video id. Blank lines are
// skipped.
func TasksFromExport(fs afero.Fs, path string, cfg model.Configuration) ([]model.Task, error) {
	if cfg == nil {
		return nil, &model.ValidationError{Field: "quality", Reason: "missing"}
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read exported list %s: %w", path, err)
	}

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		first, _, _ := strings.Cut(text, ",")
		id := strings.TrimSpace(first)
		if err := model.ValidateItemID(id); err != nil {
			return nil, &model.ValidationError{Field: "item id", Value: id, Reason: fmt.Sprintf("%s line %d", path, line)}
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read exported list %s: %w", path, err)
	}
	if len(ids) == 0 {
		return nil, &model.ValidationError{Field: "exported list", Value: path, Reason: "no videos found"}
	}
	return tasksFor(ids, cfg), nil
}

// TasksFromFailures turns stored failures back into tasks. With override
// nil every record keeps its original configuration. only, when non-empty,
// restricts the retry to those item ids.
func TasksFromFailures(records []model.FailureRecord, override model.Configuration, only []string) []model.Task {
	var wanted map[string]bool
	if len(only) > 0 {
		wanted = make(map[string]bool, len(only))
		for _, id := range only {
			wanted[strings.TrimSpace(id)] = true
		}
	}

	seen := make(map[model.Key]bool, len(records))
	tasks := make([]model.Task, 0, len(records))
	for _, rec := range records {
		if wanted != nil && !wanted[rec.ItemID] {
			continue
		}
		task := rec.Task()
		if override != nil {
			task.Config = override
		}
		if seen[task.Key()] {
			continue
		}
		seen[task.Key()] = true
		tasks = append(tasks, task)
	}
	return tasks
}

func tasksFor(ids []string, cfg model.Configuration) []model.Task {
	seen := make(map[string]bool, len(ids))
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		tasks = append(tasks, model.Task{ItemID: id, Config: cfg})
	}
	return tasks
}
