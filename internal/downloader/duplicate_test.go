package downloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytbatch/internal/model"
)

func TestParseDuplicatePolicy(t *testing.T) {
	tests := []struct {
		raw     string
		want    DuplicatePolicy
		wantErr bool
	}{
		{raw: "", want: DuplicatePolicyRename},
		{raw: "Rename", want: DuplicatePolicyRename},
		{raw: " skip ", want: DuplicatePolicySkip},
		{raw: "OVERWRITE", want: DuplicatePolicyOverwrite},
		{raw: "prompt", wantErr: true},
	}
	for _, test := range tests {
		got, err := ParseDuplicatePolicy(test.raw)
		if test.wantErr {
			if _, ok := err.(*model.ValidationError); !ok {
				t.Fatalf("ParseDuplicatePolicy(%q) error = %v, want validation error", test.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDuplicatePolicy(%q) returned error: %v", test.raw, err)
		}
		if got != test.want {
			t.Fatalf("ParseDuplicatePolicy(%q) = %q, want %q", test.raw, got, test.want)
		}
	}
}

func TestClaimSamePathTwiceInOneBatch(t *testing.T) {
	for _, policy := range []DuplicatePolicy{DuplicatePolicyRename, DuplicatePolicySkip, DuplicatePolicyOverwrite} {
		t.Run(string(policy), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "Song.mp3")
			paths := newPathReservations(policy)

			first, existing, err := paths.claim(path)
			if err != nil || existing {
				t.Fatalf("first claim = %q, %v, %v", first, existing, err)
			}
			second, existing, err := paths.claim(path)
			if err != nil || existing {
				t.Fatalf("second claim = %q, %v, %v", second, existing, err)
			}
			if first != path {
				t.Fatalf("first claim = %q, want %q", first, path)
			}
			if want := filepath.Join(dir, "Song (1).mp3"); second != want {
				t.Fatalf("second claim = %q, want %q", second, want)
			}
		})
	}
}

func TestClaimRenamesFileFromEarlierRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Song.mp3")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write existing file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Song (1).mp3"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write existing file: %v", err)
	}

	got, existing, err := newPathReservations("").claim(path)
	if err != nil {
		t.Fatalf("claim returned error: %v", err)
	}
	if existing {
		t.Fatal("rename policy reported an existing file")
	}
	if want := filepath.Join(dir, "Song (2).mp3"); got != want {
		t.Fatalf("claim = %q, want %q", got, want)
	}
}

func TestClaimSkipReturnsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Song.mp3")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write existing file: %v", err)
	}

	got, existing, err := newPathReservations(DuplicatePolicySkip).claim(path)
	if err != nil {
		t.Fatalf("claim returned error: %v", err)
	}
	if !existing || got != path {
		t.Fatalf("claim = %q, %v, want %q, true", got, existing, path)
	}

	artifact, err := existingArtifact(got, "Song", "Artist")
	if err != nil {
		t.Fatalf("existingArtifact returned error: %v", err)
	}
	if artifact.Path != path || artifact.Name != "Song" || artifact.SizeMB <= 0 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
}

func TestClaimOverwriteReusesFileFromEarlierRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Song.mp3")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write existing file: %v", err)
	}

	got, existing, err := newPathReservations(DuplicatePolicyOverwrite).claim(path)
	if err != nil || existing || got != path {
		t.Fatalf("claim = %q, %v, %v, want %q", got, existing, err, path)
	}
}

func TestClaimRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Song.mp3")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, _, err := newPathReservations(DuplicatePolicyOverwrite).claim(path); err == nil {
		t.Fatal("expected error for directory at output path")
	} else if CategoryOf(err) != CategoryFilesystem {
		t.Fatalf("category = %q, want %q", CategoryOf(err), CategoryFilesystem)
	}
}

func TestReleaseFreesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Song.mp3")
	paths := newPathReservations(DuplicatePolicyRename)

	if _, _, err := paths.claim(path); err != nil {
		t.Fatalf("claim returned error: %v", err)
	}
	paths.release(path)

	got, _, err := paths.claim(path)
	if err != nil {
		t.Fatalf("claim returned error: %v", err)
	}
	if got != path {
		t.Fatalf("claim after release = %q, want %q", got, path)
	}
}

// Two tasks in one batch resolving to the same stem must end up in two files.
func TestBatchTasksWithSameStemKeepBothFiles(t *testing.T) {
	dir := t.TempDir()
	paths := newPathReservations(DuplicatePolicyRename)
	titles := map[string]string{"aaaaaaaaaaa": "Same Title", "bbbbbbbbbbb": "Same Title"}

	fetcher := FetcherFunc(func(_ context.Context, task model.Task, _ ProgressFunc) (Artifact, error) {
		video := &youtube.Video{ID: task.ItemID, Title: titles[task.ItemID]}
		wanted, err := outputPath(dir, resolveFileStem("", video, task.Config), ".mp4")
		if err != nil {
			return Artifact{}, err
		}
		path, _, err := paths.claim(wanted)
		if err != nil {
			return Artifact{}, err
		}
		if err := os.WriteFile(path, []byte(task.ItemID), 0o644); err != nil {
			return Artifact{}, err
		}
		return Artifact{Path: path}, nil
	})
	orch, err := NewOrchestrator(fetcher, 2, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}

	hd := model.Video{Quality: model.VideoHD}
	results, err := orch.RunBatch(context.Background(), []model.Task{newTask("aaaaaaaaaaa", hd), newTask("bbbbbbbbbbb", hd)}, nil)
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	for _, r := range results {
		if f, ok := r.(model.Failure); ok {
			t.Fatalf("task %s failed: %s", f.ItemID, f.ErrorMessage)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	got := map[string]bool{}
	for _, e := range entries {
		got[e.Name()] = true
	}
	for _, name := range []string{"Same Title [720p].mp4", "Same Title [720p] (1).mp4"} {
		if !got[name] {
			t.Fatalf("missing %q in %v", name, got)
		}
	}
}
