package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lvcoi/ytbatch/internal/model"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("database file was not created")
	}
}

func TestRecordAndList(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	entries := []Entry{
		{ItemID: "dQw4w9WgXcQ", Config: model.Audio{Quality: model.AudioHigh}, FileName: "Song", FilePath: "/media/Song.mp3", SizeMB: 3.2, Author: "Rick Astley", RunID: "run-1", DownloadedAt: base},
		{ItemID: "9bZkp7q19f0", Config: model.Video{Quality: model.VideoHD}, FileName: "Clip", FilePath: "/media/Clip.mp4", SizeMB: 40, Author: "officialpsy", RunID: "run-1", DownloadedAt: base.Add(time.Minute)},
	}
	if err := c.Record(ctx, entries); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := c.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ItemID != "9bZkp7q19f0" {
		t.Fatalf("expected newest entry first, got %q", got[0].ItemID)
	}
	if got[0].Config != (model.Video{Quality: model.VideoHD}) {
		t.Fatalf("config not restored: %v", got[0].Config)
	}
	if got[0].MediaType != "video" || got[1].MediaType != "music" {
		t.Fatalf("unexpected media types %q, %q", got[0].MediaType, got[1].MediaType)
	}
	if !got[1].DownloadedAt.Equal(base) {
		t.Fatalf("expected timestamp %v, got %v", base, got[1].DownloadedAt)
	}
}

func TestRecordUpsertsByKey(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	cfg := model.Audio{Quality: model.AudioLow}

	first := Entry{ItemID: "dQw4w9WgXcQ", Config: cfg, FileName: "Old", RunID: "run-1", DownloadedAt: time.Now()}
	if err := c.Record(ctx, []Entry{first}); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	second := first
	second.FileName = "New"
	second.RunID = "run-2"
	if err := c.Record(ctx, []Entry{second}); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}
	// same item, different configuration is a separate row
	other := first
	other.Config = model.Audio{Quality: model.AudioHigh}
	if err := c.Record(ctx, []Entry{other}); err != nil {
		t.Fatalf("third Record failed: %v", err)
	}

	count, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}

	entries, err := c.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, e := range entries {
		if e.Config == cfg && (e.FileName != "New" || e.RunID != "run-2") {
			t.Fatalf("expected upserted row, got %+v", e)
		}
	}
}

func TestHas(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	key := model.Key{ItemID: "dQw4w9WgXcQ", Config: model.Video{Quality: model.VideoFullHD}}

	ok, err := c.Has(ctx, key)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if ok {
		t.Fatal("empty catalog reported a download")
	}

	if err := c.Record(ctx, []Entry{{ItemID: key.ItemID, Config: key.Config, DownloadedAt: time.Now()}}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if ok, _ := c.Has(ctx, key); !ok {
		t.Fatal("expected recorded key to be found")
	}
	if ok, _ := c.Has(ctx, model.Key{ItemID: key.ItemID, Config: model.Video{Quality: model.VideoSD}}); ok {
		t.Fatal("different configuration should not match")
	}
}

func TestRecordRejectsMissingConfig(t *testing.T) {
	c := openTemp(t)
	err := c.Record(context.Background(), []Entry{{ItemID: "dQw4w9WgXcQ", DownloadedAt: time.Now()}})
	if err == nil {
		t.Fatal("expected error for entry without configuration")
	}
	if count, _ := c.Count(context.Background()); count != 0 {
		t.Fatalf("failed transaction left %d rows", count)
	}
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil catalog: %v", err)
	}
	if _, err := c.Count(context.Background()); err == nil {
		t.Fatal("expected error from nil catalog")
	}
}
