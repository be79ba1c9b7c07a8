// Package ledger keeps the CSV audit trail of a download run: successes are
// appended, failures are merged by (item id, configuration) with a retry
// counter that accumulates across runs.
package ledger

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lvcoi/ytbatch/internal/model"
)

// Options configures a Ledger.
type Options struct {
	// Fs defaults to the operating system filesystem.
	Fs          afero.Fs
	SuccessPath string
	FailurePath string

	// AuditSuccessful and AuditFailed gate what Audit writes. The Persist*
	// methods ignore them.
	AuditSuccessful bool
	AuditFailed     bool

	// Lock takes an advisory file lock next to each store while it is
	// written. Only meaningful on the OS filesystem.
	Lock bool

	Logger *zap.Logger
}

// Ledger is the durable success/failure record store.
type Ledger struct {
	fs              afero.Fs
	successPath     string
	failurePath     string
	auditSuccessful bool
	auditFailed     bool
	lock            bool
	logger          *zap.Logger

	successMu sync.Mutex
	failureMu sync.Mutex
}

// New returns a ledger for the given stores.
func New(opts Options) *Ledger {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		fs:              fsys,
		successPath:     opts.SuccessPath,
		failurePath:     opts.FailurePath,
		auditSuccessful: opts.AuditSuccessful,
		auditFailed:     opts.AuditFailed,
		lock:            opts.Lock,
		logger:          logger.Named("ledger"),
	}
}

// SuccessPath returns the success store location.
func (l *Ledger) SuccessPath() string { return l.successPath }

// FailurePath returns the failure store location.
func (l *Ledger) FailurePath() string { return l.failurePath }

// Audit persists a finished batch. Successes are appended and failures
// merged concurrently since they live in different files. A key that
// succeeded in this batch is removed from the failure store unless a later
// failure for it is part of the same batch.
func (l *Ledger) Audit(ctx context.Context, results []model.Result) error {
	successes, failures := model.Split(results)

	resolved := make(map[model.Key]time.Time, len(successes))
	for _, s := range successes {
		if at, ok := resolved[s.Key()]; !ok || s.Timestamp.After(at) {
			resolved[s.Key()] = s.Timestamp
		}
	}

	var g errgroup.Group
	if l.auditSuccessful {
		g.Go(func() error {
			if err := l.PersistSuccesses(ctx, successes); err != nil {
				l.logger.Error("persist successes", zap.String("path", l.successPath), zap.Error(err))
				return err
			}
			return nil
		})
	}
	if l.auditFailed {
		g.Go(func() error {
			if err := l.reconcileFailures(ctx, failures, resolved); err != nil {
				l.logger.Error("persist failures", zap.String("path", l.failurePath), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// PersistSuccesses appends one row per success. The header is written only
// when the store is new or empty.
func (l *Ledger) PersistSuccesses(ctx context.Context, successes []model.Success) error {
	if len(successes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.successPath == "" {
		return &StorageError{Op: "append", Path: l.successPath, Err: errors.New("no success store configured")}
	}

	l.successMu.Lock()
	defer l.successMu.Unlock()

	if err := l.ensureDir(l.successPath); err != nil {
		return err
	}
	unlock, err := l.acquire(ctx, l.successPath)
	if err != nil {
		return err
	}
	defer unlock()

	empty, needsNewline, err := l.tail(l.successPath)
	if err != nil {
		return err
	}

	var b strings.Builder
	if empty {
		b.WriteString(SuccessHeader())
		b.WriteByte('\n')
	} else if needsNewline {
		b.WriteByte('\n')
	}
	for _, s := range successes {
		b.WriteString(FormatSuccess(s))
		b.WriteByte('\n')
	}

	f, err := l.fs.OpenFile(l.successPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "open", Path: l.successPath, Err: err}
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return &StorageError{Op: "write", Path: l.successPath, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StorageError{Op: "sync", Path: l.successPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "close", Path: l.successPath, Err: err}
	}

	l.logger.Info("appended successes", zap.String("path", l.successPath), zap.Int("rows", len(successes)))
	return nil
}

// PersistFailures merges the batch's failures into the failure store and
// rewrites it with one row per key.
func (l *Ledger) PersistFailures(ctx context.Context, failures []model.Failure) error {
	return l.reconcileFailures(ctx, failures, nil)
}

// ResolveFailures removes the given keys from the failure store.
func (l *Ledger) ResolveFailures(ctx context.Context, keys []model.Key) error {
	if len(keys) == 0 {
		return nil
	}
	now := time.Now()
	resolved := make(map[model.Key]time.Time, len(keys))
	for _, k := range keys {
		resolved[k] = now
	}
	return l.reconcileFailures(ctx, nil, resolved)
}

// ListFailures returns the failure store's records. A missing or empty store
// yields no records and no error.
func (l *Ledger) ListFailures(ctx context.Context) ([]model.FailureRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.failureMu.Lock()
	defer l.failureMu.Unlock()
	return l.loadFailures()
}

// ListSuccesses returns every row of the success store.
func (l *Ledger) ListSuccesses(ctx context.Context) ([]model.Success, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.successMu.Lock()
	defer l.successMu.Unlock()

	lines, err := l.readRows(l.successPath, SuccessHeader())
	if err != nil {
		return nil, err
	}
	out := make([]model.Success, 0, len(lines))
	for _, row := range lines {
		s, err := ParseSuccess(row.text)
		if err != nil {
			return nil, &DataCorruptedError{Path: l.successPath, Line: row.number, Reason: err.Error()}
		}
		out = append(out, s)
	}
	return out, nil
}

func (l *Ledger) reconcileFailures(ctx context.Context, failures []model.Failure, resolved map[model.Key]time.Time) error {
	if len(failures) == 0 && len(resolved) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.failurePath == "" {
		return &StorageError{Op: "rewrite", Path: l.failurePath, Err: errors.New("no failure store configured")}
	}

	l.failureMu.Lock()
	defer l.failureMu.Unlock()

	if err := l.ensureDir(l.failurePath); err != nil {
		return err
	}
	unlock, err := l.acquire(ctx, l.failurePath)
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := l.loadFailures()
	if err != nil {
		return err
	}

	merged := mergeFailures(existing, failures, resolved)
	if len(failures) == 0 && len(merged) == len(existing) {
		return nil
	}
	if err := l.writeFailures(merged); err != nil {
		return err
	}

	l.logger.Info("rewrote failures",
		zap.String("path", l.failurePath),
		zap.Int("new", len(failures)),
		zap.Int("rows", len(merged)),
		zap.Int("resolved", len(existing)+countNewKeys(existing, failures)-len(merged)),
	)
	return nil
}

type failureGroup struct {
	latest model.Failure
	count  uint
	// fresh is set once an occurrence from the current batch is folded in.
	fresh bool
}

// mergeFailures folds stored records and new occurrences into one record per
// key. Stored records contribute their retry count (at least one each), new
// occurrences one each.
//
// Stored timestamps lose the AM/PM half of the day, so they are never
// compared with new ones: any new occurrence outranks every stored row, and
// among new occurrences the latest wins (the later input on ties). A key in
// resolved is dropped unless this batch failed it again after the resolving
// success.
func mergeFailures(existing []model.FailureRecord, incoming []model.Failure, resolved map[model.Key]time.Time) []model.FailureRecord {
	groups := make(map[model.Key]*failureGroup, len(existing)+len(incoming))
	order := make([]model.Key, 0, len(existing)+len(incoming))

	group := func(key model.Key, f model.Failure) (*failureGroup, bool) {
		g, ok := groups[key]
		if !ok {
			g = &failureGroup{latest: f}
			groups[key] = g
			order = append(order, key)
		}
		return g, ok
	}

	for _, r := range existing {
		count := r.RetryCount
		if count == 0 {
			count = 1
		}
		g, seen := group(r.Key(), r.Failure)
		g.count += count
		if seen && r.Timestamp.After(g.latest.Timestamp) {
			g.latest = r.Failure
		}
	}
	for _, f := range incoming {
		g, _ := group(f.Key(), f)
		g.count++
		if !g.fresh || !f.Timestamp.Before(g.latest.Timestamp) {
			g.latest = f
		}
		g.fresh = true
	}

	out := make([]model.FailureRecord, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if at, ok := resolved[key]; ok && (!g.fresh || !g.latest.Timestamp.After(at)) {
			continue
		}
		out = append(out, model.FailureRecord{Failure: g.latest, RetryCount: g.count})
	}
	return out
}

func countNewKeys(existing []model.FailureRecord, incoming []model.Failure) int {
	seen := make(map[model.Key]bool, len(existing))
	for _, r := range existing {
		seen[r.Key()] = true
	}
	n := 0
	for _, f := range incoming {
		if !seen[f.Key()] {
			seen[f.Key()] = true
			n++
		}
	}
	return n
}

func (l *Ledger) loadFailures() ([]model.FailureRecord, error) {
	rows, err := l.readRows(l.failurePath, FailureHeader())
	if err != nil {
		return nil, err
	}
	out := make([]model.FailureRecord, 0, len(rows))
	for _, row := range rows {
		r, err := ParseFailure(row.text)
		if err != nil {
			return nil, &DataCorruptedError{Path: l.failurePath, Line: row.number, Reason: err.Error()}
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *Ledger) writeFailures(records []model.FailureRecord) error {
	var b strings.Builder
	b.WriteString(FailureHeader())
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteString(FormatFailure(r))
		b.WriteByte('\n')
	}

	dir, base := filepath.Split(l.failurePath)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(l.fs, dir, base+".*.tmp")
	if err != nil {
		return &StorageError{Op: "create", Path: l.failurePath, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			_ = l.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(b.String()); err != nil {
		return &StorageError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &StorageError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "close", Path: tmpName, Err: err}
	}
	if err := l.fs.Chmod(tmpName, l.storeMode(l.failurePath)); err != nil {
		return &StorageError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := l.fs.Rename(tmpName, l.failurePath); err != nil {
		return &StorageError{Op: "rename", Path: l.failurePath, Err: err}
	}
	committed = true
	return nil
}

// storeMode keeps the permissions of an existing store; new stores get the
// same mode as appended ones.
func (l *Ledger) storeMode(path string) fs.FileMode {
	if info, err := l.fs.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

type row struct {
	number int
	text   string
}

// readRows returns the non-blank data rows of a store after checking its
// header. A missing or empty store has no rows.
func (l *Ledger) readRows(path, header string) ([]row, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	lines := strings.Split(string(data), "\n")
	if first := strings.TrimRight(lines[0], "\r"); first != header {
		return nil, &DataCorruptedError{Path: path, Line: 1, Reason: "unexpected header " + first}
	}

	rows := make([]row, 0, len(lines)-1)
	for i, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, row{number: i + 2, text: line})
	}
	return rows, nil
}

// tail reports whether the store is missing or empty, and whether its last
// byte is something other than a newline (a torn final write).
func (l *Ledger) tail(path string) (empty bool, needsNewline bool, err error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, false, nil
		}
		return false, false, &StorageError{Op: "stat", Path: path, Err: err}
	}
	if info.Size() == 0 {
		return true, false, nil
	}

	f, err := l.fs.Open(path)
	if err != nil {
		return false, false, &StorageError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, false, &StorageError{Op: "read", Path: path, Err: err}
	}
	return false, last[0] != '\n', nil
}

func (l *Ledger) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if info, err := l.fs.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
