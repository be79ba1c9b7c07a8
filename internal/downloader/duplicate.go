package downloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lvcoi/ytbatch/internal/model"
)

// DuplicatePolicy decides what happens when the output file already exists
// from an earlier run.
type DuplicatePolicy string

const (
	DuplicatePolicyOverwrite DuplicatePolicy = "overwrite"
	DuplicatePolicySkip      DuplicatePolicy = "skip"
	DuplicatePolicyRename    DuplicatePolicy = "rename"
)

// DefaultDuplicatePolicy keeps every file.
const DefaultDuplicatePolicy = DuplicatePolicyRename

func normalizeDuplicateToken(v string) string {
	s := strings.TrimSpace(strings.ToLower(v))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// ParseDuplicatePolicy parses a policy name. Empty means the default.
func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch normalizeDuplicateToken(raw) {
	case "":
		return DefaultDuplicatePolicy, nil
	case string(DuplicatePolicyOverwrite):
		return DuplicatePolicyOverwrite, nil
	case string(DuplicatePolicySkip):
		return DuplicatePolicySkip, nil
	case string(DuplicatePolicyRename):
		return DuplicatePolicyRename, nil
	default:
		return "", &model.ValidationError{Field: "on_duplicate", Value: raw, Reason: "expected overwrite, skip or rename"}
	}
}

// pathReservations hands out output paths for the fetches of one fetcher.
// Two fetches never get the same path, whatever the policy: the policy only
// applies to files left by earlier runs.
type pathReservations struct {
	mu     sync.Mutex
	policy DuplicatePolicy
	held   map[string]bool
}

func newPathReservations(policy DuplicatePolicy) *pathReservations {
	if policy == "" {
		policy = DefaultDuplicatePolicy
	}
	return &pathReservations{policy: policy, held: map[string]bool{}}
}

// claim reserves path or a renamed sibling of it. existing is set when the
// skip policy found a file from an earlier run at path; nothing is reserved
// then.
func (r *pathReservations) claim(path string) (claimed string, existing bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.held[path] {
		return r.reserveNext(path)
	}

	onDisk, err := fileExists(path)
	if err != nil {
		return "", false, err
	}
	if onDisk {
		switch r.policy {
		case DuplicatePolicySkip:
			return path, true, nil
		case DuplicatePolicyRename:
			return r.reserveNext(path)
		}
	}
	r.held[path] = true
	return path, false, nil
}

// release frees a reservation whose fetch produced no file.
func (r *pathReservations) release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, path)
}

func (r *pathReservations) reserveNext(path string) (string, bool, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	for i := 1; i < 10000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", name, i, ext))
		if r.held[candidate] {
			continue
		}
		onDisk, err := fileExists(candidate)
		if err != nil {
			return "", false, err
		}
		if !onDisk {
			r.held[candidate] = true
			return candidate, false, nil
		}
	}
	return "", false, wrapCategory(CategoryFilesystem, fmt.Errorf("unable to find available filename for %s", path))
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, wrapCategory(CategoryFilesystem, err)
	}
	if info.IsDir() {
		return false, wrapCategory(CategoryFilesystem, fmt.Errorf("output path is a directory: %s", path))
	}
	return true, nil
}
