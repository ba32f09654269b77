// Package archive implements the concurrent extraction pipeline shared by
// every catalog format. Entries are fanned out to a bounded worker pool;
// each worker sanitizes the entry path, resolves it under the destination
// root, and streams the entry contents to disk. Failures are isolated per
// entry and reported as a single aggregate error.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/unpack/core"
	"github.com/meigma/unpack/internal/safepath"
)

const osWindows = "windows"

// ProgressFunc receives extraction progress updates. Implementations must be
// safe for concurrent use; workers invoke the callback directly.
type ProgressFunc func(entriesDone, entriesTotal int, bytesWritten int64)

// Options configures a single extraction run.
type Options struct {
	// Concurrency bounds the number of entries extracted in parallel.
	// Values below 1 are treated as 1.
	Concurrency int

	// Limits caps resource usage during extraction. Zero values disable
	// the corresponding limit.
	Limits core.ExtractLimits

	// Logger receives debug-level extraction events. Nil discards them.
	Logger *slog.Logger

	// OnProgress, when set, is invoked as entries and bytes complete.
	OnProgress ProgressFunc
}

// Extract writes every entry of cat beneath destDir.
//
// Entry paths are sanitized before use, so hostile names cannot place files
// outside destDir. Entries are processed concurrently; one entry failing
// does not stop the others. The returned error aggregates all per-entry
// failures, each wrapped in a core.EntryError.
func Extract(ctx context.Context, cat core.Catalog, destDir string, opts Options) error {
	total := cat.Len()
	if total == 0 {
		return nil
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	st := &state{
		destDir:  filepath.Clean(destDir),
		limits:   opts.Limits,
		total:    total,
		progress: opts.OnProgress,
	}

	logger.Debug("extraction started", "entries", total, "dest", st.destDir, "concurrency", concurrency)

	errs := make([]error, total)

	eg, taskCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	var skipped int
	for i := range total {
		if ctx.Err() != nil {
			// In-flight entries run to completion; the rest are never begun.
			skipped = total - i
			break
		}
		eg.Go(func() error {
			name, err := extractEntry(taskCtx, cat, i, st)
			if err != nil {
				errs[i] = &core.EntryError{Index: i, Name: name, Err: err}
				logger.Debug("entry failed", "index", i, "name", name, "error", err)
			}
			st.entryDone()
			// Sibling tasks keep running whatever happened here.
			return nil
		})
	}
	_ = eg.Wait() // tasks never return errors; failures live in errs

	if skipped > 0 {
		errs = append(errs, fmt.Errorf("%d of %d entries not extracted: %w", skipped, total, context.Cause(ctx)))
	}

	logger.Debug("extraction finished", "entries", total, "bytes", st.bytes.Load())

	return errors.Join(errs...)
}

// extractEntry processes a single catalog entry and returns the entry name
// alongside any failure.
func extractEntry(ctx context.Context, cat core.Catalog, index int, st *state) (string, error) {
	entry, err := cat.Entry(index)
	if err != nil {
		return "", catalogErr(err)
	}
	name := entry.Name()

	rel := safepath.Sanitize(name)

	if entry.IsDir() {
		if rel == "" {
			// The destination root itself; nothing to create.
			return name, nil
		}
		target, err := st.resolve(rel)
		if err != nil {
			return name, err
		}
		return name, st.ensureDir(target)
	}

	if rel == "" {
		// A file whose entire name sanitized away still has content that
		// must land somewhere deterministic.
		rel = fmt.Sprintf("entry-%d", index)
	}
	target, err := st.resolve(rel)
	if err != nil {
		return name, err
	}
	return name, st.writeFile(ctx, entry, target)
}

// state carries the shared bookkeeping for one extraction run.
type state struct {
	destDir  string
	limits   core.ExtractLimits
	total    int
	progress ProgressFunc

	files atomic.Int64
	bytes atomic.Int64
	done  atomic.Int64

	dirs      sync.Map // directory path -> struct{}
	fileLocks sync.Map // file path -> *sync.Mutex
}

// resolve joins rel beneath the destination root and verifies containment.
// Sanitized paths cannot escape, so a failure here indicates a bug rather
// than hostile input; it is still checked rather than assumed.
func (st *state) resolve(rel string) (string, error) {
	target := filepath.Join(st.destDir, filepath.FromSlash(rel))
	if !isWithinOrEqual(target, st.destDir) {
		return "", fmt.Errorf("%w: %q resolves outside destination", core.ErrPathEscape, rel)
	}
	return target, nil
}

// ensureDir creates dir and any missing parents. Concurrent calls for the
// same directory are collapsed through the cache; a directory that already
// exists is success.
func (st *state) ensureDir(dir string) error {
	if _, ok := st.dirs.Load(dir); ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	st.dirs.Store(dir, struct{}{})
	return nil
}

// writeFile streams entry contents to target, creating parent directories
// as needed. Concurrent writers for the same target are serialized so that
// the surviving file is one writer's complete output.
func (st *state) writeFile(ctx context.Context, entry core.Entry, target string) error {
	if err := st.checkFileLimits(entry); err != nil {
		return err
	}

	if dir := parentDir(target); dir != "" {
		if err := st.ensureDir(dir); err != nil {
			return err
		}
	}

	src, err := entry.Open()
	if err != nil {
		return catalogErr(err)
	}
	defer src.Close()

	unlock := st.lockTarget(target)
	defer unlock()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	bufp := bufPool.Get().(*[]byte)
	mw := &meteredWriter{dst: dst, st: st}
	copyErr := copyWithContext(ctx, mw, src, *bufp)
	bufPool.Put(bufp)

	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("close file: %w", closeErr)
	}
	return nil
}

// checkFileLimits enforces the file-count limit and rejects entries whose
// declared size already exceeds the per-file cap. Actual bytes are enforced
// by meteredWriter since declared sizes are untrusted.
func (st *state) checkFileLimits(entry core.Entry) error {
	if st.limits.MaxFiles > 0 {
		if n := st.files.Add(1); n > int64(st.limits.MaxFiles) {
			return fmt.Errorf("%w: file count exceeds %d", core.ErrExtractLimits, st.limits.MaxFiles)
		}
	}
	if st.limits.MaxFileSize > 0 && entry.Size() > st.limits.MaxFileSize {
		return fmt.Errorf("%w: file size %d exceeds %d", core.ErrExtractLimits, entry.Size(), st.limits.MaxFileSize)
	}
	return nil
}

// lockTarget serializes writers that resolved to the same path and returns
// the unlock function.
func (st *state) lockTarget(target string) func() {
	m, _ := st.fileLocks.LoadOrStore(target, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (st *state) entryDone() {
	done := st.done.Add(1)
	if st.progress != nil {
		st.progress(int(done), st.total, st.bytes.Load())
	}
}

func (st *state) notifyProgress() {
	if st.progress != nil {
		st.progress(int(st.done.Load()), st.total, st.bytes.Load())
	}
}

// meteredWriter counts bytes against the per-file and total limits before
// they reach the destination. Reservations are not released on failure,
// which keeps the accounting conservative under concurrency.
type meteredWriter struct {
	dst     io.Writer
	st      *state
	written int64
}

func (w *meteredWriter) Write(p []byte) (int, error) {
	n := int64(len(p))

	if limit := w.st.limits.MaxFileSize; limit > 0 {
		w.written += n
		if w.written > limit {
			return 0, fmt.Errorf("%w: file size exceeds %d", core.ErrExtractLimits, limit)
		}
	}
	if limit := w.st.limits.MaxTotalSize; limit > 0 {
		if total := w.st.bytes.Add(n); total > limit {
			return 0, fmt.Errorf("%w: total size exceeds %d", core.ErrExtractLimits, limit)
		}
	} else {
		w.st.bytes.Add(n)
	}

	m, err := w.dst.Write(p)
	if m > 0 {
		w.st.notifyProgress()
	}
	return m, err
}

// catalogErr wraps catalog and stream failures so callers can test for
// core.ErrCatalog. Errors already carrying a sentinel pass through.
func catalogErr(err error) error {
	if errors.Is(err, core.ErrCatalog) || errors.Is(err, core.ErrClosed) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrCatalog, err)
}

// isWithinOrEqual reports whether path is base or a descendant of base.
func isWithinOrEqual(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

// parentDir returns the directory containing path, or "" when path has no
// parent worth creating.
func parentDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	if runtime.GOOS == osWindows && dir == filepath.VolumeName(path)+string(filepath.Separator) {
		return ""
	}
	return dir
}
