package unpack

import (
	"context"

	"github.com/meigma/unpack/internal/archive"
)

// Extract writes every entry of the catalog beneath destDir.
//
// Entry names are sanitized before any filesystem operation, so hostile
// names ("../../../etc/passwd", absolute paths, drive prefixes) always
// land inside destDir. Missing directories, including destDir itself,
// are created as needed.
//
// Entries are extracted concurrently. A failing entry does not stop the
// others; the returned error joins one EntryError per failed entry.
// Canceling ctx stops admission of new entries while in-flight entries
// run to completion.
func (e *Extractor) Extract(ctx context.Context, cat Catalog, destDir string, opts ...ExtractOption) error {
	cfg := &extractConfig{limits: e.limits}
	for _, opt := range opts {
		opt(cfg)
	}

	aopts := archive.Options{
		Concurrency: e.concurrency,
		Limits:      cfg.limits,
		Logger:      e.logger,
	}
	if cfg.progress != nil {
		fn := cfg.progress
		aopts.OnProgress = func(done, total int, bytes int64) {
			fn(ProgressEvent{
				EntriesCompleted: done,
				EntriesTotal:     total,
				BytesWritten:     bytes,
			})
		}
	}

	return archive.Extract(ctx, cat, destDir, aopts)
}
