package unpack

import (
	"log/slog"
	"runtime"

	"github.com/meigma/unpack/core"
)

// Extractor extracts archive catalogs to local directories.
// An Extractor is immutable after construction and safe for concurrent
// use; a single Extractor can run many extractions at once.
type Extractor struct {
	concurrency int
	limits      core.ExtractLimits
	logger      *slog.Logger
}

// New creates a new extractor.
//
// By default extraction runs with runtime.GOMAXPROCS(0) parallel workers,
// no safety limits, and logging disabled. Use options to override.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		concurrency: runtime.GOMAXPROCS(0),
		logger:      slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}
