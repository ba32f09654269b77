package unpack

import (
	"fmt"
	"log/slog"

	"github.com/meigma/unpack/core"
)

// Option configures an Extractor.
type Option func(*Extractor) error

// ExtractOption configures a single Extract operation.
type ExtractOption func(*extractConfig)

// ExtractLimits defines safety limits for extraction.
// Re-exported from core package.
type ExtractLimits = core.ExtractLimits

// extractConfig holds configuration for Extract operations.
type extractConfig struct {
	limits   ExtractLimits
	progress ProgressCallback
}

// WithConcurrency sets how many entries are extracted in parallel.
// The default is runtime.GOMAXPROCS(0).
func WithConcurrency(n int) Option {
	return func(e *Extractor) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1, got %d", n)
		}
		e.concurrency = n
		return nil
	}
}

// WithLimits sets default safety limits applied to every Extract call.
// Per-call WithExtractLimits replaces them. The zero value means no
// limits.
func WithLimits(limits ExtractLimits) Option {
	return func(e *Extractor) error {
		e.limits = limits
		return nil
	}
}

// WithLogger sets a logger for the extractor. By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		e.logger = logger
		return nil
	}
}

// WithExtractLimits sets safety limits for this extraction, replacing the
// extractor's defaults.
func WithExtractLimits(limits ExtractLimits) ExtractOption {
	return func(c *extractConfig) {
		c.limits = limits
	}
}

// WithProgress sets a callback receiving progress updates during this
// extraction. The callback may be invoked concurrently from multiple
// workers.
func WithProgress(fn ProgressCallback) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}
