package unpack

import "github.com/meigma/unpack/core"

// Sentinel errors for common failure conditions.
// Re-exported from core package.
var (
	// ErrCatalog indicates the archive catalog could not be accessed.
	ErrCatalog = core.ErrCatalog

	// ErrNotFound indicates the requested entry does not exist in the catalog.
	ErrNotFound = core.ErrNotFound

	// ErrExtractLimits indicates extraction safety limits were exceeded.
	ErrExtractLimits = core.ErrExtractLimits

	// ErrInvalidArchive indicates the input is not a recognized archive.
	ErrInvalidArchive = core.ErrInvalidArchive

	// ErrClosed indicates an operation was attempted on a closed catalog.
	ErrClosed = core.ErrClosed

	// ErrPathEscape indicates a resolved target escaped the output root.
	ErrPathEscape = core.ErrPathEscape

	// ErrIsDir indicates a content read was attempted on a directory entry.
	ErrIsDir = core.ErrIsDir
)
