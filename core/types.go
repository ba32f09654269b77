// Package core provides the shared types and interfaces for unpack.
//
// This package exists to break import cycles between the root unpack
// package and internal implementation packages. The unpack package
// re-exports all public types from this package, so external users should
// import unpack directly, not unpack/core.
package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Sentinel errors for common failure conditions.
var (
	// ErrCatalog indicates the entry catalog could not yield an entry's
	// metadata or content stream.
	ErrCatalog = errors.New("unpack: catalog access failed")

	// ErrNotFound indicates the requested entry does not exist in the catalog.
	ErrNotFound = errors.New("unpack: entry not found")

	// ErrExtractLimits indicates extraction safety limits were exceeded.
	ErrExtractLimits = errors.New("unpack: extraction limits exceeded")

	// ErrInvalidArchive indicates the input is not a recognized archive.
	ErrInvalidArchive = errors.New("unpack: invalid archive")

	// ErrClosed indicates an operation was attempted on a closed catalog.
	ErrClosed = errors.New("unpack: catalog closed")

	// ErrPathEscape indicates a resolved target path fell outside the
	// output root. The sanitizer makes this unreachable for any input;
	// it exists as a final containment check.
	ErrPathEscape = errors.New("unpack: target path escapes output root")

	// ErrIsDir indicates Open was called on a directory entry.
	ErrIsDir = errors.New("unpack: entry is a directory")
)

// Catalog provides read-only access to an archive's logical contents.
//
// A catalog is an ordered collection of entries. Entry order carries no
// hierarchy guarantee: a file entry may precede the directory entry that
// is its ancestor, and ancestor directories may be absent entirely.
type Catalog interface {
	// Len returns the number of entries in the catalog.
	Len() int

	// Entry returns the entry at index i.
	// Returns an error wrapping ErrCatalog if the entry's metadata cannot
	// be produced, or wrapping ErrClosed after the catalog is closed.
	Entry(i int) (Entry, error)
}

// Entry describes a single archive member.
type Entry interface {
	// Name returns the raw entry name as recorded in the archive.
	// The name is attacker-controlled: it may be empty, absolute, contain
	// traversal sequences, backslashes, or reserved device names.
	Name() string

	// IsDir reports whether the entry represents a directory.
	IsDir() bool

	// Size returns the uncompressed size in bytes, or -1 if unknown.
	// The value comes from archive metadata and is untrusted.
	Size() int64

	// Mode returns the entry's file mode bits as recorded in the archive.
	Mode() fs.FileMode

	// Open returns the entry's content stream. The stream is single-use
	// and must be closed by the caller. Returns an error wrapping
	// ErrCatalog if the stream cannot be produced, or ErrIsDir for
	// directory entries.
	Open() (io.ReadCloser, error)
}

// ExtractLimits defines safety limits for extraction.
//
// Limits are enforced on actual bytes written, not on declared entry
// sizes, since archive metadata is untrusted. A breached limit fails the
// offending entry without aborting the rest of the extraction.
type ExtractLimits struct {
	MaxFiles     int   // Maximum number of files (0 = no limit)
	MaxTotalSize int64 // Maximum total extracted size (0 = no limit)
	MaxFileSize  int64 // Maximum single file size (0 = no limit)
}

// EntryError records the failure of a single entry's extraction.
//
// The coordinator aggregates entry errors with errors.Join after all
// entries have been attempted; use errors.As to recover individual
// failures from the aggregate.
type EntryError struct {
	// Index is the entry's position in the catalog.
	Index int
	// Name is the raw entry name as recorded in the archive.
	Name string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d (%q): %v", e.Index, e.Name, e.Err)
}

// Unwrap returns the underlying failure.
func (e *EntryError) Unwrap() error { return e.Err }
