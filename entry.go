package unpack

import "github.com/meigma/unpack/core"

// Catalog provides read-only access to an archive's logical contents.
// Re-exported from core package.
type Catalog = core.Catalog

// Entry describes a single archive member.
// Re-exported from core package.
type Entry = core.Entry

// EntryError records the failure of a single entry's extraction.
// Re-exported from core package.
type EntryError = core.EntryError
