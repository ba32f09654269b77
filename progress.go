package unpack

// ProgressEvent represents a progress update during extraction.
type ProgressEvent struct {
	// EntriesCompleted is the number of entries fully processed so far,
	// including failed ones.
	EntriesCompleted int
	// EntriesTotal is the number of entries in the catalog.
	EntriesTotal int
	// BytesWritten is the cumulative bytes written so far.
	BytesWritten int64
}

// ProgressCallback is called during extraction to report progress.
// It may be invoked concurrently from multiple workers and should be
// efficient as it is called frequently.
type ProgressCallback func(event ProgressEvent)
