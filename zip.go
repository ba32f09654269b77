package unpack

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compile-time interface checks.
var (
	_ Archive   = (*ZipCatalog)(nil)
	_ io.Closer = (*ZipCatalog)(nil)
)

// ZipCatalog reads entries from a ZIP archive's central directory.
// It is safe for concurrent use; any number of entries can be open and
// streaming at once.
//
// Members compressed with Zstandard (method 93) are supported in
// addition to the standard methods.
//
// The caller must call Close when done to release resources.
type ZipCatalog struct {
	mu     sync.RWMutex
	closed bool

	zr   *zip.Reader
	file *os.File // backing file when opened via OpenZip
}

// OpenZip opens the ZIP archive at path.
func OpenZip(path string) (*ZipCatalog, error) {
	f, err := os.Open(path) //nolint:gosec // G304: opening user-named archives is the point
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	cat, err := NewZipCatalog(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	cat.file = f
	return cat, nil
}

// NewZipCatalog reads a ZIP central directory from ra. The reader must
// remain valid for the lifetime of the catalog.
func NewZipCatalog(ra io.ReaderAt, size int64) (*ZipCatalog, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	return &ZipCatalog{zr: zr}, nil
}

// Len returns the number of entries in the central directory.
func (zc *ZipCatalog) Len() int {
	return len(zc.zr.File)
}

// Entry returns the entry at index i.
func (zc *ZipCatalog) Entry(i int) (Entry, error) {
	zc.mu.RLock()
	defer zc.mu.RUnlock()

	if zc.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(zc.zr.File) {
		return nil, fmt.Errorf("%w: entry index %d out of range", ErrCatalog, i)
	}
	return &zipEntry{cat: zc, f: zc.zr.File[i]}, nil
}

// Close releases the backing file. After Close, entry lookups and opens
// return ErrClosed.
func (zc *ZipCatalog) Close() error {
	zc.mu.Lock()
	defer zc.mu.Unlock()

	if zc.closed {
		return nil
	}
	zc.closed = true

	if zc.file != nil {
		return zc.file.Close()
	}
	return nil
}

// zipEntry adapts a zip.File to the Entry interface.
type zipEntry struct {
	cat *ZipCatalog
	f   *zip.File
}

func (e *zipEntry) Name() string { return e.f.Name }

func (e *zipEntry) IsDir() bool { return e.f.FileInfo().IsDir() }

func (e *zipEntry) Size() int64 {
	// Declared size from untrusted metadata; clamp rather than overflow.
	if e.f.UncompressedSize64 > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(e.f.UncompressedSize64)
}

func (e *zipEntry) Mode() fs.FileMode { return e.f.Mode() }

func (e *zipEntry) Open() (io.ReadCloser, error) {
	e.cat.mu.RLock()
	defer e.cat.mu.RUnlock()

	if e.cat.closed {
		return nil, ErrClosed
	}
	if e.IsDir() {
		return nil, fmt.Errorf("%s: %w", e.f.Name, ErrIsDir)
	}

	rc, err := e.f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %s: %w: %v", e.f.Name, ErrCatalog, err)
	}
	return rc, nil
}
