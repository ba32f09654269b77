package unpack

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compile-time interface checks.
var (
	_ Archive   = (*TarCatalog)(nil)
	_ io.Closer = (*TarCatalog)(nil)
)

// TarCatalog indexes a tar archive so entries can be streamed
// concurrently. A single pass over the stream records each entry's
// metadata and content offset; entries are then served through
// independent section readers.
//
// Hard links, symlinks and other special entries have no place in the
// catalog model and are skipped at index time.
//
// The caller must call Close when done to release resources.
type TarCatalog struct {
	mu     sync.RWMutex
	closed bool

	ra    io.ReaderAt
	index []tarIndexEntry

	file    *os.File // backing file to close, nil when constructed from a reader
	spilled bool     // file is a temp decompression spill to remove on Close
}

// tarIndexEntry records one entry's metadata and content location.
type tarIndexEntry struct {
	name   string
	size   int64
	mode   fs.FileMode
	dir    bool
	offset int64 // content start in the uncompressed stream
}

// OpenTar opens the tar archive at path. Compression is detected from
// magic bytes: gzip, zstd and lz4 are supported. Compressed archives are
// decompressed to a temporary spill file so entries can be read
// concurrently; plain tar is indexed in place.
func OpenTar(path string) (*TarCatalog, error) {
	f, err := os.Open(path) //nolint:gosec // G304: opening user-named archives is the point
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	magic := make([]byte, 4)
	n, err := io.ReadFull(f, magic)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek archive: %w", err)
	}

	decompress := detectCompression(magic[:n])
	if decompress == nil {
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return nil, fmt.Errorf("stat archive: %w", statErr)
		}
		cat, catErr := NewTarCatalog(f, info.Size())
		if catErr != nil {
			f.Close()
			return nil, catErr
		}
		cat.file = f
		return cat, nil
	}

	spill, err := spillDecompressed(f, decompress)
	f.Close()
	if err != nil {
		return nil, err
	}

	info, err := spill.Stat()
	if err != nil {
		discardSpill(spill)
		return nil, fmt.Errorf("stat spill file: %w", err)
	}

	cat, err := NewTarCatalog(spill, info.Size())
	if err != nil {
		discardSpill(spill)
		return nil, err
	}
	cat.file = spill
	cat.spilled = true
	return cat, nil
}

// NewTarCatalog indexes an uncompressed tar stream read from ra. The
// reader must remain valid for the lifetime of the catalog.
func NewTarCatalog(ra io.ReaderAt, size int64) (*TarCatalog, error) {
	index, err := indexTar(io.NewSectionReader(ra, 0, size))
	if err != nil {
		return nil, err
	}

	// Only the final entry can be cut short by truncation; earlier
	// entries had their content skipped past during indexing. Serving it
	// would silently yield fewer bytes than its header declares. The
	// declared size is untrusted and may be huge, so it is compared
	// against the bytes remaining past the offset; summing it with the
	// offset can overflow.
	if n := len(index); n > 0 {
		last := index[n-1]
		if !last.dir && last.size > size-last.offset {
			index = index[:n-1]
		}
	}

	return &TarCatalog{ra: ra, index: index}, nil
}

// Len returns the number of indexed entries.
func (tc *TarCatalog) Len() int {
	return len(tc.index)
}

// Entry returns the entry at index i.
func (tc *TarCatalog) Entry(i int) (Entry, error) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if tc.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(tc.index) {
		return nil, fmt.Errorf("%w: entry index %d out of range", ErrCatalog, i)
	}
	return &tarEntry{cat: tc, idx: tc.index[i]}, nil
}

// Close releases the backing file and removes the decompression spill
// file if one was created. After Close, entry lookups and opens return
// ErrClosed.
func (tc *TarCatalog) Close() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.closed {
		return nil
	}
	tc.closed = true

	if tc.file == nil {
		return nil
	}

	path := tc.file.Name()
	closeErr := tc.file.Close()
	if tc.spilled {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Join(closeErr, err)
		}
	}
	return closeErr
}

// tarEntry serves one indexed entry through a section reader.
type tarEntry struct {
	cat *TarCatalog
	idx tarIndexEntry
}

func (e *tarEntry) Name() string      { return e.idx.name }
func (e *tarEntry) IsDir() bool       { return e.idx.dir }
func (e *tarEntry) Size() int64       { return e.idx.size }
func (e *tarEntry) Mode() fs.FileMode { return e.idx.mode }

func (e *tarEntry) Open() (io.ReadCloser, error) {
	e.cat.mu.RLock()
	defer e.cat.mu.RUnlock()

	if e.cat.closed {
		return nil, ErrClosed
	}
	if e.idx.dir {
		return nil, fmt.Errorf("%s: %w", e.idx.name, ErrIsDir)
	}
	return io.NopCloser(io.NewSectionReader(e.cat.ra, e.idx.offset, e.idx.size)), nil
}

// indexTar walks the tar stream once, recording metadata and content
// offsets. After tar.Reader.Next returns, the counting reader sits
// exactly at the start of the entry's content, which is the offset a
// section reader needs.
func indexTar(r io.Reader) ([]tarIndexEntry, error) {
	cr := &countingReader{r: r}
	tr := tar.NewReader(cr)

	var index []tarIndexEntry
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return index, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			if len(index) > 0 {
				// A truncated trailer after real entries is tolerated; the
				// entries read so far are all there is.
				return index, nil
			}
			// Nothing parsed at all means this was never a tar stream.
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			if isSparse(hdr) {
				// Sparse content is hole-encoded in the stream and cannot
				// be served through a section reader.
				continue
			}
			index = append(index, tarIndexEntry{
				name:   hdr.Name,
				size:   hdr.Size,
				mode:   hdr.FileInfo().Mode(),
				offset: cr.n,
			})
		case tar.TypeDir:
			index = append(index, tarIndexEntry{
				name: hdr.Name,
				mode: hdr.FileInfo().Mode(),
				dir:  true,
			})
		}
	}
}

// isSparse reports whether a regular-file header describes GNU or PAX
// sparse content.
func isSparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for k := range hdr.PAXRecords {
		if strings.HasPrefix(k, "GNU.sparse.") {
			return true
		}
	}
	return false
}

// countingReader tracks how many bytes have been consumed from r.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// decompressFunc wraps a compressed stream in its decompressor.
type decompressFunc func(io.Reader) (io.ReadCloser, error)

// detectCompression identifies the compression wrapping a tar stream
// from its leading magic bytes. Nil means the stream is not compressed.
func detectCompression(magic []byte) decompressFunc {
	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		return func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		}
	case len(magic) >= 4 && magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd:
		return func(r io.Reader) (io.ReadCloser, error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr.IOReadCloser(), nil
		}
	case len(magic) >= 4 && magic[0] == 0x04 && magic[1] == 0x22 && magic[2] == 0x4d && magic[3] == 0x18:
		return func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		}
	}
	return nil
}

// spillDecompressed streams the decompressed archive to a temp file for
// random access.
func spillDecompressed(src io.Reader, decompress decompressFunc) (*os.File, error) {
	dr, err := decompress(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer dr.Close()

	spill, err := os.CreateTemp("", "unpack-tar-*")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}

	if _, err := io.Copy(spill, dr); err != nil {
		discardSpill(spill)
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return spill, nil
}

// discardSpill closes and removes a spill file, ignoring cleanup errors.
func discardSpill(f *os.File) {
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path)
}
