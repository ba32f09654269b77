package unpack

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Archive is a catalog backed by an open resource.
type Archive interface {
	Catalog
	io.Closer
}

// Open opens the archive at path, detecting its format from content
// rather than its file name.
//
// ZIP archives are recognized by their signature; anything else is
// treated as tar, optionally gzip, zstd or lz4 compressed. The caller
// must call Close on the returned archive when done.
func Open(path string) (Archive, error) {
	f, err := os.Open(path) //nolint:gosec // G304: opening user-named archives is the point
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	magic := make([]byte, 4)
	n, err := io.ReadFull(f, magic)
	closeErr := f.Close()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close archive: %w", closeErr)
	}

	if isZipMagic(magic[:n]) {
		return OpenZip(path)
	}
	return OpenTar(path)
}

// isZipMagic matches the local-file-header signature PK\x03\x04 and the
// empty-archive signature PK\x05\x06.
func isZipMagic(magic []byte) bool {
	if len(magic) < 4 || magic[0] != 'P' || magic[1] != 'K' {
		return false
	}
	return (magic[2] == 0x03 && magic[3] == 0x04) || (magic[2] == 0x05 && magic[3] == 0x06)
}
