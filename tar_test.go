package unpack

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTar writes the given members into an in-memory tar archive.
func buildTar(t *testing.T, files []archiveFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		if strings.HasSuffix(f.name, "/") {
			require.NoError(t, tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     f.name,
				Mode:     0o755,
			}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: f.name,
			Mode: 0o644,
			Size: int64(len(f.content)),
		}))
		_, err := tw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func tarCatalog(t *testing.T, data []byte) *TarCatalog {
	t.Helper()

	cat, err := NewTarCatalog(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return cat
}

// readEntry drains one entry's content through its section reader.
func readEntry(t *testing.T, cat *TarCatalog, i int) string {
	t.Helper()

	entry, err := cat.Entry(i)
	require.NoError(t, err)

	rc, err := entry.Open()
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(content)
}

func TestTarCatalog_Entries(t *testing.T) {
	t.Parallel()

	data := buildTar(t, []archiveFile{
		{name: "dir/"},
		{name: "dir/first.txt", content: "first content"},
		{name: "second.txt", content: "second"},
	})

	cat := tarCatalog(t, data)
	require.Equal(t, 3, cat.Len())

	entry, err := cat.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "dir/", entry.Name())
	assert.True(t, entry.IsDir())

	entry, err = cat.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, "dir/first.txt", entry.Name())
	assert.Equal(t, int64(13), entry.Size())

	assert.Equal(t, "first content", readEntry(t, cat, 1))
	assert.Equal(t, "second", readEntry(t, cat, 2))
}

func TestTarCatalog_LongNames(t *testing.T) {
	t.Parallel()

	// A path too long for the USTAR prefix field forces a PAX extension
	// header, which occupies extra blocks before the content. The recorded
	// offsets must still point at the content itself.
	long := strings.Repeat("directory/", 20) + "file.txt"
	data := buildTar(t, []archiveFile{
		{name: long, content: "content behind a long name"},
		{name: "short.txt", content: "short"},
	})

	cat := tarCatalog(t, data)
	require.Equal(t, 2, cat.Len())

	entry, err := cat.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, long, entry.Name())
	assert.Equal(t, "content behind a long name", readEntry(t, cat, 0))
	assert.Equal(t, "short", readEntry(t, cat, 1))
}

func TestTarCatalog_SkipsSpecialEntries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "original.txt",
		Mode: 0o644,
		Size: 7,
	}))
	_, err := tw.Write([]byte("content"))
	require.NoError(t, err)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     "link.txt",
		Linkname: "original.txt",
		Mode:     0o777,
	}))
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeLink,
		Name:     "hardlink.txt",
		Linkname: "original.txt",
		Mode:     0o644,
	}))
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeFifo,
		Name:     "pipe",
		Mode:     0o644,
	}))
	require.NoError(t, tw.Close())

	cat := tarCatalog(t, buf.Bytes())
	require.Equal(t, 1, cat.Len())

	entry, err := cat.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "original.txt", entry.Name())
	assert.Equal(t, "content", readEntry(t, cat, 0))
}

func TestTarCatalog_TruncatedTrailer(t *testing.T) {
	t.Parallel()

	data := buildTar(t, []archiveFile{
		{name: "a.txt", content: "alpha"},
		{name: "b.txt", content: "beta"},
	})

	// Drop the two zero trailer blocks; the entries must still be served.
	truncated := data[:len(data)-1024]

	cat := tarCatalog(t, truncated)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, "alpha", readEntry(t, cat, 0))
	assert.Equal(t, "beta", readEntry(t, cat, 1))
}

func TestTarCatalog_TruncatedContent(t *testing.T) {
	t.Parallel()

	data := buildTar(t, []archiveFile{
		{name: "a.txt", content: "alpha"},
		{name: "b.txt", content: strings.Repeat("x", 600)},
	})

	// Cut into the final entry's content. The entry cannot be served in
	// full, so it must not appear in the catalog.
	truncated := data[:2000]

	cat := tarCatalog(t, truncated)
	require.Equal(t, 1, cat.Len())
	assert.Equal(t, "alpha", readEntry(t, cat, 0))
}

func TestTarCatalog_HugeDeclaredSize(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "a.txt",
		Mode: 0o644,
		Size: 5,
	}))
	_, err := tw.Write([]byte("alpha"))
	require.NoError(t, err)

	// A size too large for the octal field rides in a PAX record. The
	// writer is abandoned without Close, so the stream ends right after
	// the header blocks: MaxInt64 bytes declared, none present.
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "huge.bin",
		Mode: 0o644,
		Size: math.MaxInt64,
	}))

	cat := tarCatalog(t, buf.Bytes())
	require.Equal(t, 1, cat.Len())
	assert.Equal(t, "alpha", readEntry(t, cat, 0))
}

func TestNewTarCatalog_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "garbage spanning header blocks",
			data: []byte(strings.Repeat("definitely not a tar archive....", 32)),
		},
		{
			name: "garbage shorter than a header block",
			data: []byte("this is not an archive"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewTarCatalog(bytes.NewReader(tt.data), int64(len(tt.data)))
			assert.ErrorIs(t, err, ErrInvalidArchive)
		})
	}
}

func TestOpenTar_Compression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ext      string
		compress func(t *testing.T, data []byte) []byte
	}{
		{
			name: "plain",
			ext:  ".tar",
			compress: func(_ *testing.T, data []byte) []byte {
				return data
			},
		},
		{
			name: "gzip",
			ext:  ".tar.gz",
			compress: func(t *testing.T, data []byte) []byte {
				var buf bytes.Buffer
				gw := gzip.NewWriter(&buf)
				_, err := gw.Write(data)
				require.NoError(t, err)
				require.NoError(t, gw.Close())
				return buf.Bytes()
			},
		},
		{
			name: "zstd",
			ext:  ".tar.zst",
			compress: func(t *testing.T, data []byte) []byte {
				var buf bytes.Buffer
				zw, err := zstd.NewWriter(&buf)
				require.NoError(t, err)
				_, err = zw.Write(data)
				require.NoError(t, err)
				require.NoError(t, zw.Close())
				return buf.Bytes()
			},
		},
		{
			name: "lz4",
			ext:  ".tar.lz4",
			compress: func(t *testing.T, data []byte) []byte {
				var buf bytes.Buffer
				lw := lz4.NewWriter(&buf)
				_, err := lw.Write(data)
				require.NoError(t, err)
				require.NoError(t, lw.Close())
				return buf.Bytes()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := buildTar(t, []archiveFile{
				{name: "dir/"},
				{name: "dir/file.txt", content: "compressed tar content"},
			})

			path := filepath.Join(t.TempDir(), "test"+tt.ext)
			require.NoError(t, os.WriteFile(path, tt.compress(t, data), 0o644))

			cat, err := OpenTar(path)
			require.NoError(t, err)
			defer cat.Close()

			require.Equal(t, 2, cat.Len())
			assert.Equal(t, "compressed tar content", readEntry(t, cat, 1))
		})
	}
}

func TestOpenTar_Missing(t *testing.T) {
	t.Parallel()

	_, err := OpenTar(filepath.Join(t.TempDir(), "absent.tar"))
	assert.Error(t, err)
}

func TestTarCatalog_Close(t *testing.T) {
	t.Parallel()

	cat := tarCatalog(t, buildTar(t, []archiveFile{{name: "a.txt", content: "a"}}))

	entry, err := cat.Entry(0)
	require.NoError(t, err)

	require.NoError(t, cat.Close())
	require.NoError(t, cat.Close(), "double close should be a no-op")

	_, err = cat.Entry(0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = entry.Open()
	assert.ErrorIs(t, err, ErrClosed)
}

func Test_detectCompression(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, detectCompression([]byte{0x1f, 0x8b, 0x08, 0x00}), "gzip")
	assert.NotNil(t, detectCompression([]byte{0x28, 0xb5, 0x2f, 0xfd}), "zstd")
	assert.NotNil(t, detectCompression([]byte{0x04, 0x22, 0x4d, 0x18}), "lz4")
	assert.Nil(t, detectCompression([]byte("usta")), "tar block")
	assert.Nil(t, detectCompression(nil), "empty")
}
