package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveBytes(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "archive.tar", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	t.Parallel()

	payload := []byte("archive payload bytes")
	srv := serveBytes(t, payload)

	dst := filepath.Join(t.TempDir(), "out.tar")
	path, err := Download(context.Background(), srv.URL+"/archive.tar", dst, Options{})
	require.NoError(t, err)

	content, err := os.ReadFile(path) //nolint:gosec // G304: path under t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, payload, content)
}

func TestDownload_IntoDirectory(t *testing.T) {
	t.Parallel()

	payload := []byte("named by the server")
	srv := serveBytes(t, payload)

	dir := t.TempDir()
	path, err := Download(context.Background(), srv.URL+"/release.tar", dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	content, err := os.ReadFile(path) //nolint:gosec // G304: path under t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, payload, content)
}

func TestDownload_ChecksumMatch(t *testing.T) {
	t.Parallel()

	payload := []byte("verified payload")
	srv := serveBytes(t, payload)

	dst := filepath.Join(t.TempDir(), "out.tar")
	path, err := Download(context.Background(), srv.URL+"/archive.tar", dst, Options{
		Checksum: digest.FromBytes(payload).String(),
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path) //nolint:gosec // G304: path under t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, payload, content)
}

func TestDownload_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	srv := serveBytes(t, []byte("actual payload"))

	dst := filepath.Join(t.TempDir(), "out.tar")
	_, err := Download(context.Background(), srv.URL+"/archive.tar", dst, Options{
		Checksum: digest.FromBytes([]byte("expected something else")).String(),
	})
	require.Error(t, err)

	// The mismatched download must not be left behind.
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownload_BadChecksumString(t *testing.T) {
	t.Parallel()

	_, err := Download(context.Background(), "http://localhost/archive.tar",
		t.TempDir(), Options{Checksum: "not-a-digest"})
	assert.Error(t, err)
}

func TestDownload_Progress(t *testing.T) {
	t.Parallel()

	payload := []byte("some bytes to count")
	srv := serveBytes(t, payload)

	var final atomic.Int64
	dst := filepath.Join(t.TempDir(), "out.tar")
	_, err := Download(context.Background(), srv.URL+"/archive.tar", dst, Options{
		PollInterval: time.Millisecond,
		OnProgress: func(complete, _ int64) {
			final.Store(complete)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), final.Load())
}

func TestDownload_BadURL(t *testing.T) {
	t.Parallel()

	_, err := Download(context.Background(), "://not-a-url", t.TempDir(), Options{})
	assert.Error(t, err)
}
