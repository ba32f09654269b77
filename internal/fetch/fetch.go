// Package fetch downloads remote archives to local files so they can be
// opened for extraction. Downloads resume where a previous attempt left
// off and can be verified against an expected digest.
package fetch

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/opencontainers/go-digest"
)

const defaultPollInterval = 200 * time.Millisecond

// Options configures a download.
type Options struct {
	// Checksum is an optional expected digest, e.g. "sha256:<hex>".
	// On mismatch the downloaded file is deleted and an error returned.
	Checksum string

	// OnProgress, when set, is polled with the transfer state while the
	// download runs and once more on completion.
	OnProgress func(bytesComplete, totalBytes int64)

	// PollInterval controls progress polling. Zero means 200ms.
	PollInterval time.Duration

	// Logger receives debug-level download events. Nil discards them.
	Logger *slog.Logger
}

// Download fetches url into dst, which may be a target file path or an
// existing directory, and returns the path of the downloaded file.
func Download(ctx context.Context, url, dst string, opts Options) (string, error) {
	req, err := grab.NewRequest(dst, url)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req = req.WithContext(ctx)

	if opts.Checksum != "" {
		if err := applyChecksum(req, opts.Checksum); err != nil {
			return "", err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := grab.NewClient()
	client.UserAgent = "unpack"

	resp := client.Do(req)
	logger.Debug("download started", "url", req.URL().Redacted(), "dest", dst)

	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if opts.OnProgress != nil {
				opts.OnProgress(resp.BytesComplete(), resp.Size())
			}
		case <-resp.Done:
			if err := resp.Err(); err != nil {
				return "", fmt.Errorf("download %s: %w", req.URL().Redacted(), err)
			}
			if opts.OnProgress != nil {
				opts.OnProgress(resp.BytesComplete(), resp.Size())
			}
			logger.Debug("download complete", "file", resp.Filename, "bytes", resp.BytesComplete())
			return resp.Filename, nil
		}
	}
}

// applyChecksum parses an OCI-style digest string and arms checksum
// verification on the request, deleting the file on mismatch.
func applyChecksum(req *grab.Request, checksum string) error {
	d, err := digest.Parse(checksum)
	if err != nil {
		return fmt.Errorf("parse checksum %q: %w", checksum, err)
	}
	if !d.Algorithm().Available() {
		return fmt.Errorf("checksum algorithm %q not available", d.Algorithm())
	}
	sum, err := hex.DecodeString(d.Encoded())
	if err != nil {
		return fmt.Errorf("decode checksum %q: %w", checksum, err)
	}
	req.SetChecksum(d.Algorithm().Hash(), sum, true)
	return nil
}
