package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/internal/fetch"
)

var (
	getChecksum string
	getKeep     bool
)

var getCmd = &cobra.Command{
	Use:     "get <url> [directory]",
	Short:   "Download an archive and extract it",
	GroupID: "core",
	Long: `Get downloads an archive over HTTP(S) and extracts it to a directory.

Interrupted downloads resume where they left off. With --checksum the
download is verified before extraction and deleted on mismatch. The
downloaded archive itself is deleted after extraction unless --keep is
given, in which case it is stored next to the extracted files.

Examples:
  unpack get https://example.com/release.tar.gz ./release
  unpack get https://example.com/release.zip ./out --checksum sha256:9f86d0...
  unpack get https://example.com/data.zip ./data --keep`,
	Args:              cobra.RangeArgs(1, 2),
	RunE:              runGet,
	ValidArgsFunction: completeGetArgs,
}

func init() {
	getCmd.Flags().StringVar(&getChecksum, "checksum", "", "Expected archive digest, e.g. sha256:<hex>")
	getCmd.Flags().BoolVar(&getKeep, "keep", false, "Keep the downloaded archive after extraction")
	addLimitFlags(getCmd)
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	url := args[0]
	destDir := "."
	if len(args) == 2 {
		destDir = args[1]
	}

	limits, err := resolveLimits(cmd)
	if err != nil {
		return err
	}

	extractor, err := newExtractor()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Kept downloads land in the destination directory; throwaway
	// downloads go to a temp directory removed afterwards.
	downloadDir := destDir
	if !getKeep {
		tmpDir, mkErr := os.MkdirTemp("", "unpack-get-*")
		if mkErr != nil {
			return mkErr
		}
		defer os.RemoveAll(tmpDir) //nolint:errcheck // best-effort cleanup
		downloadDir = tmpDir
	} else if mkErr := os.MkdirAll(destDir, 0o750); mkErr != nil {
		return mkErr
	}

	callback, finish := newDownloadProgress()
	fetchOpts := fetch.Options{
		Checksum:   getChecksum,
		OnProgress: callback,
	}
	if verbose {
		fetchOpts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	archivePath, err := fetch.Download(ctx, url, downloadDir, fetchOpts)
	finish()
	if err != nil {
		return err
	}

	arc, err := unpack.Open(archivePath)
	if err != nil {
		return err
	}
	defer arc.Close()

	return extractArchive(ctx, extractor, arc, destDir, limits)
}
