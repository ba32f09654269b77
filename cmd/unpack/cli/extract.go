package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/cmd/unpack/cli/config"
)

// Extraction limit flags, shared by the x and get commands.
// The two commands never run in the same invocation.
var (
	maxFiles     int
	maxFileSize  string
	maxTotalSize string
)

var extractCmd = &cobra.Command{
	Use:     "x <archive> [directory]",
	Aliases: []string{"extract"},
	Short:   "Extract an archive to a directory",
	GroupID: "core",
	Long: `X extracts every entry of an archive beneath a destination directory.

Entry names are sanitized first, so archives containing "../" sequences,
absolute paths, or drive prefixes still extract inside the destination.
The destination defaults to the current directory and is created if missing.

A corrupt entry fails on its own; the rest of the archive still extracts.
Failed entries are reported individually on stderr.

Examples:
  unpack x release.zip
  unpack x backup.tar.gz ./restore
  unpack x untrusted.zip ./out --max-files 10000 --max-total-size 2GB`,
	Args:              cobra.RangeArgs(1, 2),
	RunE:              runExtract,
	ValidArgsFunction: completeExtractArgs,
}

func init() {
	addLimitFlags(extractCmd)
	rootCmd.AddCommand(extractCmd)
}

// addLimitFlags registers the extraction safety limit flags on cmd.
func addLimitFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Maximum number of files to extract (0 = unlimited)")
	cmd.Flags().StringVar(&maxFileSize, "max-file-size", "", "Maximum size per extracted file (e.g. 100MB)")
	cmd.Flags().StringVar(&maxTotalSize, "max-total-size", "", "Maximum total extracted size (e.g. 2GB)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	archivePath := args[0]
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

	arc, err := unpack.Open(archivePath)
	if err != nil {
		return err
	}
	defer arc.Close()

	return extractArchive(ctx, extractor, arc, destDir, limits)
}

// extractArchive extracts a catalog with progress reporting and prints a
// summary line. Shared by the x and get commands.
func extractArchive(ctx context.Context, extractor *unpack.Extractor, cat unpack.Catalog, destDir string, limits unpack.ExtractLimits) error {
	entries, err := unpack.List(cat)
	if err != nil {
		return err
	}

	// Declared sizes size the progress bar. They come from untrusted
	// metadata, so the bar may drift; the summary reports actual bytes.
	var totalBytes int64
	for _, entry := range entries {
		if !entry.IsDir() && entry.Size() > 0 {
			totalBytes += entry.Size()
		}
	}

	barCallback, finish := newExtractProgress(totalBytes)

	var written atomic.Int64
	progress := func(event unpack.ProgressEvent) {
		written.Store(event.BytesWritten)
		if barCallback != nil {
			barCallback(event)
		}
	}

	err = extractor.Extract(ctx, cat, destDir,
		unpack.WithExtractLimits(limits),
		unpack.WithProgress(progress),
	)
	finish()

	if err != nil {
		failures := flattenErrors(err)
		for _, failure := range failures {
			fmt.Fprintln(os.Stderr, "  "+failure.Error())
		}
		return fmt.Errorf("%d extraction errors", len(failures))
	}

	fmt.Printf("Extracted %d entries (%s) to %s\n",
		len(entries), humanize.IBytes(safeUint64(written.Load())), destDir)
	return nil
}

// resolveLimits builds extraction limits from flags and configuration.
// Flags take precedence over config file values.
func resolveLimits(cmd *cobra.Command) (unpack.ExtractLimits, error) {
	var limits unpack.ExtractLimits

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return limits, fmt.Errorf("load config: %w", err)
	}

	files := cfg.Limits.MaxFiles
	if cmd.Flags().Changed("max-files") {
		files = maxFiles
	}
	limits.MaxFiles = files

	fileSize := cfg.Limits.MaxFileSize
	if cmd.Flags().Changed("max-file-size") {
		fileSize = maxFileSize
	}
	if fileSize != "" {
		n, err := humanize.ParseBytes(fileSize)
		if err != nil {
			return limits, fmt.Errorf("invalid max-file-size %q: %w", fileSize, err)
		}
		limits.MaxFileSize = safeInt64(n)
	}

	totalSize := cfg.Limits.MaxTotalSize
	if cmd.Flags().Changed("max-total-size") {
		totalSize = maxTotalSize
	}
	if totalSize != "" {
		n, err := humanize.ParseBytes(totalSize)
		if err != nil {
			return limits, fmt.Errorf("invalid max-total-size %q: %w", totalSize, err)
		}
		limits.MaxTotalSize = safeInt64(n)
	}

	return limits, nil
}

// flattenErrors returns the individual errors inside a joined error, or
// the error itself when it is not a join.
func flattenErrors(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}

// safeUint64 converts int64 to uint64, clamping negative values to 0.
func safeUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// safeInt64 converts uint64 to int64, clamping to max int64 if overflow.
func safeInt64(n uint64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if n > uint64(maxInt64) {
		return maxInt64
	}
	return int64(n)
}
