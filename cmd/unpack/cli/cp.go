package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
)

var cpCmd = &cobra.Command{
	Use:     "cp <archive> <path> <destination>",
	Short:   "Copy a single entry from an archive to a local path",
	GroupID: "core",
	Long: `Cp copies a single archive entry to a local path without extracting
the rest of the archive.

The path is matched against sanitized entry names, the same way cat
matches. Parent directories are created automatically if they don't
exist. If the destination is an existing directory, the file is placed
inside it.

Examples:
  unpack cp release.zip config.yaml ./config.yaml
  unpack cp backup.tar.gz etc/hosts ./restored/hosts
  unpack cp release.zip config.yaml /tmp/  # creates /tmp/config.yaml`,
	Args:              cobra.ExactArgs(3),
	RunE:              runCp,
	ValidArgsFunction: completeCpArgs,
}

func init() {
	rootCmd.AddCommand(cpCmd)
}

func runCp(_ *cobra.Command, args []string) error {
	archivePath := args[0]
	filePath := args[1]
	destPath := args[2]

	arc, err := unpack.Open(archivePath)
	if err != nil {
		return err
	}
	defer arc.Close()

	entry, err := findEntry(arc, filePath)
	if err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	// If destination is a directory, append the source filename (like real cp)
	if info, statErr := os.Stat(destPath); statErr == nil && info.IsDir() {
		destPath = filepath.Join(destPath, filepath.Base(filePath))
	}

	// Create parent directories if needed
	if dir := filepath.Dir(destPath); dir != "." {
		if mkdirErr := os.MkdirAll(dir, 0o750); mkdirErr != nil {
			return mkdirErr
		}
	}

	destFile, err := os.Create(destPath) //nolint:gosec // G304: destPath is a user-provided CLI argument
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, rc)
	return err
}
