package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/internal/safepath"
)

var catCmd = &cobra.Command{
	Use:     "cat <archive> <path>",
	Short:   "Output a single entry from an archive",
	GroupID: "core",
	Long: `Cat streams the contents of a single archive entry to stdout.

The path is matched against sanitized entry names, so it is the same
path the entry would extract to. An entry recorded as "../config.yaml"
is addressed as "config.yaml".

Examples:
  unpack cat release.zip config.yaml
  unpack cat backup.tar.gz etc/hosts > hosts`,
	Args:              cobra.ExactArgs(2),
	RunE:              runCat,
	ValidArgsFunction: completeCatArgs,
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func runCat(_ *cobra.Command, args []string) error {
	archivePath := args[0]
	filePath := args[1]

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

	_, err = io.Copy(os.Stdout, rc)
	return err
}

// findEntry locates the file entry whose sanitized name matches path.
// The query goes through the same sanitization, so "./a/b" and "a/b"
// address the same entry.
func findEntry(cat unpack.Catalog, path string) (unpack.Entry, error) {
	want := safepath.Sanitize(path)
	if want == "" {
		return nil, fmt.Errorf("%w: %q", unpack.ErrNotFound, path)
	}

	for i := range cat.Len() {
		entry, err := cat.Entry(i)
		if err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		if safepath.Sanitize(entry.Name()) == want {
			return entry, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", unpack.ErrNotFound, path)
}
