package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
)

var (
	listLong  bool
	listHuman bool
)

var listCmd = &cobra.Command{
	Use:     "ls <archive>",
	Aliases: []string{"list"},
	Short:   "List the entries of an archive",
	GroupID: "core",
	Long: `Ls displays the entries of an archive without extracting it.

Entry names are shown exactly as recorded in the archive, including any
hostile components a later extraction would sanitize away.

Examples:
  unpack ls release.zip
  unpack ls -l backup.tar.gz
  unpack ls -lH backup.tar.zst`,
	Args:              cobra.ExactArgs(1),
	RunE:              runList,
	ValidArgsFunction: completeListArgs,
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Use long listing format")
	listCmd.Flags().BoolVarP(&listHuman, "human-readable", "H", false, "Print sizes in human-readable format")
	rootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, args []string) error {
	arc, err := unpack.Open(args[0])
	if err != nil {
		return err
	}
	defer arc.Close()

	entries, err := unpack.List(arc)
	if err != nil {
		return err
	}

	if listLong {
		printLongListing(os.Stdout, entries)
	} else {
		printShortListing(os.Stdout, entries)
	}

	return nil
}

// printShortListing prints just the entry names.
func printShortListing(w io.Writer, entries []unpack.Entry) {
	for _, entry := range entries {
		fmt.Fprintln(w, entry.Name())
	}
}

// printLongListing prints mode, size, and name in ls -l style format.
func printLongListing(w io.Writer, entries []unpack.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			formatMode(entry.Mode()),
			formatSize(entry),
			entry.Name())
	}
	tw.Flush()
}

// formatMode converts fs.FileMode to symbolic format (e.g., "-rw-r--r--").
func formatMode(mode fs.FileMode) string {
	buf := make([]byte, 10)

	// Type indicator
	switch {
	case mode.IsDir():
		buf[0] = 'd'
	case mode&fs.ModeSymlink != 0:
		buf[0] = 'l'
	case mode&fs.ModeNamedPipe != 0:
		buf[0] = 'p'
	case mode&fs.ModeSocket != 0:
		buf[0] = 's'
	case mode&fs.ModeDevice != 0:
		if mode&fs.ModeCharDevice != 0 {
			buf[0] = 'c'
		} else {
			buf[0] = 'b'
		}
	default:
		buf[0] = '-'
	}

	// Permission bits
	const rwx = "rwx"
	for i := range 3 {
		for j := range 3 {
			//nolint:gosec // G115: i and j are in range 0-2, no overflow possible
			if mode&(1<<uint(8-i*3-j)) != 0 {
				buf[1+i*3+j] = rwx[j]
			} else {
				buf[1+i*3+j] = '-'
			}
		}
	}

	return string(buf)
}

// formatSize formats an entry size for display.
func formatSize(entry unpack.Entry) string {
	if entry.IsDir() {
		return "-"
	}
	size := entry.Size()
	if size < 0 {
		return "?"
	}
	if listHuman {
		//nolint:gosec // G115: size is non-negative here
		return humanize.IBytes(uint64(size))
	}
	return strconv.FormatInt(size, 10)
}
