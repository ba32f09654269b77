package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/internal/safepath"
)

// archiveExtensions filters filesystem completion to the formats Open
// understands. Detection is by content, so this is a convenience only.
var archiveExtensions = []string{"zip", "tar", "gz", "tgz", "zst", "lz4"}

// completeArchiveFile suggests local archive files for the first argument.
func completeArchiveFile() ([]string, cobra.ShellCompDirective) {
	return archiveExtensions, cobra.ShellCompDirectiveFilterFileExt
}

// completeEntryPaths suggests entry paths from inside an archive. This is
// useful for commands like cat and cp that take an archive followed by a
// path within that archive.
//
// Paths are completed in their sanitized form, matching how cat and cp
// address entries.
func completeEntryPaths(archivePath, toComplete string) ([]string, cobra.ShellCompDirective) {
	arc, err := unpack.Open(archivePath)
	if err != nil {
		// Don't show an error during completion - just return no suggestions
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer arc.Close()

	entries, err := unpack.List(arc)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := safepath.Sanitize(entry.Name())
		if path != "" && strings.HasPrefix(path, toComplete) {
			completions = append(completions, path)
		}
	}

	// NoFileComp prevents falling back to local file completion
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeExtractArgs provides completion for the x command arguments:
// - First arg: archive file (filtered filesystem completion)
// - Second arg: destination directory
func completeExtractArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeArchiveFile()
	case 1:
		return nil, cobra.ShellCompDirectiveFilterDirs
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeListArgs provides completion for the ls command argument.
func completeListArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return completeArchiveFile()
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completeCatArgs provides completion for the cat command arguments:
// - First arg: archive file
// - Second arg: entry path within the archive
func completeCatArgs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeArchiveFile()
	case 1:
		return completeEntryPaths(args[0], toComplete)
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeCpArgs provides completion for the cp command arguments:
// - First arg: archive file
// - Second arg: entry path within the archive
// - Third arg: local destination (default filesystem completion)
func completeCpArgs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeArchiveFile()
	case 1:
		return completeEntryPaths(args[0], toComplete)
	default:
		return nil, cobra.ShellCompDirectiveDefault
	}
}

// completeGetArgs provides completion for the get command arguments:
// - First arg: URL (no completion - user must type it)
// - Second arg: destination directory
func completeGetArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return nil, cobra.ShellCompDirectiveNoFileComp
	case 1:
		return nil, cobra.ShellCompDirectiveFilterDirs
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
