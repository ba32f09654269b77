// Command unpack safely extracts files from untrusted archives.
package main

import (
	"os"

	"github.com/meigma/unpack/cmd/unpack/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
