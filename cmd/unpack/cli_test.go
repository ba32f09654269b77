package main_test

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/meigma/unpack/cmd/unpack/cli"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"unpack": func() int {
			if err := cli.Execute(); err != nil {
				return 1
			}
			return 0
		},
		// Fixture builders so scripts can create archives, including ones
		// with hostile entry names no packaging tool would produce.
		"mkzip": mkzipMain,
		"mktar": mktarMain,
	}))
}

func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			// Point XDG paths at the work directory so config operations
			// work (testscript sets HOME=/no-home which is read-only)
			env.Setenv("XDG_CONFIG_HOME", env.WorkDir+"/.config")
			return nil
		},
	})
}

// mkzipMain builds a ZIP archive from name=content arguments. A name
// with a trailing slash becomes a directory entry. Names are written
// verbatim, traversal sequences included.
func mkzipMain() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mkzip <out> [name=content ...]")
		return 2
	}
	if err := writeZip(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func writeZip(path string, specs []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	for _, spec := range specs {
		name, content, _ := strings.Cut(spec, "=")
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if strings.HasSuffix(name, "/") {
			hdr.SetMode(fs.ModeDir | 0o755)
			if _, err := zw.CreateHeader(hdr); err != nil {
				return err
			}
			continue
		}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, content); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// mktarMain builds a tar archive from name=content arguments, gzipped
// when -z is given. A name with a trailing slash becomes a directory
// entry.
func mktarMain() int {
	args := os.Args[1:]
	var compress bool
	if len(args) > 0 && args[0] == "-z" {
		compress = true
		args = args[1:]
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: mktar [-z] <out> [name=content ...]")
		return 2
	}
	if err := writeTar(args[0], args[1:], compress); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func writeTar(path string, specs []string, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(f)
		w = gw
	}
	tw := tar.NewWriter(w)

	for _, spec := range specs {
		name, content, _ := strings.Cut(spec, "=")
		if strings.HasSuffix(name, "/") {
			if err := tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name,
				Mode:     0o755,
			}); err != nil {
				return err
			}
			continue
		}
		if err := tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}); err != nil {
			return err
		}
		if _, err := io.WriteString(tw, content); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if gw != nil {
		if err := gw.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}
