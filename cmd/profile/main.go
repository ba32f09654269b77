//go:build profiling
// +build profiling

package main

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	"github.com/felixge/fgprof"
	"github.com/grafana/pyroscope-go"

	"github.com/meigma/unpack"
)

type profileKind string

const (
	profileCPU   profileKind = "cpu"
	profileFG    profileKind = "fgprof"
	profileTrace profileKind = "trace"
	profileNone  profileKind = "none"

	defaultArchive = "tmp/profilepayload"
	defaultDestDir = "tmp/profiledest"
)

func main() {
	var (
		archive     = flag.String("archive", "", "archive to extract (default: generate a synthetic one)")
		format      = flag.String("format", "zip", "synthetic archive format: zip, tar, tgz")
		entries     = flag.Int("entries", 2000, "entry count for the synthetic archive")
		entrySize   = flag.Int("entry-size", 64*1024, "entry size in bytes for the synthetic archive")
		destDir     = flag.String("dest", defaultDestDir, "destination directory for extraction")
		profile     = flag.String("profile", "cpu", "profile type: cpu, fgprof, trace, none")
		outDir      = flag.String("out", "profiles", "output directory for profiles")
		label       = flag.String("label", "", "label suffix for profile files")
		repeat      = flag.Int("repeat", 1, "number of iterations")
		unique      = flag.Bool("unique-dest", false, "use a unique destination per iteration")
		concurrency = flag.Int("concurrency", 0, "extraction concurrency (0 = number of CPUs)")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		timeout     = flag.Duration("timeout", 15*time.Minute, "overall timeout")
		pyroAddr    = flag.String("pyroscope", "", "Pyroscope server URL (enables streaming, disables local profiles)")
	)
	flag.Parse()

	runID := time.Now().UTC().Format("20060102T150405Z")

	formatValue := strings.ToLower(*format)
	if formatValue != "zip" && formatValue != "tar" && formatValue != "tgz" {
		log.Fatalf("invalid format %q (expected zip, tar, or tgz)", *format)
	}

	profileKindValue := profileKind(strings.ToLower(*profile))
	if !isValidProfile(profileKindValue) {
		log.Fatalf("invalid profile %q (expected cpu, fgprof, trace, none)", *profile)
	}

	// When Pyroscope is enabled, stream profiles instead of writing locally
	var pyroProfiler *pyroscope.Profiler
	if *pyroAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "unpack-profile",
			ServerAddress:   *pyroAddr,
			// Grafana Cloud requires BasicAuth (AuthToken is deprecated)
			// User: instance ID from Grafana Cloud, Password: API token
			BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
			BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
			// Use a short upload rate since profiling runs are brief (~10s)
			UploadRate: 5 * time.Second,
			Logger:     pyroscope.StandardLogger,
			Tags: map[string]string{
				"format":  formatValue,
				"git_sha": os.Getenv("GITHUB_SHA"),
				"git_ref": os.Getenv("GITHUB_REF_NAME"),
				"run_id":  runID,
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("start pyroscope: %v", err)
		}
		pyroProfiler = profiler
		log.Printf("streaming profiles to %s", *pyroAddr)
	}

	if *pyroAddr == "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("create profile output dir: %v", err)
		}
	}

	if *repeat < 1 {
		log.Fatalf("repeat must be >= 1")
	}

	archivePath := *archive
	if archivePath == "" {
		archivePath = defaultArchive + "." + formatValue
		if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
			log.Fatalf("create payload dir: %v", err)
		}
		log.Printf("generating %s payload: %d entries x %d bytes", formatValue, *entries, *entrySize)
		if err := generateArchive(archivePath, formatValue, *entries, *entrySize); err != nil {
			log.Fatalf("generate payload: %v", err)
		}
	} else if _, err := os.Stat(archivePath); err != nil {
		log.Fatalf("archive path %q: %v", archivePath, err)
	}

	labelParts := []string{formatValue}
	if *label != "" {
		labelParts = append(labelParts, sanitizeLabel(*label))
	}
	labelParts = append(labelParts, runID)
	labelValue := strings.Join(labelParts, "_")

	// Only start local profiling when not streaming to Pyroscope
	var stopProfile func() error
	if *pyroAddr == "" {
		var err error
		stopProfile, err = startProfile(profileKindValue, *outDir, labelValue)
		if err != nil {
			log.Fatalf("start profile: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var extractorOpts []unpack.Option
	if *concurrency > 0 {
		extractorOpts = append(extractorOpts, unpack.WithConcurrency(*concurrency))
	}
	if *logLevel != "" {
		level, err := parseLogLevel(*logLevel)
		if err != nil {
			log.Fatalf("parse log level: %v", err)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		extractorOpts = append(extractorOpts, unpack.WithLogger(logger))
	}

	extractor, err := unpack.New(extractorOpts...)
	if err != nil {
		log.Fatalf("create extractor: %v", err)
	}

	destRoot := *destDir
	if *unique {
		destRoot = filepath.Join(*destDir, runID)
		if err := recreateDir(destRoot); err != nil {
			log.Fatalf("create dest root: %v", err)
		}
	}

	for i := range *repeat {
		if *repeat > 1 {
			log.Printf("iteration %d/%d", i+1, *repeat)
		}

		dest := destRoot
		if *unique {
			dest = filepath.Join(destRoot, fmt.Sprintf("iter-%03d", i+1))
			if err := os.MkdirAll(dest, 0o755); err != nil {
				log.Fatalf("create dest dir: %v", err)
			}
		} else if err := recreateDir(dest); err != nil {
			log.Fatalf("create dest dir: %v", err)
		}

		start := time.Now()
		cat, err := unpack.Open(archivePath)
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		if err := extractor.Extract(ctx, cat, dest); err != nil {
			log.Fatalf("extract: %v", err)
		}
		entryCount := cat.Len()
		if err := cat.Close(); err != nil {
			log.Fatalf("close archive: %v", err)
		}
		log.Printf("extract complete: %d entries in %s", entryCount, time.Since(start))
	}

	// Stop profiling - either Pyroscope or local
	if pyroProfiler != nil {
		if err := pyroProfiler.Stop(); err != nil {
			log.Fatalf("stop pyroscope: %v", err)
		}
		log.Printf("pyroscope profiling stopped")
	} else {
		if stopErr := stopProfile(); stopErr != nil {
			log.Fatalf("stop profile: %v", stopErr)
		}
		if err := writeHeapProfile(*outDir, labelValue); err != nil {
			log.Fatalf("write heap profile: %v", err)
		}
		if err := writeAllocsProfile(*outDir, labelValue); err != nil {
			log.Fatalf("write allocs profile: %v", err)
		}
	}
}

func isValidProfile(kind profileKind) bool {
	switch kind {
	case profileCPU, profileFG, profileTrace, profileNone:
		return true
	default:
		return false
	}
}

func startProfile(kind profileKind, outDir, label string) (func() error, error) {
	switch kind {
	case profileCPU:
		path := filepath.Join(outDir, "cpu_"+label+".pprof")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return func() error {
			pprof.StopCPUProfile()
			return f.Close()
		}, nil
	case profileFG:
		path := filepath.Join(outDir, "fgprof_"+label+".pprof")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		stop := fgprof.Start(f, fgprof.FormatPprof)
		return func() error {
			stopErr := stop()
			closeErr := f.Close()
			return errors.Join(stopErr, closeErr)
		}, nil
	case profileTrace:
		path := filepath.Join(outDir, "trace_"+label+".out")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return func() error {
			trace.Stop()
			return f.Close()
		}, nil
	case profileNone:
		return func() error { return nil }, nil
	default:
		return nil, fmt.Errorf("unknown profile type: %s", kind)
	}
}

func writeHeapProfile(outDir, label string) error {
	path := filepath.Join(outDir, "heap_"+label+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

func writeAllocsProfile(outDir, label string) error {
	path := filepath.Join(outDir, "allocs_"+label+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.Lookup("allocs").WriteTo(f, 0)
}

// generateArchive writes a synthetic archive with the given entry count
// and entry size. Entries are spread over a handful of directories so
// extraction exercises the directory cache.
func generateArchive(path, format string, entries, entrySize int) error {
	switch format {
	case "zip":
		return generateZip(path, entries, entrySize)
	case "tar":
		return generateTar(path, entries, entrySize, false)
	case "tgz":
		return generateTar(path, entries, entrySize, true)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func generateZip(path string, entries, entrySize int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	data := payloadData(entrySize)
	for i := range entries {
		w, err := zw.Create(entryName(i))
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func generateTar(path string, entries, entrySize int, compress bool) error {
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

	data := payloadData(entrySize)
	for i := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name: entryName(i),
			Mode: 0o644,
			Size: int64(len(data)),
		}); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
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

func entryName(i int) string {
	return fmt.Sprintf("dir-%02d/data-%05d.bin", i%16, i)
}

// payloadData returns pseudo-random bytes so compression has realistic
// work to do. The seed is fixed to keep runs comparable.
func payloadData(n int) []byte {
	buf := make([]byte, n)
	r := rand.New(rand.NewSource(42))
	r.Read(buf) //nolint:errcheck // never returns an error
	return buf
}

func recreateDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

func sanitizeLabel(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}

func parseLogLevel(value string) (slog.Leveler, error) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unknown level %q", value)
	}
}
