// Package unpack safely extracts untrusted archives to local directories.
//
// Archive entry names are attacker-controlled. Instead of rejecting
// hostile names, unpack sanitizes every name into a safe relative path
// before touching the filesystem, so "../../../etc/passwd" extracts to
// "etc/passwd" beneath the destination and nothing can escape it.
// Entries are extracted concurrently with per-entry failure isolation:
// one corrupt entry never aborts the rest.
//
// # Basic Usage
//
// Open an archive and extract it:
//
//	cat, err := unpack.Open("release.zip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cat.Close()
//
//	ex, err := unpack.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ex.Extract(ctx, cat, "./out"); err != nil {
//	    log.Fatal(err)
//	}
//
// ZIP and tar archives are supported, the latter optionally compressed
// with gzip, zstd or lz4. Any type implementing Catalog can be extracted,
// so custom container formats plug in without changes to the coordinator.
//
// # Safety Limits
//
// Decompression bombs are contained with limits, enforced on actual bytes
// written rather than on declared sizes:
//
//	ex, err := unpack.New(unpack.WithLimits(unpack.ExtractLimits{
//	    MaxFiles:     10_000,
//	    MaxTotalSize: 1 << 30,
//	}))
//
// # Errors
//
// Extraction never fails fast. The returned error joins one EntryError
// per failed entry; use errors.As to recover them and errors.Is to test
// for sentinel conditions such as ErrExtractLimits.
package unpack
