// Package safepath converts untrusted archive entry names into safe
// relative filesystem paths.
//
// Entry names inside an archive are attacker-controlled: they may carry
// directory-traversal sequences, absolute-path prefixes, backslash
// separators, control characters, or reserved device names. Sanitize maps
// any such name to a relative path that cannot resolve outside the
// directory it is joined under.
package safepath

import (
	"strings"
	"unicode/utf8"
)

// maxSegmentBytes is the longest sanitized segment produced, matching the
// common filesystem name limit.
const maxSegmentBytes = 255

// Sanitize maps a raw archive entry name to a safe relative path.
//
// The name is normalized to forward-slash separators, split into
// segments, and each segment is sanitized with Segment. Empty segments
// (from leading, trailing, or doubled separators, or from segments that
// sanitize to nothing) are dropped. The result is a slash-separated
// relative path; it is empty when nothing survives.
//
// Sanitize never fails. For any input the output contains no "." or ".."
// segments and no separators inside segments, so joining it under an
// output root cannot escape that root.
func Sanitize(name string) string {
	normalized := strings.ReplaceAll(name, `\`, "/")

	var b strings.Builder
	b.Grow(len(normalized))
	for _, seg := range strings.Split(normalized, "/") {
		clean := Segment(seg)
		if clean == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(clean)
	}
	return b.String()
}

// Segment sanitizes a single path segment for use as a filesystem name.
//
// Characters illegal in filesystem names and C0/C1 control runes are
// removed, dots-only segments (".", "..", "...") become empty, trailing
// dots and spaces are trimmed, reserved device names (CON, PRN, AUX, NUL,
// COM0-COM9, LPT0-LPT9, with or without an extension) become empty, and
// the result is truncated to 255 bytes on a rune boundary. The reserved
// name and trailing-character rules apply on every platform: archives
// travel between systems, so a name that is hostile anywhere is rewritten
// everywhere.
func Segment(seg string) string {
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		if isIllegalRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()

	if isDotsOnly(s) {
		return ""
	}
	s = strings.TrimRight(s, ". ")
	if s == "" || isReservedName(s) {
		return ""
	}
	return truncateRunes(s, maxSegmentBytes)
}

// isIllegalRune reports whether r may not appear in a filesystem name.
func isIllegalRune(r rune) bool {
	switch r {
	case '/', '?', '<', '>', '\\', ':', '*', '|', '"':
		return true
	}
	return r <= 0x1f || (r >= 0x80 && r <= 0x9f)
}

// isDotsOnly reports whether s is non-empty and consists solely of dots.
func isDotsOnly(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			return false
		}
	}
	return true
}

// isReservedName reports whether the segment's base name (the part before
// the first dot) is a reserved device name, case-insensitively.
func isReservedName(s string) bool {
	base := s
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	switch len(base) {
	case 3:
		return strings.EqualFold(base, "con") ||
			strings.EqualFold(base, "prn") ||
			strings.EqualFold(base, "aux") ||
			strings.EqualFold(base, "nul")
	case 4:
		if base[3] < '0' || base[3] > '9' {
			return false
		}
		prefix := base[:3]
		return strings.EqualFold(prefix, "com") || strings.EqualFold(prefix, "lpt")
	}
	return false
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
