// Package pathutil provides path manipulation for slash-separated archive paths.
package pathutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// DirPrefix converts a directory path to its prefix form.
// For "" and ".", returns "" (empty prefix matches all).
// For other paths, appends "/" to match children.
func DirPrefix(name string) string {
	name = strings.TrimSuffix(name, "/")
	if name == "" || name == "." {
		return ""
	}
	return name + "/"
}

// Child extracts the immediate child name from a full path given a prefix.
// Returns the child name and whether it's a subdirectory (has more path components).
// If path doesn't have the prefix, behavior is undefined.
func Child(path, prefix string) (name string, isSubDir bool) {
	relPath := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(relPath, "/"); idx >= 0 {
		return relPath[:idx], true
	}
	return relPath, false
}

// Normalize converts a user or archive path to the canonical member form.
//
// It performs the following transformations:
//   - Converts backslashes to forward slashes: `a\b` → "a/b"
//   - Strips leading and trailing slashes: "/a/b/" → "a/b"
//   - Collapses consecutive slashes: "a//b" → "a/b"
//   - Converts empty string and root to "."
//
// Paths containing "." or ".." elements are preserved.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}

	parts := strings.Split(p, "/")
	result := parts[:0] // reuse backing array
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}

// DecodeName re-encodes a raw member name to NFC UTF-8 and normalizes it.
//
// Names flagged as UTF-8 (or that happen to be valid UTF-8) are used as is;
// anything else is assumed to be in the OEM code page RAR uses for
// non-Unicode names (CP437).
func DecodeName(raw []byte, isUTF8 bool) string {
	var s string
	switch {
	case isUTF8 || utf8.Valid(raw):
		s = string(raw)
	default:
		decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw)
		if err != nil {
			s = strings.ToValidUTF8(string(raw), "�")
		} else {
			s = string(decoded)
		}
	}
	return Normalize(norm.NFC.String(s))
}

// IsUnsafe reports whether a normalized member path would escape a
// destination directory when joined to it.
func IsUnsafe(p string) bool {
	if p == "." || p == "" {
		return true
	}
	for part := range strings.SplitSeq(p, "/") {
		if part == ".." {
			return true
		}
	}
	return strings.Contains(p, ":")
}
