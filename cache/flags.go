package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Flags control how a member is opened and cached.
type Flags uint32

// Open flags. The numeric values are stable and may appear in URLs.
const (
	// FlagOverwrite re-extracts even if a cached copy exists.
	FlagOverwrite Flags = 1 << iota
	// FlagAutoDelete marks the extracted copy for deletion once unreferenced.
	FlagAutoDelete
	// FlagNoCache refuses to extract; only stored members or streams open.
	FlagNoCache
	// FlagStream reads compressed members through a streaming session.
	FlagStream
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagOverwrite, "overwrite"},
	{FlagAutoDelete, "autodelete"},
	{FlagNoCache, "nocache"},
	{FlagStream, "stream"},
}

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// String returns the comma-separated flag names.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	rest := f
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		names = append(names, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(names, ",")
}

// ParseFlags parses a decimal number ("6") or a comma-separated list of
// flag names ("autodelete,nocache"). Names are case-insensitive and the
// empty string yields no flags.
func ParseFlags(s string) (Flags, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return Flags(n), nil
	}

	var f Flags
	for part := range strings.SplitSeq(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "none" {
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == part {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", part)
		}
	}
	return f, nil
}
