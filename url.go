package rarfs

import (
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/internal/pathutil"
)

// Separator splits the archive path from the member path.
const Separator = "::"

// URL is a parsed member address.
type URL struct {
	// Archive is the path of the archive's first volume.
	Archive string

	// Member is the normalized member path, "." for the archive root.
	Member string

	// Flags are the extraction flags from the query. HasFlags reports
	// whether the query set them.
	Flags    cache.Flags
	HasFlags bool

	// CacheDir overrides the cache directory for this request.
	CacheDir string
}

// ParseURL parses "archive::member[?flags=&cache=]".
//
// A name without the separator addresses the archive root. A trailing
// "?..." is only taken as a query when every key in it is known; otherwise
// it is part of the member path.
func ParseURL(name string) (URL, error) {
	archive, member, found := strings.Cut(name, Separator)
	if archive == "" {
		return URL{}, fmt.Errorf("%w: missing archive path in %q", fs.ErrInvalid, name)
	}
	u := URL{Archive: archive, Member: "."}
	if !found {
		return u, nil
	}

	if i := strings.LastIndexByte(member, '?'); i >= 0 {
		if q, ok := parseQuery(member[i+1:]); ok {
			member = member[:i]
			if v := q.Get("flags"); v != "" {
				flags, err := cache.ParseFlags(v)
				if err != nil {
					return URL{}, fmt.Errorf("%w: %w", fs.ErrInvalid, err)
				}
				u.Flags, u.HasFlags = flags, true
			}
			u.CacheDir = q.Get("cache")
		}
	}
	u.Member = pathutil.Normalize(member)
	return u, nil
}

func parseQuery(raw string) (url.Values, bool) {
	q, err := url.ParseQuery(raw)
	if err != nil || len(q) == 0 {
		return nil, false
	}
	for key := range q {
		if key != "flags" && key != "cache" {
			return nil, false
		}
	}
	return q, true
}

// String formats u back into "archive::member[?query]".
func (u URL) String() string {
	var b strings.Builder
	b.WriteString(u.Archive)
	if u.Member == "." && !u.HasFlags && u.CacheDir == "" {
		return b.String()
	}
	b.WriteString(Separator)
	if u.Member != "." {
		b.WriteString(u.Member)
	}
	q := url.Values{}
	if u.HasFlags {
		q.Set("flags", u.Flags.String())
	}
	if u.CacheDir != "" {
		q.Set("cache", u.CacheDir)
	}
	if len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	return b.String()
}

// Join returns the address of member inside archive.
func Join(archive, member string) string {
	return archive + Separator + member
}
