package rar

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var partPattern = regexp.MustCompile(`(?i)^(.*\.part)(\d+)(\.rar)$`)

// VolumeName returns the path of volume n (0 is the first volume) of the
// set whose first volume is first.
//
// Both naming schemes are supported: "name.part01.rar", "name.part02.rar"
// and the older "name.rar", "name.r00", "name.r01" through "name.r99",
// "name.s00" and so on.
func VolumeName(first string, n int) string {
	if n <= 0 {
		return first
	}
	dir, base := filepath.Split(first)
	if m := partPattern.FindStringSubmatch(base); m != nil {
		start, err := strconv.Atoi(m[2])
		if err == nil {
			return dir + m[1] + fmt.Sprintf("%0*d", len(m[2]), start+n) + m[3]
		}
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	letter := byte('r')
	if ext == strings.ToUpper(ext) && ext != "" {
		letter = 'R'
	}
	i := n - 1
	return fmt.Sprintf("%s%s.%c%02d", dir, stem, letter+byte(i/100), i%100) //nolint:gosec // volume counts stay far below overflow
}

// IsContinuationVolume reports whether name looks like a volume other than
// the first one of a set, such as "x.part02.rar" or "x.r00".
func IsContinuationVolume(name string) bool {
	base := filepath.Base(name)
	if m := partPattern.FindStringSubmatch(base); m != nil {
		n, err := strconv.Atoi(m[2])
		return err == nil && n > 1
	}
	ext := strings.ToLower(filepath.Ext(base))
	if len(ext) != 4 || ext[1] < 'r' || ext[1] > 'z' {
		return false
	}
	_, err := strconv.Atoi(ext[2:])
	return err == nil
}
