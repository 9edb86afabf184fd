//go:build !linux && !darwin && !freebsd && !windows

package cache

import (
	"errors"
	"fmt"
)

func freeSpace(path string) (uint64, error) {
	return 0, fmt.Errorf("free space of %s: %w", path, errors.ErrUnsupported)
}
