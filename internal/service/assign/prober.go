//go:build linux || darwin

package assign

import (
	"fmt"
	"syscall"
)

// OSProber reads free space from the mounted filesystem.
type OSProber struct{}

func (OSProber) FreeBytes(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("cannot statfs %s: %w", path, err)
	}

	return st.Bavail * uint64(st.Bsize), nil
}
