package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"medreport/core"
)

// DefaultMinFreeBytes is the free space below which the data volume is
// reported as a warning. Uploads and the SQLite WAL both live there.
const DefaultMinFreeBytes int64 = 512 * core.BytesPerMB

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	Path          string
	Total         int64
	Free          int64
	FreeFormatted string
	UsedPercent   float64
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
	Message   string
}

func (e *DiskSpaceError) Error() string {
	return e.Message
}

// GetDiskSpace returns disk space information for the filesystem holding
// path. Missing paths are resolved to their nearest existing ancestor.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if parent := filepath.Dir(path); parent != path {
				return GetDiskSpace(parent)
			}
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	var usedPercent float64
	if total > 0 {
		usedPercent = float64(total-free) / float64(total) * 100
	}

	return &DiskSpaceInfo{
		Path:          path,
		Total:         total,
		Free:          free,
		FreeFormatted: core.FormatBytes(free),
		UsedPercent:   usedPercent,
	}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when fewer than requiredBytes are
// free at path.
func CheckDiskSpace(path string, requiredBytes int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}

	if info.Free < requiredBytes {
		return &DiskSpaceError{
			Path:      path,
			Required:  requiredBytes,
			Available: info.Free,
			Message: fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
				path, core.FormatBytes(requiredBytes), info.FreeFormatted),
		}
	}
	return nil
}
