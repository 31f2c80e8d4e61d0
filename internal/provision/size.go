package provision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vmforge/proxmox-mcp/internal/security"
)

var sizeSuffixes = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// parseDiskSize parses a PVE disk size like "64G" or "512M" into bytes. A
// leading "+" (relative grow) is rejected: workflows always state absolute
// targets so the shrink check stays meaningful.
func parseDiskSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: disk size %q", security.ErrInvalidInput, s)
	}

	mult := int64(1)
	if unit, ok := sizeSuffixes[s[len(s)-1]]; ok {
		mult = unit
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: disk size", security.ErrInvalidInput)
	}
	return n * mult, nil
}

// currentDiskSize extracts the size from a disk config value such as
// "local-lvm:vm-100-disk-0,size=32G". Missing or unparseable sizes report
// ok=false; the caller then skips the shrink comparison.
func currentDiskSize(value string) (int64, bool) {
	for _, part := range strings.Split(value, ",") {
		if raw, found := strings.CutPrefix(part, "size="); found {
			n, err := parseDiskSize(raw)
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<40 && bytes%(1<<40) == 0:
		return fmt.Sprintf("%dT", bytes/(1<<40))
	case bytes >= 1<<30 && bytes%(1<<30) == 0:
		return fmt.Sprintf("%dG", bytes/(1<<30))
	case bytes >= 1<<20 && bytes%(1<<20) == 0:
		return fmt.Sprintf("%dM", bytes/(1<<20))
	default:
		return strconv.FormatInt(bytes, 10)
	}
}
