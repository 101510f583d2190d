package api

import (
	"fmt"
	"strconv"
	"strings"
)

// AnyMinor in Version.Minor accepts every minor revision of a major version.
const AnyMinor = -1

// Version is a major.minor schema version as declared by a descriptor.
type Version struct {
	Major int
	Minor int
}

// ParseVersion accepts "1", "1.6" and "1.6.0" style strings. A lone major
// version yields Minor == AnyMinor.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	parts := strings.Split(s, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid major version %q", parts[0])
	}
	if len(parts) == 1 {
		return Version{Major: major, Minor: AnyMinor}, nil
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("invalid minor version %q", parts[1])
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	if v.Minor == AnyMinor {
		return strconv.Itoa(v.Major)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsZero reports whether no version was declared.
func (v Version) IsZero() bool { return v == Version{} }

// Newer reports whether v is newer than the supported maximum max.
func (v Version) Newer(max Version) bool {
	if v.Major != max.Major {
		return v.Major > max.Major
	}
	if max.Minor == AnyMinor || v.Minor == AnyMinor {
		return false
	}
	return v.Minor > max.Minor
}

// Default supported maxima: the current major revision of each format with any
// minor revision. Stricter limits come from configuration.
var (
	DefaultMVRMaxVersion  = Version{Major: 1, Minor: AnyMinor}
	DefaultGDTFMaxVersion = Version{Major: 1, Minor: AnyMinor}
)
