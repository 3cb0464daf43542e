package docs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/codelore/codelore/domain/fault"
)

// Version is a semver major.minor.patch. Documentation versions start at
// 1.0.0 and the patch increments by one on each completion.
type Version struct {
	major int
	minor int
	patch int
}

// InitialVersion is the version of never-completed documentation.
func InitialVersion() Version {
	return Version{major: 1, minor: 0, patch: 0}
}

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fault.Validationf("version %q is not major.minor.patch", s)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fault.Validationf("version %q has invalid component %q", s, part)
		}
		nums[i] = n
	}
	return Version{major: nums[0], minor: nums[1], patch: nums[2]}, nil
}

// Major returns the major component.
func (v Version) Major() int { return v.major }

// Minor returns the minor component.
func (v Version) Minor() int { return v.minor }

// Patch returns the patch component.
func (v Version) Patch() int { return v.patch }

// BumpPatch returns the next patch version.
func (v Version) BumpPatch() Version {
	v.patch++
	return v
}

// String renders "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}
