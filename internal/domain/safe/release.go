package safe

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Release is a published Safe contracts version.
type Release struct {
	Version     string    `json:"version" yaml:"version"`
	PublishedAt time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
}

// CanonicalVersion turns "1.3.0", "v1.3.0" or "1.3.0+L2" into "v1.3.0".
// It returns "" when the input is not a semantic version.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// SortReleases returns releases newest first, dropping entries whose version
// does not parse and collapsing duplicates.
func SortReleases(releases []Release) []Release {
	seen := make(map[string]struct{}, len(releases))
	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		canon := CanonicalVersion(r.Version)
		if canon == "" || semver.Prerelease(canon) != "" {
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		r.Version = canon
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return semver.Compare(out[i].Version, out[j].Version) > 0
	})
	return out
}
