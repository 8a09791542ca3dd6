package registry

import (
	"fmt"
	"sort"
	"strings"
)

// ReleaseType classifies how stable a detected release is.
type ReleaseType string

const (
	ReleaseStable   ReleaseType = "stable"
	ReleaseLTS      ReleaseType = "lts"
	ReleaseRC       ReleaseType = "rc"
	ReleaseBeta     ReleaseType = "beta"
	ReleaseAlpha    ReleaseType = "alpha"
	ReleaseWeekly   ReleaseType = "weekly"
	ReleaseDaily    ReleaseType = "daily"
	ReleaseSnapshot ReleaseType = "snapshot"
)

// rank orders release types for "latest" selection. LTS deliberately outranks
// plain stable: when a distro offers both, the LTS image is the one users
// should land on by default.
func (rt ReleaseType) rank() int {
	switch rt {
	case ReleaseLTS:
		return 110
	case ReleaseStable:
		return 100
	case ReleaseRC:
		return 80
	case ReleaseBeta:
		return 60
	case ReleaseAlpha:
		return 40
	case ReleaseWeekly:
		return 25
	case ReleaseDaily:
		return 20
	case ReleaseSnapshot:
		return 10
	default:
		return 0
	}
}

// IsStable reports whether the release type counts as stable for default
// version selection.
func (rt ReleaseType) IsStable() bool {
	return rt == ReleaseStable || rt == ReleaseLTS
}

// VersionInfo describes one release discovered by a version detector. Values
// are ephemeral: they are produced per detection call and consumed immediately
// by selection logic.
type VersionInfo struct {
	Version         string      `yaml:"version" json:"version"`
	ReleaseType     ReleaseType `yaml:"release_type" json:"release_type"`
	ReleaseDate     string      `yaml:"release_date,omitempty" json:"release_date,omitempty"`
	EndOfLife       string      `yaml:"end_of_life,omitempty" json:"end_of_life,omitempty"`
	DownloadURLBase string      `yaml:"download_url_base,omitempty" json:"download_url_base,omitempty"`
	Notes           string      `yaml:"notes,omitempty" json:"notes,omitempty"`
}

func (v VersionInfo) String() string {
	s := fmt.Sprintf("%s (%s)", v.Version, v.ReleaseType)
	if v.ReleaseDate != "" {
		s += " - " + v.ReleaseDate
	}
	return s
}

// numericComponents extracts comparable numeric parts of a version string.
// Tokens are split on '.', '-' and '_'; each token contributes its leading
// digit run, non-numeric tokens are skipped ("24.04" -> [24 4], "rc1" -> []).
func (v VersionInfo) numericComponents() []int {
	tokens := strings.FieldsFunc(v.Version, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})

	var parts []int
	for _, tok := range tokens {
		end := 0
		for end < len(tok) && tok[end] >= '0' && tok[end] <= '9' {
			end++
		}
		if end == 0 {
			continue
		}
		n := 0
		for _, c := range tok[:end] {
			n = n*10 + int(c-'0')
		}
		parts = append(parts, n)
	}
	return parts
}

// Compare returns -1, 0 or 1 ordering v against other. Release type rank wins
// first; within a rank, numeric components are compared left to right, and on
// full prefix equality the version with more components is newer.
func (v VersionInfo) Compare(other VersionInfo) int {
	if d := v.ReleaseType.rank() - other.ReleaseType.rank(); d != 0 {
		return sign(d)
	}

	a, b := v.numericComponents(), other.numericComponents()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return sign(a[i] - b[i])
		}
	}
	return sign(len(a) - len(b))
}

// Newer reports whether v sorts above other.
func (v VersionInfo) Newer(other VersionInfo) bool {
	return v.Compare(other) > 0
}

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// sortVersionsDesc orders versions newest-first in place. The sort is stable
// so equal versions keep their detection order.
func sortVersionsDesc(versions []VersionInfo) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) > 0
	})
}

// dedupeVersions removes later occurrences of already-seen version strings,
// preserving order. Input is expected to be sorted newest-first so the kept
// occurrence is the highest-ranked one.
func dedupeVersions(versions []VersionInfo) []VersionInfo {
	seen := make(map[string]struct{}, len(versions))
	out := versions[:0]
	for _, v := range versions {
		if _, ok := seen[v.Version]; ok {
			continue
		}
		seen[v.Version] = struct{}{}
		out = append(out, v)
	}
	return out
}
