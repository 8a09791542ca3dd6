package registry

import (
	"fmt"
	"sort"
)

// SourceType identifies the transport behind a download source.
type SourceType string

const (
	SourceDirect  SourceType = "direct"
	SourceMirror  SourceType = "mirror"
	SourceTorrent SourceType = "torrent"
	SourceMagnet  SourceType = "magnet"
)

// IsHTTP reports whether the source is fetched over plain HTTP(S).
func (st SourceType) IsHTTP() bool {
	return st == SourceDirect || st == SourceMirror
}

// SourcePriority is the declared preference tier of a source. Higher is
// better.
type SourcePriority int

const (
	PriorityLow       SourcePriority = 1
	PriorityMedium    SourcePriority = 2
	PriorityHigh      SourcePriority = 3
	PriorityPreferred SourcePriority = 4
)

func (p SourcePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityPreferred:
		return "preferred"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// DownloadSource describes one endpoint an image can be retrieved from.
// Direct, Mirror and Torrent sources carry a URL (possibly templated with
// {version}/{arch}/{filename}/{variant} placeholders); Magnet sources carry a
// magnet link instead. Values are freely copied; nothing is shared.
type DownloadSource struct {
	Type        SourceType     `yaml:"type" json:"type"`
	Priority    SourcePriority `yaml:"priority" json:"priority"`
	URL         string         `yaml:"url,omitempty" json:"url,omitempty"`
	MagnetLink  string         `yaml:"magnet_link,omitempty" json:"magnet_link,omitempty"`
	Trackers    []string       `yaml:"trackers,omitempty" json:"trackers,omitempty"`
	Region      string         `yaml:"region,omitempty" json:"region,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Verified    bool           `yaml:"verified,omitempty" json:"verified,omitempty"`
	SpeedRating int            `yaml:"speed_rating,omitempty" json:"speed_rating,omitempty"` // 1-10, 0 means unrated
}

// Direct builds a direct download source for the given URL template.
func Direct(url string, priority SourcePriority) DownloadSource {
	return DownloadSource{Type: SourceDirect, Priority: priority, URL: url}
}

// Mirror builds a mirror source, optionally tagged with a region code.
func Mirror(url string, priority SourcePriority, region string) DownloadSource {
	return DownloadSource{Type: SourceMirror, Priority: priority, URL: url, Region: region}
}

// Torrent builds a source pointing at a .torrent file URL.
func Torrent(url string, priority SourcePriority) DownloadSource {
	return DownloadSource{Type: SourceTorrent, Priority: priority, URL: url}
}

// Magnet builds a magnet-link source with its tracker list.
func Magnet(magnet string, priority SourcePriority, trackers []string) DownloadSource {
	return DownloadSource{Type: SourceMagnet, Priority: priority, MagnetLink: magnet, Trackers: trackers}
}

// WithDescription returns a copy with a human-readable description.
func (s DownloadSource) WithDescription(desc string) DownloadSource {
	s.Description = desc
	return s
}

// AsVerified returns a copy marked as a verified source.
func (s DownloadSource) AsVerified() DownloadSource {
	s.Verified = true
	return s
}

// WithSpeedRating returns a copy with the rating clamped to 1-10.
func (s DownloadSource) WithSpeedRating(rating int) DownloadSource {
	if rating < 1 {
		rating = 1
	}
	if rating > 10 {
		rating = 10
	}
	s.SpeedRating = rating
	return s
}

// Endpoint returns the source's retrieval endpoint: the URL for HTTP and
// torrent-file sources, the magnet link for magnet sources.
func (s DownloadSource) Endpoint() string {
	if s.URL != "" {
		return s.URL
	}
	return s.MagnetLink
}

// IsUsable reports whether the type-appropriate endpoint field is populated.
// A source missing its required field is skipped during selection.
func (s DownloadSource) IsUsable() bool {
	if s.Type == SourceMagnet {
		return s.MagnetLink != ""
	}
	return s.URL != ""
}

// SelectionScore is the deterministic ranking used to choose among competing
// sources; higher is better. Priority dominates, then speed rating, then
// verification, then a fixed per-transport bonus.
func (s DownloadSource) SelectionScore() int {
	score := int(s.Priority) * 1000
	score += s.SpeedRating * 100
	if s.Verified {
		score += 500
	}
	switch s.Type {
	case SourceDirect:
		score += 200
	case SourceTorrent:
		score += 150
	case SourceMagnet:
		score += 100
	case SourceMirror:
		score += 50
	}
	return score
}

func (s DownloadSource) String() string {
	out := fmt.Sprintf("%s (%s)", s.Type, s.Priority)
	if s.Region != "" {
		out += fmt.Sprintf(" [%s]", s.Region)
	}
	if s.Description != "" {
		out += " - " + s.Description
	}
	return out
}

// SortSources orders sources best-first by selection score. The sort is
// stable: equal scores keep declaration order, which callers rely on for
// reproducible selection.
func SortSources(sources []DownloadSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].SelectionScore() > sources[j].SelectionScore()
	})
}

// SelectBestSource picks the highest-scoring usable source matching the
// caller's transport preference: torrent-preferring selection considers only
// torrent/magnet sources, otherwise only direct/mirror sources. It returns
// ErrNoUsableSource when nothing qualifies.
func SelectBestSource(sources []DownloadSource, preferTorrents bool) (DownloadSource, error) {
	var candidates []DownloadSource
	for _, s := range sources {
		isTorrent := s.Type == SourceTorrent || s.Type == SourceMagnet
		if isTorrent != preferTorrents {
			continue
		}
		if !s.IsUsable() {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return DownloadSource{}, ErrNoUsableSource
	}
	SortSources(candidates)
	return candidates[0], nil
}
