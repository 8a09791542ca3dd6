package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/airone01/isod/internal/safety"
)

// maxFeedResponseBytes caps what a version feed or API may make us buffer.
const maxFeedResponseBytes int64 = 16 * 1024 * 1024

// feedVersionLimit caps how many versions a single feed contributes.
const feedVersionLimit = 20

// VersionDetector discovers currently-available release versions from one
// upstream signal. Implementations may fail with transport or parse errors;
// the composite detector isolates those failures.
type VersionDetector interface {
	DetectVersions(ctx context.Context) ([]VersionInfo, error)
}

// fetchBody performs a GET with the shared metadata client and returns the
// response body, bounded by maxFeedResponseBytes.
func fetchBody(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	if _, err := safety.ValidateHTTPURL(url); err != nil {
		return nil, fmt.Errorf("invalid fetch URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", safety.DefaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := safety.ReadAllWithLimit(resp.Body, maxFeedResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// extractVersions runs the pattern's first capture group over body,
// deduplicating captured strings in order of appearance.
func extractVersions(body []byte, pattern *regexp.Regexp, releaseType ReleaseType) []VersionInfo {
	seen := make(map[string]struct{})
	var versions []VersionInfo
	for _, m := range pattern.FindAllSubmatch(body, -1) {
		if len(m) < 2 {
			continue
		}
		v := string(m[1])
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		versions = append(versions, VersionInfo{Version: v, ReleaseType: releaseType})
	}
	return versions
}

// FeedDetector extracts versions from an RSS/Atom feed (or any text page) by
// running a regex with one capture group over the raw body.
type FeedDetector struct {
	FeedURL     string
	Pattern     *regexp.Regexp
	ReleaseType ReleaseType

	client *http.Client
}

// NewFeedDetector compiles the version pattern and binds the shared client.
func NewFeedDetector(client *http.Client, feedURL, versionPattern string, releaseType ReleaseType) (*FeedDetector, error) {
	re, err := regexp.Compile(versionPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid version pattern %q: %w", versionPattern, err)
	}
	return &FeedDetector{FeedURL: feedURL, Pattern: re, ReleaseType: releaseType, client: client}, nil
}

func (d *FeedDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	body, err := fetchBody(ctx, d.client, d.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}

	versions := extractVersions(body, d.Pattern, d.ReleaseType)
	sortVersionsDesc(versions)
	if len(versions) > feedVersionLimit {
		versions = versions[:feedVersionLimit]
	}
	return versions, nil
}

// WebScrapeDetector extracts stable versions from an HTML page. The Selector
// field is accepted for forward compatibility but is not applied: extraction
// is regex-over-full-body, same as FeedDetector.
type WebScrapeDetector struct {
	PageURL  string
	Selector string
	Pattern  *regexp.Regexp

	client *http.Client
}

// NewWebScrapeDetector compiles the version pattern and binds the shared client.
func NewWebScrapeDetector(client *http.Client, pageURL, selector, versionPattern string) (*WebScrapeDetector, error) {
	re, err := regexp.Compile(versionPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid version pattern %q: %w", versionPattern, err)
	}
	return &WebScrapeDetector{PageURL: pageURL, Selector: selector, Pattern: re, client: client}, nil
}

func (d *WebScrapeDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	body, err := fetchBody(ctx, d.client, d.PageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}

	versions := extractVersions(body, d.Pattern, ReleaseStable)
	sortVersionsDesc(versions)
	return versions, nil
}

// APIDetector extracts versions from a JSON API returning a top-level array.
// Field access is shallow: the path must be "$.field" and names the member of
// each array element holding the version string.
type APIDetector struct {
	APIURL     string
	FieldPath  string
	AuthHeader string

	client *http.Client
}

// NewAPIDetector binds the shared client to an API endpoint.
func NewAPIDetector(client *http.Client, apiURL, fieldPath string) *APIDetector {
	return &APIDetector{APIURL: apiURL, FieldPath: fieldPath, client: client}
}

func (d *APIDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	var headers map[string]string
	if d.AuthHeader != "" {
		headers = map[string]string{"Authorization": d.AuthHeader}
	}

	body, err := fetchBody(ctx, d.client, d.APIURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetching API: %w", err)
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parsing API response: %w", err)
	}

	field, ok := strings.CutPrefix(d.FieldPath, "$.")
	if !ok {
		return nil, fmt.Errorf("unsupported field path %q: only $.field access is implemented", d.FieldPath)
	}

	var versions []VersionInfo
	for _, item := range items {
		raw, ok := item[field]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		versions = append(versions, VersionInfo{Version: v, ReleaseType: ReleaseStable})
	}
	return versions, nil
}

// gitHubRelease is the subset of the releases API payload we consume.
type gitHubRelease struct {
	TagName     string `json:"tag_name"`
	PublishedAt string `json:"published_at"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
}

// GitHubDetector lists a repository's releases through the GitHub API.
type GitHubDetector struct {
	Owner              string
	Repo               string
	VersionPrefix      string
	IncludePrereleases bool

	client *http.Client
	apiURL string // overridable for tests
}

// NewGitHubDetector binds the shared client to a repository's releases feed.
func NewGitHubDetector(client *http.Client, owner, repo string, includePrereleases bool) *GitHubDetector {
	return &GitHubDetector{
		Owner:              owner,
		Repo:               repo,
		IncludePrereleases: includePrereleases,
		client:             client,
		apiURL:             fmt.Sprintf("https://api.github.com/repos/%s/%s/releases", owner, repo),
	}
}

func (d *GitHubDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	body, err := fetchBody(ctx, d.client, d.apiURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetching releases: %w", err)
	}

	var releases []gitHubRelease
	if err := json.Unmarshal(body, &releases); err != nil {
		return nil, fmt.Errorf("parsing releases: %w", err)
	}

	var versions []VersionInfo
	for _, rel := range releases {
		if rel.Draft {
			continue
		}
		if rel.Prerelease && !d.IncludePrereleases {
			continue
		}

		version := rel.TagName
		if d.VersionPrefix != "" {
			version = strings.TrimPrefix(version, d.VersionPrefix)
		}
		version = strings.TrimPrefix(version, "v")

		releaseType := ReleaseStable
		if rel.Prerelease {
			switch {
			case strings.Contains(version, "rc"):
				releaseType = ReleaseRC
			case strings.Contains(version, "alpha"):
				releaseType = ReleaseAlpha
			default:
				// beta or anything unrecognized
				releaseType = ReleaseBeta
			}
		}

		info := VersionInfo{Version: version, ReleaseType: releaseType}
		if rel.PublishedAt != "" {
			// "2023-04-18T10:30:00Z" -> "2023-04-18"
			info.ReleaseDate, _, _ = strings.Cut(rel.PublishedAt, "T")
		}
		versions = append(versions, info)
	}
	return versions, nil
}

// StaticDetector returns a fixed version list verbatim. It is the last-resort
// fallback when every live source is unreachable.
type StaticDetector struct {
	Versions []VersionInfo
}

// NewStaticDetector wraps a fixed version list.
func NewStaticDetector(versions []VersionInfo) *StaticDetector {
	return &StaticDetector{Versions: versions}
}

func (d *StaticDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	out := make([]VersionInfo, len(d.Versions))
	copy(out, d.Versions)
	return out, nil
}

// CompositeDetector runs an ordered list of detectors, merging their output.
// A failing detector is logged and skipped; it never aborts the whole
// detection, so a static fallback later in the chain still produces usable
// output when every live source is dead.
type CompositeDetector struct {
	detectors []VersionDetector
	logger    *slog.Logger
}

// NewCompositeDetector builds an empty composite. Detectors run in the order
// they are added.
func NewCompositeDetector(logger *slog.Logger) *CompositeDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeDetector{logger: logger}
}

// Add appends a detector to the chain and returns the composite for chaining.
func (d *CompositeDetector) Add(detector VersionDetector) *CompositeDetector {
	d.detectors = append(d.detectors, detector)
	return d
}

// Len returns the number of detectors in the chain.
func (d *CompositeDetector) Len() int {
	return len(d.detectors)
}

func (d *CompositeDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	var all []VersionInfo
	for _, detector := range d.detectors {
		versions, err := detector.DetectVersions(ctx)
		if err != nil {
			d.logger.Warn("version detector failed", "detector", fmt.Sprintf("%T", detector), "error", err)
			continue
		}
		all = append(all, versions...)
	}

	sortVersionsDesc(all)
	return dedupeVersions(all), nil
}
