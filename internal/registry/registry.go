// Package registry resolves (distro, version, arch, variant) requests into
// concrete download descriptors using per-distribution catalog entries and
// pluggable version detection.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/airone01/isod/internal/checksum"
	"github.com/airone01/isod/internal/safety"
)

// Resolution failure sentinels.
var (
	ErrUnknownDistro           = errors.New("unknown distro")
	ErrVersionNotFound         = errors.New("version not found")
	ErrNoVersionsAvailable     = errors.New("no versions available")
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	ErrUnsupportedVariant      = errors.New("unsupported variant")
	ErrNoUsableSource          = errors.New("no usable download source")
)

// detectionCacheTTL bounds how long detected version lists are reused before
// upstreams are consulted again.
const detectionCacheTTL = 1 * time.Hour

// maxChecksumResponseBytes caps a checksum file fetch.
const maxChecksumResponseBytes int64 = 4 * 1024 * 1024

// DistroDefinition is one distribution's catalog entry: identity, supported
// build matrix, a version detector, and templated retrieval metadata.
// Definitions are built once and never mutated afterwards.
type DistroDefinition struct {
	Name                   string
	DisplayName            string
	Description            string
	Homepage               string
	SupportedArchitectures []string
	SupportedVariants      []string
	Detector               VersionDetector
	DownloadSources        []DownloadSource // templated; resolved per request
	FilenamePattern        string
	DefaultVariant         string
	ChecksumURLs           []string // templated, tried in order
	ChecksumType           string   // e.g. "sha256"; defaults to sha256 when empty
}

// IsoInfo is a fully resolved download descriptor for one request. The caller
// owns it for the lifetime of a single download operation; it is not cached.
type IsoInfo struct {
	Distro          string
	Version         string
	Architecture    string
	Variant         string
	Filename        string
	DownloadSources []DownloadSource // concrete URLs, templates resolved
	Checksum        string           // lazily fetched, may be empty
	ChecksumType    string
	ReleaseDate     string
	SizeBytes       int64 // 0 until known
	ReleaseType     ReleaseType
}

func (i IsoInfo) String() string {
	s := fmt.Sprintf("%s-%s-%s", i.Distro, i.Version, i.Architecture)
	if i.Variant != "" {
		s += "-" + i.Variant
	}
	return s + ".iso"
}

type cachedDetection struct {
	versions  []VersionInfo
	fetchedAt time.Time
}

// Registry holds the built-in distro catalog plus user-added custom entries,
// and resolves download requests against them. Reads are safe for concurrent
// use; catalog mutation takes the write lock and is rare.
type Registry struct {
	mu      sync.RWMutex
	distros map[string]*DistroDefinition
	custom  map[string]*DistroDefinition
	cache   map[string]cachedDetection

	client   *http.Client
	logger   *slog.Logger
	cacheTTL time.Duration
}

// New creates an empty registry bound to the shared metadata HTTP client.
// Built-in definitions are registered by the caller (see the distros package).
func New(client *http.Client, logger *slog.Logger) *Registry {
	return &Registry{
		distros:  make(map[string]*DistroDefinition),
		custom:   make(map[string]*DistroDefinition),
		cache:    make(map[string]cachedDetection),
		client:   client,
		logger:   logger,
		cacheTTL: detectionCacheTTL,
	}
}

// Client returns the shared metadata HTTP client, for wiring detectors.
func (r *Registry) Client() *http.Client {
	return r.client
}

// Register adds a built-in distro definition.
func (r *Registry) Register(def *DistroDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.distros[def.Name] = def
}

// AddCustom adds or replaces a user-defined distro.
func (r *Registry) AddCustom(def *DistroDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[def.Name] = def
	r.logger.Info("added custom distro definition", "distro", def.Name)
}

// RemoveCustom deletes a user-defined distro, reporting whether it existed.
func (r *Registry) RemoveCustom(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.custom[name]
	if ok {
		delete(r.custom, name)
		delete(r.cache, name)
		r.logger.Info("removed custom distro definition", "distro", name)
	}
	return ok
}

// Get returns the definition for a distro, custom entries shadowing built-ins.
func (r *Registry) Get(name string) (*DistroDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.custom[name]; ok {
		return def, true
	}
	def, ok := r.distros[name]
	return def, ok
}

// IsSupported reports whether the distro is known to the registry.
func (r *Registry) IsSupported(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all known distro names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.distros)+len(r.custom))
	for name := range r.distros {
		names = append(names, name)
	}
	for name := range r.custom {
		if _, shadowed := r.distros[name]; !shadowed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Search returns distro names whose name, display name or description
// contains the query, case-insensitively.
func (r *Registry) Search(query string) []string {
	q := strings.ToLower(query)
	var matches []string
	for _, name := range r.Names() {
		def, _ := r.Get(name)
		if strings.Contains(name, q) ||
			strings.Contains(strings.ToLower(def.DisplayName), q) ||
			strings.Contains(strings.ToLower(def.Description), q) {
			matches = append(matches, name)
		}
	}
	return matches
}

// AvailableVersions runs the distro's detector, serving cached results while
// they are fresh.
func (r *Registry) AvailableVersions(ctx context.Context, distro string) ([]VersionInfo, error) {
	def, ok := r.Get(distro)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDistro, distro)
	}

	r.mu.RLock()
	entry, cached := r.cache[distro]
	r.mu.RUnlock()
	if cached && time.Since(entry.fetchedAt) <= r.cacheTTL {
		return entry.versions, nil
	}

	versions, err := def.Detector.DetectVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting versions for %s: %w", distro, err)
	}

	r.mu.Lock()
	r.cache[distro] = cachedDetection{versions: versions, fetchedAt: time.Now()}
	r.mu.Unlock()
	return versions, nil
}

// InvalidateCache drops any cached detection result for the distro.
func (r *Registry) InvalidateCache(distro string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, distro)
}

// LatestVersion picks the newest stable/LTS version, falling back to the
// overall newest when nothing stable was detected. It fails with
// ErrNoVersionsAvailable only when detection itself returned nothing.
func (r *Registry) LatestVersion(ctx context.Context, distro string) (VersionInfo, error) {
	versions, err := r.AvailableVersions(ctx, distro)
	if err != nil {
		return VersionInfo{}, err
	}
	if len(versions) == 0 {
		return VersionInfo{}, fmt.Errorf("%w for %s", ErrNoVersionsAvailable, distro)
	}

	var best VersionInfo
	found := false
	for _, v := range versions {
		if !v.ReleaseType.IsStable() {
			continue
		}
		if !found || v.Newer(best) {
			best = v
			found = true
		}
	}
	if found {
		return best, nil
	}

	best = versions[0]
	for _, v := range versions[1:] {
		if v.Newer(best) {
			best = v
		}
	}
	return best, nil
}

// VersionExists reports whether the exact version string was detected.
func (r *Registry) VersionExists(ctx context.Context, distro, version string) (bool, error) {
	versions, err := r.AvailableVersions(ctx, distro)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.Version == version {
			return true, nil
		}
	}
	return false, nil
}

// GetIsoInfo resolves a request into a concrete download descriptor. Empty
// version selects the latest stable release, empty arch the first supported
// architecture, empty variant the distro's default variant (which may itself
// be unset).
func (r *Registry) GetIsoInfo(ctx context.Context, distro, version, arch, variant string) (*IsoInfo, error) {
	def, ok := r.Get(distro)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDistro, distro)
	}

	var versionInfo VersionInfo
	if version != "" {
		versions, err := r.AvailableVersions(ctx, distro)
		if err != nil {
			return nil, err
		}
		found := false
		for _, v := range versions {
			if v.Version == version {
				versionInfo = v
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s %s", ErrVersionNotFound, distro, version)
		}
	} else {
		var err error
		versionInfo, err = r.LatestVersion(ctx, distro)
		if err != nil {
			return nil, err
		}
	}

	if arch == "" {
		if len(def.SupportedArchitectures) > 0 {
			arch = def.SupportedArchitectures[0]
		}
	} else if !contains(def.SupportedArchitectures, arch) {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedArchitecture, arch, distro)
	}

	if variant == "" {
		variant = def.DefaultVariant
	} else if !contains(def.SupportedVariants, variant) {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedVariant, variant, distro)
	}

	filename := generateFilename(def, versionInfo.Version, arch, variant)

	sources := make([]DownloadSource, 0, len(def.DownloadSources))
	for _, src := range def.DownloadSources {
		resolved := src
		if resolved.URL != "" {
			resolved.URL = ResolveTemplate(resolved.URL, versionInfo.Version, arch, variant, filename)
		}
		if resolved.MagnetLink != "" {
			resolved.MagnetLink = ResolveTemplate(resolved.MagnetLink, versionInfo.Version, arch, variant, filename)
		}
		sources = append(sources, resolved)
	}

	checksumType := def.ChecksumType
	if checksumType == "" {
		checksumType = "sha256"
	}

	return &IsoInfo{
		Distro:          distro,
		Version:         versionInfo.Version,
		Architecture:    arch,
		Variant:         variant,
		Filename:        filename,
		DownloadSources: sources,
		ChecksumType:    checksumType,
		ReleaseDate:     versionInfo.ReleaseDate,
		ReleaseType:     versionInfo.ReleaseType,
	}, nil
}

// GetChecksum tries each of the distro's checksum URL templates in order and
// scans the fetched files for the image's digest. Exhausting every URL
// without a match is not an error: the result is simply empty. Fallback URLs
// may carry a different algorithm than the definition declares (MD5SUMS next
// to SHA256SUMS), so the algorithm is re-inferred from the matched digest's
// length and info.ChecksumType updated on disagreement.
func (r *Registry) GetChecksum(ctx context.Context, info *IsoInfo) (string, error) {
	def, ok := r.Get(info.Distro)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDistro, info.Distro)
	}

	for _, tpl := range def.ChecksumURLs {
		url := ResolveTemplate(tpl, info.Version, info.Architecture, info.Variant, info.Filename)

		digest, err := r.fetchChecksum(ctx, url, info.Filename)
		if err != nil {
			r.logger.Debug("checksum fetch failed", "url", url, "error", err)
			continue
		}
		if digest != "" {
			if alg, ok := checksum.AlgorithmForDigest(digest); ok && string(alg) != info.ChecksumType {
				r.logger.Debug("checksum algorithm inferred from digest",
					"url", url, "declared", info.ChecksumType, "inferred", string(alg))
				info.ChecksumType = string(alg)
			}
			return digest, nil
		}
	}
	return "", nil
}

// fetchChecksum downloads one checksum file and scans it for the filename.
// Returns empty (no error) when the file parses but has no matching entry.
func (r *Registry) fetchChecksum(ctx context.Context, url, filename string) (string, error) {
	if _, err := safety.ValidateHTTPURL(url); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", safety.DefaultUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := safety.ReadAllWithLimit(resp.Body, maxChecksumResponseBytes)
	if err != nil {
		return "", err
	}

	return scanChecksumFile(string(body), filename), nil
}

// scanChecksumFile looks for the filename's digest accepting three formats:
// "hex filename", "hex *filename" (binary marker), and "filename: hex".
// Filename comparison accepts exact and suffix matches.
func scanChecksumFile(content, filename string) string {
	matchesFile := func(candidate string) bool {
		return candidate == filename || strings.HasSuffix(candidate, filename)
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 2 {
			digest := fields[0]
			name := strings.TrimPrefix(fields[1], "*")
			if matchesFile(name) && isHex(digest) {
				return strings.ToLower(digest)
			}
		}

		// "filename: hex" variant
		if name, digest, ok := strings.Cut(line, ":"); ok {
			name = strings.TrimSpace(name)
			digest = strings.TrimSpace(digest)
			if matchesFile(name) && isHex(digest) {
				return strings.ToLower(digest)
			}
		}
	}
	return ""
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// generateFilename substitutes the definition's filename pattern. When no
// variant is in play, the {variant} placeholder is stripped together with a
// single adjacent separator so patterns like "name-{variant}-{arch}" collapse
// cleanly.
func generateFilename(def *DistroDefinition, version, arch, variant string) string {
	filename := def.FilenamePattern
	filename = strings.ReplaceAll(filename, "{distro}", def.Name)
	filename = strings.ReplaceAll(filename, "{version}", version)
	filename = strings.ReplaceAll(filename, "{arch}", arch)
	return substituteVariant(filename, variant)
}

// ResolveTemplate substitutes the standard placeholders into a URL or
// filename template. An empty variant strips the placeholder with one
// adjacent separator ('-', '_' or '/') when present.
func ResolveTemplate(tpl, version, arch, variant, filename string) string {
	out := tpl
	out = strings.ReplaceAll(out, "{version}", version)
	out = strings.ReplaceAll(out, "{arch}", arch)
	out = strings.ReplaceAll(out, "{filename}", filename)
	return substituteVariant(out, variant)
}

func substituteVariant(s, variant string) string {
	if variant != "" {
		return strings.ReplaceAll(s, "{variant}", variant)
	}
	for _, sep := range []string{"-", "_", "/"} {
		s = strings.ReplaceAll(s, sep+"{variant}", "")
		s = strings.ReplaceAll(s, "{variant}"+sep, "")
	}
	return strings.ReplaceAll(s, "{variant}", "")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
