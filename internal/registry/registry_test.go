package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fedoraLikeDefinition() *DistroDefinition {
	return &DistroDefinition{
		Name:                   "fedora",
		DisplayName:            "Fedora",
		Description:            "A cutting-edge Linux distribution",
		Homepage:               "https://getfedora.org",
		SupportedArchitectures: []string{"x86_64", "aarch64"},
		SupportedVariants:      []string{"workstation", "server"},
		DefaultVariant:         "workstation",
		Detector: NewStaticDetector([]VersionInfo{
			{Version: "40", ReleaseType: ReleaseStable, ReleaseDate: "2024-04-23"},
			{Version: "39", ReleaseType: ReleaseStable, ReleaseDate: "2023-11-07"},
			{Version: "41", ReleaseType: ReleaseBeta},
		}),
		DownloadSources: []DownloadSource{
			Direct("https://download.example.org/releases/{version}/{variant}/{arch}/iso/{filename}", PriorityPreferred).AsVerified(),
			Mirror("https://mirror.example.org/releases/{version}/{arch}/{filename}", PriorityHigh, "US").WithSpeedRating(9),
			Torrent("https://torrent.example.org/torrents/{filename}.torrent", PriorityHigh),
		},
		FilenamePattern: "Fedora-{variant}-Live-{arch}-{version}-1.5.iso",
		ChecksumURLs:    []string{"https://download.example.org/releases/{version}/CHECKSUM"},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(&http.Client{Timeout: 5 * time.Second}, testLogger())
	r.Register(fedoraLikeDefinition())
	return r
}

func TestGetIsoInfoResolvesLatestStable(t *testing.T) {
	r := newTestRegistry(t)

	info, err := r.GetIsoInfo(context.Background(), "fedora", "", "x86_64", "workstation")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if info.Version != "40" {
		t.Errorf("expected latest stable 40, got %s", info.Version)
	}
	if info.Filename != "Fedora-workstation-Live-x86_64-40-1.5.iso" {
		t.Errorf("unexpected filename %s", info.Filename)
	}
	if len(info.DownloadSources) == 0 {
		t.Fatal("expected non-empty source list")
	}

	usable := false
	for _, s := range info.DownloadSources {
		if s.IsUsable() {
			usable = true
		}
	}
	if !usable {
		t.Error("expected at least one usable source")
	}

	// Templates fully resolved.
	want := "https://download.example.org/releases/40/workstation/x86_64/iso/Fedora-workstation-Live-x86_64-40-1.5.iso"
	if info.DownloadSources[0].URL != want {
		t.Errorf("expected resolved URL %s, got %s", want, info.DownloadSources[0].URL)
	}
}

func TestGetIsoInfoDefaults(t *testing.T) {
	r := newTestRegistry(t)

	info, err := r.GetIsoInfo(context.Background(), "fedora", "", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.Architecture != "x86_64" {
		t.Errorf("expected first supported arch, got %s", info.Architecture)
	}
	if info.Variant != "workstation" {
		t.Errorf("expected default variant, got %s", info.Variant)
	}
	if info.ChecksumType != "sha256" {
		t.Errorf("expected sha256 default checksum type, got %s", info.ChecksumType)
	}
}

func TestGetIsoInfoErrors(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.GetIsoInfo(ctx, "slackware", "", "", ""); !errors.Is(err, ErrUnknownDistro) {
		t.Errorf("expected ErrUnknownDistro, got %v", err)
	}
	if _, err := r.GetIsoInfo(ctx, "fedora", "99", "", ""); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
	if _, err := r.GetIsoInfo(ctx, "fedora", "", "sparc", ""); !errors.Is(err, ErrUnsupportedArchitecture) {
		t.Errorf("expected ErrUnsupportedArchitecture, got %v", err)
	}
	if _, err := r.GetIsoInfo(ctx, "fedora", "", "", "cloud"); !errors.Is(err, ErrUnsupportedVariant) {
		t.Errorf("expected ErrUnsupportedVariant, got %v", err)
	}
}

func TestGetIsoInfoExactVersion(t *testing.T) {
	r := newTestRegistry(t)

	info, err := r.GetIsoInfo(context.Background(), "fedora", "39", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.Version != "39" || info.ReleaseDate != "2023-11-07" {
		t.Errorf("unexpected version info: %+v", info)
	}
}

func TestLatestVersionFallsBackToUnstable(t *testing.T) {
	r := New(&http.Client{}, testLogger())
	r.Register(&DistroDefinition{
		Name: "nightly",
		Detector: NewStaticDetector([]VersionInfo{
			{Version: "2024.08.01", ReleaseType: ReleaseDaily},
			{Version: "2024.08.02", ReleaseType: ReleaseDaily},
		}),
		SupportedArchitectures: []string{"x86_64"},
		FilenamePattern:        "nightly-{version}-{arch}.iso",
	})

	latest, err := r.LatestVersion(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("expected fallback to overall max, got %v", err)
	}
	if latest.Version != "2024.08.02" {
		t.Errorf("expected 2024.08.02, got %s", latest.Version)
	}
}

func TestLatestVersionNoVersions(t *testing.T) {
	r := New(&http.Client{}, testLogger())
	r.Register(&DistroDefinition{
		Name:     "empty",
		Detector: NewStaticDetector(nil),
	})

	_, err := r.LatestVersion(context.Background(), "empty")
	if !errors.Is(err, ErrNoVersionsAvailable) {
		t.Errorf("expected ErrNoVersionsAvailable, got %v", err)
	}
}

func TestGenerateFilenameVariants(t *testing.T) {
	ubuntu := &DistroDefinition{Name: "ubuntu", FilenamePattern: "ubuntu-{version}-{variant}-{arch}.iso"}
	if got := generateFilename(ubuntu, "22.04", "amd64", "desktop"); got != "ubuntu-22.04-desktop-amd64.iso" {
		t.Errorf("expected ubuntu-22.04-desktop-amd64.iso, got %s", got)
	}
	// No variant: placeholder and its separator are stripped.
	if got := generateFilename(ubuntu, "22.04", "amd64", ""); got != "ubuntu-22.04-amd64.iso" {
		t.Errorf("expected ubuntu-22.04-amd64.iso, got %s", got)
	}

	// Pattern without a variant placeholder passes through untouched.
	arch := &DistroDefinition{Name: "arch", FilenamePattern: "archlinux-{version}-{arch}.iso"}
	if got := generateFilename(arch, "2024.06.01", "x86_64", ""); got != "archlinux-2024.06.01-x86_64.iso" {
		t.Errorf("expected archlinux-2024.06.01-x86_64.iso, got %s", got)
	}
}

func TestResolveTemplateVariantSeparators(t *testing.T) {
	cases := []struct {
		tpl, want string
	}{
		{"https://x/{variant}/{arch}/{filename}", "https://x/amd64/f.iso"},
		{"name_{variant}_{arch}", "name_amd64"},
		{"{variant}-rest", "rest"},
		{"plain-{variant}", "plain"},
	}
	for _, tc := range cases {
		if got := ResolveTemplate(tc.tpl, "1.0", "amd64", "", "f.iso"); got != tc.want {
			t.Errorf("ResolveTemplate(%q): expected %q, got %q", tc.tpl, tc.want, got)
		}
	}
}

func TestDetectionCache(t *testing.T) {
	calls := 0
	r := New(&http.Client{}, testLogger())
	r.Register(&DistroDefinition{
		Name: "counted",
		Detector: detectorFunc(func(ctx context.Context) ([]VersionInfo, error) {
			calls++
			return []VersionInfo{{Version: "1", ReleaseType: ReleaseStable}}, nil
		}),
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.AvailableVersions(ctx, "counted"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 detection call with warm cache, got %d", calls)
	}

	r.InvalidateCache("counted")
	if _, err := r.AvailableVersions(ctx, "counted"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected re-detection after invalidation, got %d calls", calls)
	}
}

type detectorFunc func(ctx context.Context) ([]VersionInfo, error)

func (f detectorFunc) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	return f(ctx)
}

func TestCustomDistroLifecycle(t *testing.T) {
	r := newTestRegistry(t)

	r.AddCustom(&DistroDefinition{
		Name:        "custom",
		DisplayName: "Custom Distro",
		Detector:    NewStaticDetector([]VersionInfo{{Version: "1.0", ReleaseType: ReleaseStable}}),
	})

	if !r.IsSupported("custom") {
		t.Error("expected custom distro to be supported")
	}
	names := r.Names()
	if len(names) != 2 {
		t.Errorf("expected 2 distros, got %v", names)
	}

	if !r.RemoveCustom("custom") {
		t.Error("expected removal to report true")
	}
	if r.RemoveCustom("custom") {
		t.Error("expected second removal to report false")
	}
	if r.IsSupported("custom") {
		t.Error("expected custom distro to be gone")
	}
}

func TestSearch(t *testing.T) {
	r := newTestRegistry(t)

	if got := r.Search("cutting-edge"); len(got) != 1 || got[0] != "fedora" {
		t.Errorf("expected description match, got %v", got)
	}
	if got := r.Search("FED"); len(got) != 1 {
		t.Errorf("expected case-insensitive match, got %v", got)
	}
	if got := r.Search("nonexistent"); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}

func TestGetChecksum(t *testing.T) {
	const filename = "Fedora-workstation-Live-x86_64-40-1.5.iso"
	const digest = "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"

	mux := http.NewServeMux()
	mux.HandleFunc("/dead/CHECKSUM", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/live/CHECKSUM", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# Fedora 40 checksums\n%s *%s\nother 123abc\n", digest, filename)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := New(server.Client(), testLogger())
	def := fedoraLikeDefinition()
	// First URL fails, second has the digest.
	def.ChecksumURLs = []string{server.URL + "/dead/CHECKSUM", server.URL + "/live/CHECKSUM"}
	r.Register(def)

	info, err := r.GetIsoInfo(context.Background(), "fedora", "40", "x86_64", "workstation")
	if err != nil {
		t.Fatalf("resolving info: %v", err)
	}

	checksum, err := r.GetChecksum(context.Background(), info)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if checksum != digest {
		t.Errorf("expected %s, got %s", digest, checksum)
	}
}

// A fallback checksum URL can serve a different algorithm than the
// definition declares; the type on the descriptor must follow the digest
// actually found or verification always fails.
func TestGetChecksumInfersAlgorithmFromFallback(t *testing.T) {
	const filename = "Fedora-workstation-Live-x86_64-40-1.5.iso"
	const md5Digest = "65a8e27d8879283831b664bd8b7f0ad4"

	mux := http.NewServeMux()
	mux.HandleFunc("/SHA256SUMS", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/MD5SUMS", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s *%s\n", md5Digest, filename)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := New(server.Client(), testLogger())
	def := fedoraLikeDefinition()
	def.ChecksumURLs = []string{server.URL + "/SHA256SUMS", server.URL + "/MD5SUMS"}
	r.Register(def)

	info, err := r.GetIsoInfo(context.Background(), "fedora", "40", "x86_64", "workstation")
	if err != nil {
		t.Fatalf("resolving info: %v", err)
	}
	if info.ChecksumType != "sha256" {
		t.Fatalf("expected declared type sha256, got %s", info.ChecksumType)
	}

	checksum, err := r.GetChecksum(context.Background(), info)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if checksum != md5Digest {
		t.Errorf("expected %s, got %s", md5Digest, checksum)
	}
	if info.ChecksumType != "md5" {
		t.Errorf("expected type inferred as md5, got %s", info.ChecksumType)
	}
}

func TestGetChecksumNotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "abc123 some-other-file.iso\n")
	}))
	defer server.Close()

	r := New(server.Client(), testLogger())
	def := fedoraLikeDefinition()
	def.ChecksumURLs = []string{server.URL + "/CHECKSUM"}
	r.Register(def)

	info, err := r.GetIsoInfo(context.Background(), "fedora", "40", "x86_64", "workstation")
	if err != nil {
		t.Fatalf("resolving info: %v", err)
	}

	checksum, err := r.GetChecksum(context.Background(), info)
	if err != nil {
		t.Fatalf("no-match must not be an error, got %v", err)
	}
	if checksum != "" {
		t.Errorf("expected empty checksum, got %s", checksum)
	}
}

func TestScanChecksumFileFormats(t *testing.T) {
	const digest = "65a8e27d8879283831b664bd8b7f0ad4"

	cases := []struct {
		name    string
		content string
	}{
		{"plain", digest + " image.iso"},
		{"binary marker", digest + " *image.iso"},
		{"colon", "image.iso: " + digest},
		{"suffix path", digest + " iso/image.iso"},
	}
	for _, tc := range cases {
		if got := scanChecksumFile(tc.content, "image.iso"); got != digest {
			t.Errorf("%s: expected %s, got %q", tc.name, digest, got)
		}
	}

	if got := scanChecksumFile("not-hex image.iso", "image.iso"); got != "" {
		t.Errorf("expected non-hex token rejected, got %q", got)
	}
	if got := scanChecksumFile("# "+digest+" image.iso", "image.iso"); got != "" {
		t.Errorf("expected comment line skipped, got %q", got)
	}
}
