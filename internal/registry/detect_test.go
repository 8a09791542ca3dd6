package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeedDetector(t *testing.T) {
	feed := `<rss><item><title>Fedora 40 released</title></item>
<item><title>Fedora 39 is out</title></item>
<item><title>Fedora 40 respin</title></item></rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}))
	defer server.Close()

	d, err := NewFeedDetector(server.Client(), server.URL, `Fedora (\d+)`, ReleaseStable)
	if err != nil {
		t.Fatalf("creating detector: %v", err)
	}

	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(versions) != 2 {
		t.Fatalf("expected 2 deduplicated versions, got %d", len(versions))
	}
	if versions[0].Version != "40" || versions[1].Version != "39" {
		t.Errorf("expected [40 39] newest-first, got [%s %s]", versions[0].Version, versions[1].Version)
	}
}

func TestFeedDetectorCapsAtTwenty(t *testing.T) {
	body := ""
	for i := 1; i <= 30; i++ {
		body += fmt.Sprintf("release-%d\n", i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	d, err := NewFeedDetector(server.Client(), server.URL, `release-(\d+)`, ReleaseStable)
	if err != nil {
		t.Fatalf("creating detector: %v", err)
	}

	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(versions) != 20 {
		t.Errorf("expected cap of 20 versions, got %d", len(versions))
	}
	if versions[0].Version != "30" {
		t.Errorf("expected newest version 30 first, got %s", versions[0].Version)
	}
}

func TestFeedDetectorBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d, err := NewFeedDetector(server.Client(), server.URL, `(\d+)`, ReleaseStable)
	if err != nil {
		t.Fatalf("creating detector: %v", err)
	}
	if _, err := d.DetectVersions(context.Background()); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestWebScrapeDetectorSelectorUnused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="other">2024.06.01</div><div>2024.05.01</div>`)
	}))
	defer server.Close()

	// The selector does not constrain extraction; the regex runs over the
	// whole body.
	d, err := NewWebScrapeDetector(server.Client(), server.URL, ".download-info", `(\d{4}\.\d{2}\.\d{2})`)
	if err != nil {
		t.Fatalf("creating detector: %v", err)
	}

	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Version != "2024.06.01" {
		t.Errorf("expected 2024.06.01 first, got %s", versions[0].Version)
	}
	for _, v := range versions {
		if v.ReleaseType != ReleaseStable {
			t.Errorf("expected stable release type, got %s", v.ReleaseType)
		}
	}
}

func TestAPIDetector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"40","state":"current"},{"name":"39"},{"other":"x"}]`)
	}))
	defer server.Close()

	d := NewAPIDetector(server.Client(), server.URL, "$.name")
	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Version != "40" || versions[1].Version != "39" {
		t.Errorf("unexpected versions: %v", versions)
	}
}

func TestAPIDetectorRejectsNestedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	d := NewAPIDetector(server.Client(), server.URL, "releases[*].version")
	if _, err := d.DetectVersions(context.Background()); err == nil {
		t.Error("expected error for non-shallow field path")
	}
}

func TestGitHubDetector(t *testing.T) {
	payload := `[
		{"tag_name":"v1.2.0","published_at":"2024-04-18T10:30:00Z","prerelease":false,"draft":false},
		{"tag_name":"v1.3.0-rc1","published_at":"2024-05-01T08:00:00Z","prerelease":true,"draft":false},
		{"tag_name":"v1.3.0-beta2","published_at":"2024-04-25T08:00:00Z","prerelease":true,"draft":false},
		{"tag_name":"v9.9.9","published_at":"2024-06-01T00:00:00Z","prerelease":false,"draft":true}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
			t.Errorf("unexpected Accept header %q", got)
		}
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	d := NewGitHubDetector(server.Client(), "owner", "repo", true)
	d.apiURL = server.URL

	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Draft skipped, prereleases included and classified.
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	byVersion := make(map[string]VersionInfo)
	for _, v := range versions {
		byVersion[v.Version] = v
	}
	if v := byVersion["1.2.0"]; v.ReleaseType != ReleaseStable || v.ReleaseDate != "2024-04-18" {
		t.Errorf("unexpected stable release: %+v", v)
	}
	if v := byVersion["1.3.0-rc1"]; v.ReleaseType != ReleaseRC {
		t.Errorf("expected rc classification, got %+v", v)
	}
	if v := byVersion["1.3.0-beta2"]; v.ReleaseType != ReleaseBeta {
		t.Errorf("expected beta classification, got %+v", v)
	}
}

func TestGitHubDetectorSkipsPrereleases(t *testing.T) {
	payload := `[
		{"tag_name":"v2.0.0-rc1","prerelease":true,"draft":false},
		{"tag_name":"v1.0.0","prerelease":false,"draft":false}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	d := NewGitHubDetector(server.Client(), "owner", "repo", false)
	d.apiURL = server.URL

	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(versions) != 1 || versions[0].Version != "1.0.0" {
		t.Errorf("expected only the stable release, got %v", versions)
	}
}

func TestStaticDetectorReturnsCopy(t *testing.T) {
	fixed := []VersionInfo{
		{Version: "40", ReleaseType: ReleaseStable},
		{Version: "39", ReleaseType: ReleaseStable},
	}
	d := NewStaticDetector(fixed)

	versions, err := d.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}

	versions[0].Version = "mutated"
	if d.Versions[0].Version != "40" {
		t.Error("detector's backing list must not be mutated through results")
	}
}

// failingDetector always errors, standing in for a dead upstream.
type failingDetector struct{}

func (failingDetector) DetectVersions(ctx context.Context) ([]VersionInfo, error) {
	return nil, errors.New("upstream unreachable")
}

func TestCompositeDetectorSwallowsFailures(t *testing.T) {
	static := NewStaticDetector([]VersionInfo{
		{Version: "22.04", ReleaseType: ReleaseLTS},
		{Version: "23.10", ReleaseType: ReleaseStable},
	})

	composite := NewCompositeDetector(testLogger()).
		Add(failingDetector{}).
		Add(static)

	versions, err := composite.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("composite must not fail when a fallback succeeds, got %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions from the fallback, got %d", len(versions))
	}
}

func TestCompositeDetectorMergesAndDedupes(t *testing.T) {
	a := NewStaticDetector([]VersionInfo{
		{Version: "22.04", ReleaseType: ReleaseLTS},
		{Version: "24.04", ReleaseType: ReleaseLTS},
	})
	b := NewStaticDetector([]VersionInfo{
		{Version: "24.04", ReleaseType: ReleaseStable}, // duplicate, lower rank
		{Version: "23.10", ReleaseType: ReleaseStable},
	})

	composite := NewCompositeDetector(testLogger()).Add(a).Add(b)
	versions, err := composite.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("expected 3 deduplicated versions, got %d", len(versions))
	}
	// Sorted non-increasing, no duplicate version strings.
	seen := make(map[string]bool)
	for i, v := range versions {
		if seen[v.Version] {
			t.Errorf("duplicate version %s", v.Version)
		}
		seen[v.Version] = true
		if i > 0 && versions[i-1].Compare(v) < 0 {
			t.Errorf("versions not sorted at index %d", i)
		}
	}
	// The duplicate kept the higher-ranked (LTS) occurrence.
	if versions[0].Version != "24.04" || versions[0].ReleaseType != ReleaseLTS {
		t.Errorf("expected 24.04 LTS first, got %+v", versions[0])
	}
}

func TestCompositeDetectorAllFailed(t *testing.T) {
	composite := NewCompositeDetector(testLogger()).
		Add(failingDetector{}).
		Add(failingDetector{})

	versions, err := composite.DetectVersions(context.Background())
	if err != nil {
		t.Fatalf("composite never propagates member failures, got %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("expected empty result, got %d versions", len(versions))
	}
}
