package distros

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/airone01/isod/internal/registry"
)

// Debian builds the definition for Debian release images.
func Debian(client *http.Client, logger *slog.Logger) (*registry.DistroDefinition, error) {
	scraper, err := registry.NewWebScrapeDetector(client,
		"https://www.debian.org/releases/",
		".release-info .version",
		`(\d+\.\d+)`)
	if err != nil {
		return nil, fmt.Errorf("debian scrape detector: %w", err)
	}
	feed, err := registry.NewFeedDetector(client,
		"https://www.debian.org/News/news",
		`Debian (\d+\.\d+)`,
		registry.ReleaseStable)
	if err != nil {
		return nil, fmt.Errorf("debian feed detector: %w", err)
	}

	detector := registry.NewCompositeDetector(logger).
		Add(scraper).
		Add(feed).
		Add(registry.NewStaticDetector([]registry.VersionInfo{
			{
				Version:         "12.11.0",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-12-15",
				DownloadURLBase: "https://cdimage.debian.org/debian-cd/current/",
				Notes:           "Bookworm - Current stable",
			},
			{
				Version:         "12.10.0",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-11-09",
				DownloadURLBase: "https://cdimage.debian.org/debian-cd/12.10.0/",
				Notes:           "Bookworm - Previous stable",
			},
			{
				Version:         "11.11.0",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-11-09",
				DownloadURLBase: "https://cdimage.debian.org/debian-cd/11.11.0/",
				Notes:           "Bullseye - Oldstable",
			},
			{
				Version:         "13.0",
				ReleaseType:     registry.ReleaseBeta,
				DownloadURLBase: "https://cdimage.debian.org/cdimage/weekly-builds/",
				Notes:           "Trixie - Testing",
			},
		}))

	return &registry.DistroDefinition{
		Name:        "debian",
		DisplayName: "Debian",
		Description: "The universal operating system - a stable, free Linux distribution",
		Homepage:    "https://www.debian.org",
		SupportedArchitectures: []string{
			"amd64", "i386", "arm64", "armel", "armhf",
			"mips64el", "mipsel", "ppc64el", "s390x",
		},
		SupportedVariants: []string{"netinst", "cd", "dvd", "live", "firmware"},
		DefaultVariant:    "netinst",
		Detector:          detector,
		DownloadSources: []registry.DownloadSource{
			registry.Direct("https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/{filename}", registry.PriorityPreferred).
				WithDescription("Official Debian CD images").AsVerified(),
			registry.Direct("https://cdimage.debian.org/debian-cd/current/{arch}/iso-dvd/{filename}", registry.PriorityPreferred).
				WithDescription("Official Debian DVD images").AsVerified(),
			registry.Mirror("https://mirrors.kernel.org/debian-cd/current/{arch}/iso-cd/{filename}", registry.PriorityHigh, "US").
				WithDescription("Kernel.org mirror").WithSpeedRating(9),
			registry.Mirror("https://debian.osuosl.org/debian-cd/current/{arch}/iso-cd/{filename}", registry.PriorityHigh, "US").
				WithDescription("Oregon State University mirror").WithSpeedRating(8),
			registry.Mirror("https://ftp.debian.org/debian-cd/current/{arch}/iso-cd/{filename}", registry.PriorityMedium, "EU").
				WithDescription("Official FTP mirror"),
			registry.Mirror("https://mirror.aarnet.edu.au/pub/debian-cd/current/{arch}/iso-cd/{filename}", registry.PriorityMedium, "AU").
				WithDescription("AARNet Australian mirror"),
			registry.Mirror("https://ftp.jaist.ac.jp/pub/Linux/debian-cd/current/{arch}/iso-cd/{filename}", registry.PriorityMedium, "JP").
				WithDescription("JAIST Japan mirror"),
			registry.Torrent("https://cdimage.debian.org/debian-cd/current/{arch}/bt-cd/{filename}.torrent", registry.PriorityHigh).
				WithDescription("Official Debian torrent"),
		},
		FilenamePattern: "debian-{version}-{arch}-{variant}.iso",
		ChecksumURLs: []string{
			"https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/SHA256SUMS",
			"https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/SHA512SUMS",
			"https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/MD5SUMS",
		},
	}, nil
}
