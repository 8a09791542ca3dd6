package distros

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/airone01/isod/internal/registry"
)

// Fedora builds the definition for Fedora release images.
func Fedora(client *http.Client, logger *slog.Logger) (*registry.DistroDefinition, error) {
	feed, err := registry.NewFeedDetector(client,
		"https://fedoraproject.org/wiki/Releases?action=rss",
		`Fedora (\d+)`,
		registry.ReleaseStable)
	if err != nil {
		return nil, fmt.Errorf("fedora feed detector: %w", err)
	}

	detector := registry.NewCompositeDetector(logger).
		Add(feed).
		Add(registry.NewAPIDetector(client,
			"https://bodhi.fedoraproject.org/releases/",
			"$.version")).
		Add(registry.NewStaticDetector([]registry.VersionInfo{
			{
				Version:         "40",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-04-23",
				DownloadURLBase: "https://download.fedoraproject.org/pub/fedora/linux/releases/40/",
			},
			{
				Version:         "39",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2023-11-07",
				DownloadURLBase: "https://download.fedoraproject.org/pub/fedora/linux/releases/39/",
			},
			{
				Version:         "38",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2023-04-18",
				DownloadURLBase: "https://download.fedoraproject.org/pub/fedora/linux/releases/38/",
			},
			{
				Version:         "37",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2022-11-15",
				DownloadURLBase: "https://download.fedoraproject.org/pub/fedora/linux/releases/37/",
			},
		}))

	return &registry.DistroDefinition{
		Name:        "fedora",
		DisplayName: "Fedora",
		Description: "A cutting-edge Linux distribution sponsored by Red Hat",
		Homepage:    "https://getfedora.org",
		SupportedArchitectures: []string{
			"x86_64", "aarch64", "armhfp", "ppc64le", "s390x",
		},
		SupportedVariants: []string{"workstation", "server", "netinst", "everything"},
		DefaultVariant:    "workstation",
		Detector:          detector,
		DownloadSources: []registry.DownloadSource{
			registry.Direct("https://download.fedoraproject.org/pub/fedora/linux/releases/{version}/Workstation/{arch}/iso/{filename}", registry.PriorityPreferred).
				WithDescription("Official Fedora downloads").AsVerified(),
			registry.Direct("https://download.fedoraproject.org/pub/fedora/linux/releases/{version}/Server/{arch}/iso/{filename}", registry.PriorityPreferred).
				WithDescription("Official Fedora Server downloads").AsVerified(),
			registry.Mirror("https://mirrors.kernel.org/fedora/releases/{version}/Workstation/{arch}/iso/{filename}", registry.PriorityHigh, "US").
				WithDescription("Kernel.org mirror").WithSpeedRating(9),
			registry.Mirror("https://fedora.mirror.constant.com/releases/{version}/Workstation/{arch}/iso/{filename}", registry.PriorityHigh, "US").
				WithDescription("Constant.com mirror"),
			registry.Mirror("https://mirror.aarnet.edu.au/pub/fedora/linux/releases/{version}/Workstation/{arch}/iso/{filename}", registry.PriorityMedium, "AU").
				WithDescription("AARNet mirror"),
			registry.Mirror("https://ftp.fau.de/fedora/linux/releases/{version}/Workstation/{arch}/iso/{filename}", registry.PriorityMedium, "DE").
				WithDescription("University of Erlangen mirror"),
			registry.Torrent("https://torrent.fedoraproject.org/torrents/{filename}.torrent", registry.PriorityHigh).
				WithDescription("Official Fedora torrent"),
		},
		FilenamePattern: "Fedora-{variant}-Live-{arch}-{version}-1.5.iso",
		ChecksumURLs: []string{
			"https://download.fedoraproject.org/pub/fedora/linux/releases/{version}/Workstation/{arch}/iso/Fedora-Workstation-{version}-1.5-{arch}-CHECKSUM",
			"https://getfedora.org/static/checksums/Fedora-Workstation-{version}-1.5-{arch}-CHECKSUM",
		},
	}, nil
}
