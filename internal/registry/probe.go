package registry

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/airone01/isod/internal/safety"
)

const (
	probeTimeout    = 5 * time.Second
	probeMaxWorkers = 10

	// probeSampleBytes bounds how much of each source is pulled during the
	// throughput phase; enough to estimate speed, cheap enough to run often.
	probeSampleBytes int64 = 512 * 1024
)

// ProbeResult holds the outcome of probing one download source.
type ProbeResult struct {
	URL            string  `json:"url"`
	LatencyMs      int     `json:"latency_ms"`
	ThroughputKBps float64 `json:"throughput_kbps"`
	Error          string  `json:"error,omitempty"`
}

// SpeedRating maps measured throughput onto the 1-10 source rating scale.
func (p ProbeResult) SpeedRating() int {
	if p.Error != "" || p.ThroughputKBps <= 0 {
		return 0
	}
	// ~100 KB/s per step, capped at 10.
	rating := int(p.ThroughputKBps/100) + 1
	if rating > 10 {
		rating = 10
	}
	return rating
}

// ProbeSources measures latency for every usable HTTP source, then samples
// throughput from the topN fastest responders, returning results sorted by
// throughput descending with errored sources last. Torrent and magnet sources
// are skipped; there is nothing to HEAD.
func (r *Registry) ProbeSources(ctx context.Context, sources []DownloadSource, topN int) []ProbeResult {
	var urls []string
	for _, s := range sources {
		if s.Type.IsHTTP() && s.IsUsable() {
			urls = append(urls, s.URL)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	results := r.measureLatency(ctx, urls)

	sort.Slice(results, func(i, j int) bool {
		if (results[i].Error != "") != (results[j].Error != "") {
			return results[i].Error == ""
		}
		return results[i].LatencyMs < results[j].LatencyMs
	})

	var candidates, rest []ProbeResult
	for _, res := range results {
		if res.Error == "" && len(candidates) < topN {
			candidates = append(candidates, res)
		} else {
			rest = append(rest, res)
		}
	}

	final := append(r.measureThroughput(ctx, candidates), rest...)

	sort.Slice(final, func(i, j int) bool {
		if (final[i].Error != "") != (final[j].Error != "") {
			return final[i].Error == ""
		}
		return final[i].ThroughputKBps > final[j].ThroughputKBps
	})
	return final
}

// ApplyProbeRatings back-fills SpeedRating on sources from probe results,
// matching by URL. Sources that were not probed keep their declared rating.
func ApplyProbeRatings(sources []DownloadSource, results []ProbeResult) {
	byURL := make(map[string]ProbeResult, len(results))
	for _, res := range results {
		byURL[res.URL] = res
	}
	for i := range sources {
		if res, ok := byURL[sources[i].URL]; ok {
			if rating := res.SpeedRating(); rating > 0 {
				sources[i].SpeedRating = rating
			}
		}
	}
}

func (r *Registry) measureLatency(ctx context.Context, urls []string) []ProbeResult {
	results := make([]ProbeResult, len(urls))
	sem := make(chan struct{}, probeMaxWorkers)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
			if err != nil {
				results[idx] = ProbeResult{URL: url, Error: err.Error()}
				return
			}
			req.Header.Set("User-Agent", safety.DefaultUserAgent)

			start := time.Now()
			resp, err := r.client.Do(req)
			elapsed := time.Since(start)
			if err != nil {
				results[idx] = ProbeResult{URL: url, LatencyMs: int(elapsed.Milliseconds()), Error: err.Error()}
				return
			}
			resp.Body.Close()

			results[idx] = ProbeResult{URL: url, LatencyMs: int(elapsed.Milliseconds())}
		}(i, u)
	}

	wg.Wait()
	return results
}

func (r *Registry) measureThroughput(ctx context.Context, candidates []ProbeResult) []ProbeResult {
	results := make([]ProbeResult, len(candidates))
	sem := make(chan struct{}, probeMaxWorkers)
	var wg sync.WaitGroup

	for i, c := range candidates {
		wg.Add(1)
		go func(idx int, pr ProbeResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pr.URL, nil)
			if err != nil {
				pr.Error = err.Error()
				results[idx] = pr
				return
			}
			req.Header.Set("User-Agent", safety.DefaultUserAgent)

			start := time.Now()
			resp, err := r.client.Do(req)
			if err != nil {
				pr.Error = err.Error()
				results[idx] = pr
				return
			}
			defer resp.Body.Close()

			n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, probeSampleBytes))
			elapsed := time.Since(start)
			if err != nil && reqCtx.Err() == nil {
				pr.Error = err.Error()
				results[idx] = pr
				return
			}

			if elapsed.Seconds() > 0 {
				pr.ThroughputKBps = float64(n) / elapsed.Seconds() / 1024.0
			}
			results[idx] = pr
		}(i, c)
	}

	wg.Wait()
	return results
}
