package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// DefaultMirrors is the ordered list of public mirror search endpoints
// tried when the proxy is unavailable. Each takes a ?q= query and answers
// with a JSON array of candidates.
var DefaultMirrors = []string{
	"https://api.muzfond.app/v1/search",
	"https://mp3.sayttap.net/api/search",
	"https://muzofond-mirror.org/api/v1/tracks",
}

// mirrorStrategy walks an ordered list of public mirror search endpoints
// and downloads the first acceptable candidate. Mirrors answering with
// anything but JSON are skipped outright.
type mirrorStrategy struct {
	mirrors []string
	fetch   *fetcher
}

func (s *mirrorStrategy) name() string { return "mirrors" }

func (s *mirrorStrategy) resolve(ctx context.Context, query, dir string) (*Track, error) {
	log := logrus.WithField("at", "resolver.mirrors")
	for _, mirror := range s.mirrors {
		c, err := s.search(ctx, mirror, query)
		if err != nil {
			log.WithError(err).WithField("mirror", mirror).Debug("mirror skipped")
			continue
		}
		track, err := s.fetch.fetchTrack(ctx, c, dir)
		if err != nil {
			log.WithError(err).WithField("mirror", mirror).Debug("mirror candidate failed to download")
			continue
		}
		return track, nil
	}
	return nil, fmt.Errorf("no mirror produced a track")
}

// search asks one mirror for candidates and picks the first acceptable
// one.
func (s *mirrorStrategy) search(ctx context.Context, mirror, query string) (candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirror+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return candidate{}, err
	}
	resp, err := s.fetch.client.Do(req)
	if err != nil {
		return candidate{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return candidate{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return candidate{}, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	var candidates []candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return candidate{}, err
	}
	for _, c := range candidates {
		if acceptable(c) {
			return c, nil
		}
	}
	return candidate{}, fmt.Errorf("no acceptable candidate among %d results", len(candidates))
}
