package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// proxyStrategy queries a private proxy API for a direct media URL. It is
// only part of the chain when a proxy base URL is configured.
type proxyStrategy struct {
	base  string
	fetch *fetcher
}

func (s *proxyStrategy) name() string { return "proxy" }

func (s *proxyStrategy) resolve(ctx context.Context, query, dir string) (*Track, error) {
	uri := s.base + "/resolve?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetch.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy: status %d", resp.StatusCode)
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("proxy: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	var c candidate
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	if c.URL == "" {
		return nil, fmt.Errorf("proxy: response carries no media url")
	}
	return s.fetch.fetchTrack(ctx, c, dir)
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
