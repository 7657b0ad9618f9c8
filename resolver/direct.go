package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// directStrategy is the last resort: a keyword search against the origin
// platforms through yt-dlp, SoundCloud first. Candidates are filtered to
// a plausible song length and attempted in order until one downloads and
// transcodes.
type directStrategy struct {
	cookieFile string
	searches   []string
	run        func(ctx context.Context, args ...string) ([]byte, error)
}

func newDirectStrategy(cookieFile string) *directStrategy {
	return &directStrategy{
		cookieFile: cookieFile,
		searches:   []string{"scsearch10", "ytsearch10"},
		run:        runYtdlp,
	}
}

func (s *directStrategy) name() string { return "direct" }

func runYtdlp(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("yt-dlp: %s: %w", bytes.TrimSpace(exitErr.Stderr), err)
		}
		return out, fmt.Errorf("yt-dlp: %w", err)
	}
	return out, nil
}

// ytEntry is the subset of yt-dlp's per-entry JSON the strategy reads.
type ytEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
	Artist     string  `json:"artist"`
	Uploader   string  `json:"uploader"`
}

func (s *directStrategy) resolve(ctx context.Context, query, dir string) (*Track, error) {
	log := logrus.WithField("at", "resolver.direct")
	for _, prefix := range s.searches {
		candidates, err := s.search(ctx, prefix, query)
		if err != nil {
			log.WithError(err).WithField("search", prefix).Debug("search failed")
			continue
		}
		for _, c := range candidates {
			if !acceptable(c) {
				continue
			}
			track, err := s.download(ctx, c, dir)
			if err != nil {
				log.WithError(err).WithField("url", c.URL).Debug("candidate failed to download")
				continue
			}
			return track, nil
		}
	}
	return nil, fmt.Errorf("direct search found no downloadable track")
}

// search runs one yt-dlp flat search and converts the JSON-lines output
// into candidates, preserving result order.
func (s *directStrategy) search(ctx context.Context, prefix, query string) ([]candidate, error) {
	out, err := s.run(ctx,
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
		prefix+":"+query,
	)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	dec := json.NewDecoder(bytes.NewReader(out))
	for dec.More() {
		var e ytEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("parse search output: %w", err)
		}
		url := e.WebpageURL
		if url == "" {
			url = e.URL
		}
		artist := e.Artist
		if artist == "" {
			artist = e.Uploader
		}
		candidates = append(candidates, candidate{
			URL:      url,
			Title:    e.Title,
			Artist:   artist,
			Duration: int(e.Duration),
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("empty search result for %q", query)
	}
	return candidates, nil
}

// download lets yt-dlp fetch and transcode one candidate into dir.
func (s *directStrategy) download(ctx context.Context, c candidate, dir string) (*Track, error) {
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
	}
	if s.cookieFile != "" {
		args = append(args, "--cookies", s.cookieFile)
	}
	args = append(args, c.URL)
	if _, err := s.run(ctx, args...); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.mp3"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("yt-dlp produced no mp3 (is ffmpeg installed?)")
	}
	return &Track{Path: matches[0], Title: c.Title, Artist: c.Artist, Duration: c.Duration}, nil
}
