package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AudDMusic/audd-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// ErrNoTrack is returned when every strategy failed for a query.
var ErrNoTrack = errors.New("no source yielded a track")

// Plausible song-length window, in seconds. Candidates outside it are
// skipped when their duration is known.
const (
	MinDurationSec = 15
	MaxDurationSec = 720
)

// Track is a resolved, transcoded audio file on local disk. Cleanup must
// be called once the file has been consumed; it removes the whole
// per-resolution directory.
type Track struct {
	Path     string
	Title    string
	Artist   string
	Duration int

	dir string
}

func (t *Track) Cleanup() {
	if t.dir != "" {
		os.RemoveAll(t.dir)
	}
}

// candidate is one downloadable audio source proposed by a strategy.
type candidate struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"`
}

// strategy turns a query into a downloaded track inside dir, or fails.
type strategy interface {
	name() string
	resolve(ctx context.Context, query, dir string) (*Track, error)
}

// Options configures a Resolver. Zero values fall back to defaults; an
// empty ProxyBase disables the proxy strategy entirely.
type Options struct {
	ProxyBase  string
	Mirrors    []string
	CookieFile string
	AudDToken  string
	WorkDir    string
	Client     *http.Client
}

// Resolver attempts an ordered list of strategies until one yields a
// playable track.
type Resolver struct {
	strategies []strategy
	audd       *audd.Client
	workDir    string
	log        *logrus.Entry
}

func New(opts Options) *Resolver {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	f := &fetcher{client: client, transcode: ffmpegTranscode}

	var strategies []strategy
	if opts.ProxyBase != "" {
		strategies = append(strategies, &proxyStrategy{base: opts.ProxyBase, fetch: f})
	}
	mirrors := opts.Mirrors
	if mirrors == nil {
		mirrors = DefaultMirrors
	}
	strategies = append(strategies,
		&mirrorStrategy{mirrors: mirrors, fetch: f},
		newDirectStrategy(opts.CookieFile),
	)

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	r := &Resolver{
		strategies: strategies,
		workDir:    workDir,
		log:        logrus.WithField("at", "resolver"),
	}
	if opts.AudDToken != "" {
		r.audd = audd.NewClient(opts.AudDToken)
	}
	return r
}

// Resolve runs the strategy chain for a free-text query, short-circuiting
// on the first success. The returned track lives in an isolated temporary
// directory that is removed on every failure path; on success the caller
// owns it via Track.Cleanup.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Track, error) {
	query = norm.NFC.String(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNoTrack)
	}

	dir := filepath.Join(r.workDir, "track_"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	for _, s := range r.strategies {
		track, err := s.resolve(ctx, query, dir)
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"strategy": s.name(),
				"query":    query,
			}).Info("strategy failed")
			// Drop any partial downloads before the next attempt.
			wipeDir(dir)
			continue
		}
		track.dir = dir
		r.finishMetadata(track)
		r.log.WithFields(logrus.Fields{
			"strategy": s.name(),
			"query":    query,
			"title":    track.Title,
		}).Info("resolved track")
		return track, nil
	}

	os.RemoveAll(dir)
	return nil, fmt.Errorf("%w: %q", ErrNoTrack, query)
}

func wipeDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.RemoveAll(filepath.Join(dir, e.Name()))
	}
}

// acceptable filters out short-form video paths and implausible song
// lengths. Unknown durations pass; the window is inclusive on both ends.
func acceptable(c candidate) bool {
	if c.URL == "" || isShortForm(c.URL) {
		return false
	}
	if c.Duration > 0 && (c.Duration < MinDurationSec || c.Duration > MaxDurationSec) {
		return false
	}
	return true
}

func isShortForm(url string) bool {
	return strings.Contains(url, "/shorts/") ||
		strings.Contains(url, "/reel/") ||
		strings.Contains(url, "/reels/")
}
