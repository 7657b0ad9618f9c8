package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptable(t *testing.T) {
	cases := []struct {
		name string
		c    candidate
		want bool
	}{
		{"no url", candidate{}, false},
		{"short-form shorts", candidate{URL: "https://x.test/shorts/abc", Duration: 180}, false},
		{"short-form reel", candidate{URL: "https://x.test/reel/abc", Duration: 180}, false},
		{"too short", candidate{URL: "https://x.test/t", Duration: 10}, false},
		{"lower bound inclusive", candidate{URL: "https://x.test/t", Duration: 15}, true},
		{"upper bound inclusive", candidate{URL: "https://x.test/t", Duration: 720}, true},
		{"too long", candidate{URL: "https://x.test/t", Duration: 721}, false},
		{"unknown duration", candidate{URL: "https://x.test/t"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, acceptable(tc.c))
		})
	}
}

// fakeTranscode stands in for ffmpeg: the "transcode" is a rename.
func fakeTranscode(src, dst string) error {
	return os.Rename(src, dst)
}

func audioServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake mp3 bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(t *testing.T, strategies ...strategy) *Resolver {
	t.Helper()
	return &Resolver{
		strategies: strategies,
		workDir:    t.TempDir(),
		log:        logrus.WithField("at", "resolver.test"),
	}
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestProxyShortCircuitsMirrors(t *testing.T) {
	audio := audioServer(t)

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "miro", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(candidate{URL: audio.URL + "/track", Title: "Proxy Title", Artist: "Proxy Artist", Duration: 200})
	}))
	defer proxy.Close()

	var mirrorHits int
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mirrorHits++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]candidate{})
	}))
	defer mirror.Close()

	f := &fetcher{client: http.DefaultClient, transcode: fakeTranscode}
	r := newTestResolver(t,
		&proxyStrategy{base: proxy.URL, fetch: f},
		&mirrorStrategy{mirrors: []string{mirror.URL}, fetch: f},
	)

	track, err := r.Resolve(context.Background(), "miro")
	require.NoError(t, err)
	defer track.Cleanup()

	assert.Equal(t, "Proxy Title", track.Title)
	assert.FileExists(t, track.Path)
	assert.Zero(t, mirrorHits, "mirrors must not be queried when the proxy succeeds")
}

func TestProxyRejectsNonJSON(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>nope</html>"))
	}))
	defer proxy.Close()

	f := &fetcher{client: http.DefaultClient, transcode: fakeTranscode}
	s := &proxyStrategy{base: proxy.URL, fetch: f}
	_, err := s.resolve(context.Background(), "q", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content type")
}

func TestMirrorFallsThroughNonJSON(t *testing.T) {
	audio := audioServer(t)

	badMirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>captcha</html>"))
	}))
	defer badMirror.Close()

	goodMirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode([]candidate{
			{URL: "https://x.test/shorts/skipme", Title: "Short", Duration: 30},
			{URL: audio.URL + "/song", Title: "Mirror Title", Artist: "Mirror Artist", Duration: 240},
		})
	}))
	defer goodMirror.Close()

	f := &fetcher{client: http.DefaultClient, transcode: fakeTranscode}
	r := newTestResolver(t, &mirrorStrategy{mirrors: []string{badMirror.URL, goodMirror.URL}, fetch: f})

	track, err := r.Resolve(context.Background(), "some song")
	require.NoError(t, err)
	defer track.Cleanup()

	assert.Equal(t, "Mirror Title", track.Title, "short-form candidate must be skipped")
}

func TestResolveCleansUpOnFailure(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer mirror.Close()

	f := &fetcher{client: http.DefaultClient, transcode: fakeTranscode}
	r := newTestResolver(t, &mirrorStrategy{mirrors: []string{mirror.URL}, fetch: f})

	_, err := r.Resolve(context.Background(), "whatever")
	require.ErrorIs(t, err, ErrNoTrack)
	assert.Empty(t, dirEntries(t, r.workDir), "failed resolution must leave no files behind")
}

func TestResolveCleansUpOnSuccess(t *testing.T) {
	audio := audioServer(t)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(candidate{URL: audio.URL + "/t", Title: "T", Duration: 100})
	}))
	defer proxy.Close()

	f := &fetcher{client: http.DefaultClient, transcode: fakeTranscode}
	r := newTestResolver(t, &proxyStrategy{base: proxy.URL, fetch: f})

	track, err := r.Resolve(context.Background(), "q")
	require.NoError(t, err)
	require.NotEmpty(t, dirEntries(t, r.workDir))

	track.Cleanup()
	assert.Empty(t, dirEntries(t, r.workDir), "Cleanup must remove the attempt directory")
}

func TestResolveEmptyQuery(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoTrack)
}
