package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// fetcher downloads a chosen candidate and transcodes it to MP3 at the
// target bitrate. The transcode hook is swapped out in tests.
type fetcher struct {
	client    *http.Client
	transcode func(src, dst string) error
}

// fetchTrack downloads c into dir and produces dir/track.mp3.
func (f *fetcher) fetchTrack(ctx context.Context, c candidate, dir string) (*Track, error) {
	dst := filepath.Join(dir, "track.mp3")
	if strings.Contains(c.URL, ".m3u8") {
		if err := f.fetchHLS(ctx, c.URL, dir, dst); err != nil {
			return nil, err
		}
	} else {
		src := filepath.Join(dir, "source")
		if err := f.downloadFile(ctx, c.URL, src); err != nil {
			return nil, err
		}
		if err := f.transcode(src, dst); err != nil {
			return nil, err
		}
		os.Remove(src)
	}
	return &Track{Path: dst, Title: c.Title, Artist: c.Artist, Duration: c.Duration}, nil
}

// downloadFile fetches a URL into a file.
func (f *fetcher) downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return err
	}
	return nil
}

func (f *fetcher) httpGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ffmpegTranscode converts any audio source to MP3 at 192 kbps.
func ffmpegTranscode(src, dst string) error {
	cmd := exec.Command(
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %s: %w", bytes.TrimSpace(stderr.Bytes()), err)
	}
	return nil
}
