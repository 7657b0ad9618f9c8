package resolver

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grafov/m3u8"
)

// fetchHLS downloads an HLS audio playlist segment by segment and
// concatenates the result into an MP3 at the target bitrate. Encrypted
// segments (AES-128-CBC) are decrypted with the key referenced by the
// playlist.
func (f *fetcher) fetchHLS(ctx context.Context, uri, dir, dst string) error {
	segDir := filepath.Join(dir, "hls")
	if err := os.MkdirAll(segDir, 0o700); err != nil {
		return err
	}
	defer os.RemoveAll(segDir)

	listPath := filepath.Join(segDir, "tslist.txt")
	if err := f.fetchSegments(ctx, uri, segDir, listPath); err != nil {
		return err
	}

	cmd := exec.Command(
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-map", "0:a:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat: %s: %w", bytes.TrimSpace(stderr.Bytes()), err)
	}
	return nil
}

func (f *fetcher) fetchPlaylist(ctx context.Context, uri string) (*m3u8.MediaPlaylist, error) {
	data, err := f.httpGet(ctx, uri)
	if err != nil {
		return nil, err
	}
	p, _, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, err
	}
	playlist, ok := p.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("not a media playlist: %s", uri)
	}
	return playlist, nil
}

func (f *fetcher) fetchSegments(ctx context.Context, uri, segDir, listPath string) error {
	playlist, err := f.fetchPlaylist(ctx, uri)
	if err != nil {
		return err
	}

	listFile, err := os.Create(listPath)
	if err != nil {
		return err
	}
	defer listFile.Close()

	keyCache := make(map[string][]byte)
	var wg sync.WaitGroup
	errCh := make(chan error, len(playlist.Segments))
	var i uint8
	for _, segment := range playlist.Segments {
		if segment == nil {
			continue
		}
		var key, iv []byte
		if segment.Key != nil && segment.Key.Method != "NONE" {
			key = keyCache[segment.Key.URI]
			if key == nil {
				key, err = f.httpGet(ctx, segment.Key.URI)
				if err != nil {
					return fmt.Errorf("fetch segment key: %w", err)
				}
				keyCache[segment.Key.URI] = key
			}
			iv = make([]byte, len(key))
			iv[len(key)-1] = i
		}
		if _, err := fmt.Fprintf(listFile, "file '%d.ts'\n", i); err != nil {
			return err
		}
		segPath := filepath.Join(segDir, fmt.Sprintf("%d.ts", i))
		segURI := resolveSegmentURI(uri, segment.URI)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- f.fetchSegment(ctx, key, iv, segURI, segPath)
		}()
		i++
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *fetcher) fetchSegment(ctx context.Context, key, iv []byte, uri, path string) error {
	data, err := f.httpGet(ctx, uri)
	if err != nil {
		return err
	}
	if key != nil {
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		if len(data)%aes.BlockSize != 0 {
			return fmt.Errorf("segment %s is not a multiple of the AES block size", uri)
		}
		mode := cipher.NewCBCDecrypter(block, iv)
		mode.CryptBlocks(data, data)
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveSegmentURI(playlistURI, segmentURI string) string {
	if strings.HasPrefix(segmentURI, "http://") || strings.HasPrefix(segmentURI, "https://") {
		return segmentURI
	}
	base := playlistURI
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	return base + "/" + segmentURI
}
