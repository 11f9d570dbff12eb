package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

var ErrResolveFailed = errors.New("failed to resolve stream")

// StreamResolver turns a catalog track into a URL ffmpeg can open.
type StreamResolver interface {
	StreamURL(ctx context.Context, track Track) (string, error)
}

type YTDLPResolver struct {
	Binary  string
	TempDir string
}

func NewYTDLPResolver(binary string) *YTDLPResolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPResolver{
		Binary:  binary,
		TempDir: os.TempDir(),
	}
}

func (r *YTDLPResolver) StreamURL(ctx context.Context, track Track) (string, error) {
	return r.ResolveStreamURL(ctx, searchQuery(track))
}

// ResolveStreamURL returns the best audio stream for a URL or a free text
// search, the latter answered by the first YouTube hit.
func (r *YTDLPResolver) ResolveStreamURL(ctx context.Context, input string) (string, error) {
	target := strings.TrimSpace(input)
	if target == "" {
		return "", fmt.Errorf("%w: empty input", ErrResolveFailed)
	}
	if !looksLikeURL(target) {
		target = "ytsearch1:" + target
	}

	args := []string{
		"--no-warnings",
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"-f",
		"bestaudio",
		"--paths",
		r.TempDir,
		target,
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Env = append(os.Environ(), "TMPDIR="+r.TempDir)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: yt-dlp failed: %v: %s", ErrResolveFailed, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%w: yt-dlp failed: %v", ErrResolveFailed, err)
	}

	return parseYTDLPStream(output)
}

// ytDLPItem is the subset of yt-dlp's info JSON read here. Search results
// arrive wrapped in a playlist object.
type ytDLPItem struct {
	URL     string      `json:"url"`
	Entries []ytDLPItem `json:"entries"`
}

func parseYTDLPStream(output []byte) (string, error) {
	var root ytDLPItem
	if err := json.Unmarshal(output, &root); err != nil {
		return "", fmt.Errorf("%w: invalid json: %v", ErrResolveFailed, err)
	}

	item, err := pickYTDLPItem(root)
	if err != nil {
		return "", err
	}
	if item.URL == "" {
		return "", fmt.Errorf("%w: empty stream url", ErrResolveFailed)
	}
	return item.URL, nil
}

func pickYTDLPItem(root ytDLPItem) (ytDLPItem, error) {
	if len(root.Entries) == 0 {
		return root, nil
	}

	for _, entry := range root.Entries {
		if entry.URL != "" {
			return entry, nil
		}
	}

	return ytDLPItem{}, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
}

func searchQuery(track Track) string {
	parts := make([]string, 0, 2)
	if len(track.Artists) > 0 {
		parts = append(parts, strings.Join(track.Artists, " "))
	}
	if track.Title != "" {
		parts = append(parts, track.Title)
	}
	if len(parts) == 0 {
		return track.ID
	}
	return strings.Join(parts, " - ")
}

func looksLikeURL(value string) bool {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return true
	}

	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}
