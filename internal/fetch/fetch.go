// Package fetch downloads the source video of a post with yt-dlp.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/pkg/file"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const (
	videoFormat = "best[ext=mp4]/best"
	baseName    = "original_video"
	// MaxTitleRunes bounds the title used in output file names.
	MaxTitleRunes = 50
)

var (
	statusPath  = regexp.MustCompile(`^/\w+/status/\d+`)
	youtubeID   = regexp.MustCompile(`^[\w-]{6,}$`)
	videoExts   = []string{".mp4", ".webm", ".mkv", ".mov"}
	twitterHost = map[string]bool{"twitter.com": true, "x.com": true, "mobile.twitter.com": true, "mobile.x.com": true}
	youtubeHost = map[string]bool{"youtube.com": true, "m.youtube.com": true, "music.youtube.com": true}
)

// Video is a downloaded source video.
type Video struct {
	Path     string
	Duration float64
	Title    string
	ID       string
	// URL is the normalized source URL.
	URL string
}

// SafeTitle is the title reduced to a file-name friendly form.
func (v Video) SafeTitle() string {
	return file.SafeName(v.Title, MaxTitleRunes)
}

// Validate accepts x.com / twitter.com status URLs and YouTube watch,
// shorts and youtu.be URLs. It returns the URL with tracking query
// parameters removed.
func Validate(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errs.Newf(errs.Unsupported, "not a valid URL: %q", raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch {
	case twitterHost[host]:
		if !statusPath.MatchString(u.Path) {
			return "", errs.Newf(errs.Unsupported, "not a post URL: %q", raw)
		}
		u.RawQuery, u.Fragment = "", ""
		return u.String(), nil

	case youtubeHost[host]:
		switch {
		case u.Path == "/watch" && youtubeID.MatchString(u.Query().Get("v")):
			v := u.Query().Get("v")
			u.RawQuery, u.Fragment = url.Values{"v": {v}}.Encode(), ""
			return u.String(), nil
		case strings.HasPrefix(u.Path, "/shorts/") && youtubeID.MatchString(strings.TrimPrefix(u.Path, "/shorts/")):
			u.RawQuery, u.Fragment = "", ""
			return u.String(), nil
		}
		return "", errs.Newf(errs.Unsupported, "not a video URL: %q", raw)

	case host == "youtu.be":
		if !youtubeID.MatchString(strings.Trim(u.Path, "/")) {
			return "", errs.Newf(errs.Unsupported, "not a video URL: %q", raw)
		}
		u.RawQuery, u.Fragment = "", ""
		return u.String(), nil
	}
	return "", errs.Newf(errs.Unsupported, "unsupported site %q", host)
}

// YtDlp shells out to yt-dlp.
type YtDlp struct {
	Cmd string
	// Now is overridable for tests.
	Now func() time.Time
}

func NewYtDlp() *YtDlp {
	return &YtDlp{Cmd: "yt-dlp", Now: time.Now}
}

type metadata struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Duration float64    `json:"duration"`
	Formats  []any      `json:"formats"`
	Entries  []metadata `json:"entries"`
}

// Fetch reads the post metadata and downloads its video into dir.
func (y *YtDlp) Fetch(ctx context.Context, rawURL, dir string) (Video, error) {
	normalized, err := Validate(rawURL)
	if err != nil {
		return Video{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Video{}, err
	}

	out, err := y.run(ctx, "-J", "--no-warnings", "--no-playlist", normalized)
	if err != nil {
		return Video{}, classify(err, normalized)
	}
	var meta metadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return Video{}, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	// a post with several videos is a playlist; the first one is used
	if len(meta.Formats) == 0 && len(meta.Entries) > 0 {
		meta = meta.Entries[0]
	}
	if len(meta.Formats) == 0 {
		return Video{}, errs.New(errs.NotFound, "this post does not contain a video").With("url", normalized)
	}

	started := y.now().Add(-time.Second)
	template := filepath.Join(dir, baseName+".%(ext)s")
	log.Info("Downloading %s", normalized)
	if _, err := y.run(ctx, "-f", videoFormat, "--no-warnings", "--no-playlist", "--no-part", "-o", template, normalized); err != nil {
		return Video{}, classify(err, normalized)
	}

	path, err := findDownload(dir, started)
	if err != nil {
		return Video{}, err
	}
	log.Info("Downloaded %s (%.1fs) to %s", meta.Title, meta.Duration, path)
	return Video{Path: path, Duration: meta.Duration, Title: meta.Title, ID: meta.ID, URL: normalized}, nil
}

func findDownload(dir string, started time.Time) (string, error) {
	for _, ext := range videoExts {
		p := filepath.Join(dir, baseName+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	recent, err := file.FindRecentAfter(dir, started, videoExts...)
	if err != nil {
		return "", err
	}
	if len(recent) == 0 {
		return "", errs.New(errs.NotFound, "downloaded file not found").With("dir", dir)
	}
	return recent[0], nil
}

func (y *YtDlp) now() time.Time {
	if y.Now != nil {
		return y.Now()
	}
	return time.Now()
}

type runError struct {
	err    error
	stderr string
}

func (e *runError) Error() string { return fmt.Sprintf("yt-dlp: %v: %s", e.err, e.stderr) }
func (e *runError) Unwrap() error { return e.err }

func (y *YtDlp) run(ctx context.Context, args ...string) ([]byte, error) {
	cmdPath, err := exec.LookPath(y.Cmd)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &runError{err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return stdout.Bytes(), nil
}

// classify maps yt-dlp's messages for deleted, private or video-less
// posts to NotFound.
func classify(err error, rawURL string) error {
	if errs.KindOf(err) == errs.Canceled {
		return errs.Wrap(err, errs.Canceled, "download canceled")
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"no video could be found", "404", "not found", "private", "unavailable", "has been removed"} {
		if strings.Contains(msg, marker) {
			return errs.Wrap(err, errs.NotFound, "video not found").With("url", rawURL)
		}
	}
	if strings.Contains(msg, "unsupported url") {
		return errs.Wrap(err, errs.Unsupported, "site not supported by yt-dlp").With("url", rawURL)
	}
	return fmt.Errorf("download %s: %w", rawURL, err)
}
