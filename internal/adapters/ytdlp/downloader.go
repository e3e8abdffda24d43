package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/adapters/toolexec"
	"ytdownloader/internal/core/domain"
)

const (
	videoSelector = "bestvideo[ext=mp4]/bestvideo"
	audioSelector = "bestaudio[ext=m4a]/bestaudio"

	infoTimeout = 2 * time.Minute
)

// YtDlpDownloader drives the local yt-dlp binary. It implements both
// ports.MetadataFetcher and ports.StreamDownloader.
type YtDlpDownloader struct {
	binaryPath string
	runner     toolexec.Runner
	logger     log.FieldLogger

	mu         sync.Mutex
	cookieFile string
}

// NewYtDlpDownloader creates a new downloader. An empty binaryPath means
// "yt-dlp" from PATH.
func NewYtDlpDownloader(binaryPath string, logger log.FieldLogger) *YtDlpDownloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &YtDlpDownloader{
		binaryPath: binaryPath,
		runner:     toolexec.Runner{Logger: logger},
		logger:     logger,
	}
}

// UseCookies passes a Netscape cookie file to every following invocation.
func (d *YtDlpDownloader) UseCookies(path string) {
	d.mu.Lock()
	d.cookieFile = path
	d.mu.Unlock()
}

// info is the subset of yt-dlp's --dump-single-json output we read.
type info struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	Channel  string `json:"channel"`
	Height   int    `json:"height"`
}

// FetchInfo reads video metadata with --dump-single-json.
func (d *YtDlpDownloader) FetchInfo(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	args := d.baseArgs("--dump-single-json", "--skip-download")
	args = append(args, videoURL)

	out, err := d.runner.Run(ctx, d.binaryPath, args...)
	if err != nil {
		return nil, err
	}

	var raw info
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("yt-dlp returned invalid JSON: %w", err)
	}
	if strings.TrimSpace(raw.Title) == "" {
		return nil, fmt.Errorf("yt-dlp returned no title for %s", videoURL)
	}

	vi := &domain.VideoInfo{
		ID:     raw.ID,
		Title:  raw.Title,
		Author: raw.Uploader,
	}
	if vi.Author == "" {
		vi.Author = raw.Channel
	}
	if raw.Height > 0 {
		vi.Resolution = strconv.Itoa(raw.Height) + "p"
	}
	return vi, nil
}

// DownloadStream downloads the best video-only or audio-only stream to dest.
func (d *YtDlpDownloader) DownloadStream(ctx context.Context, videoURL string, kind domain.StreamKind, dest string) error {
	selector, err := selectorFor(kind)
	if err != nil {
		return err
	}

	args := d.baseArgs("-f", selector, "-o", dest, "--no-part", "--force-overwrites")
	args = append(args, videoURL)

	if _, err := d.runner.Run(ctx, d.binaryPath, args...); err != nil {
		return err
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("yt-dlp reported success but %s is missing: %w", dest, err)
	}
	if d.logger != nil {
		d.logger.Infof("Downloaded %s stream (%s)", kind, humanize.Bytes(uint64(fi.Size())))
	}
	return nil
}

func (d *YtDlpDownloader) baseArgs(extra ...string) []string {
	args := []string{"--no-warnings", "--no-playlist"}
	d.mu.Lock()
	if d.cookieFile != "" {
		args = append(args, "--cookies", d.cookieFile)
	}
	d.mu.Unlock()
	return append(args, extra...)
}

func selectorFor(kind domain.StreamKind) (string, error) {
	switch kind {
	case domain.StreamVideo:
		return videoSelector, nil
	case domain.StreamAudio:
		return audioSelector, nil
	default:
		return "", fmt.Errorf("unknown stream kind %q", kind)
	}
}
