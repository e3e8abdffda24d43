// Package youtube resolves metadata through YouTube's player API without
// spawning yt-dlp.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	yt "github.com/kkdai/youtube/v2"

	"ytdownloader/internal/core/domain"
)

// Fetcher implements ports.MetadataFetcher with github.com/kkdai/youtube.
type Fetcher struct {
	client *yt.Client
}

// NewFetcher creates a Fetcher. httpClient may be nil.
func NewFetcher(httpClient *http.Client) *Fetcher {
	return &Fetcher{client: &yt.Client{HTTPClient: httpClient}}
}

// FetchInfo loads the video's player response.
func (f *Fetcher) FetchInfo(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	v, err := f.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w", err)
	}
	return &domain.VideoInfo{
		ID:         v.ID,
		Title:      v.Title,
		Author:     v.Author,
		Resolution: BestResolution(v.Formats),
	}, nil
}

// BestResolution returns the quality label of the tallest adaptive
// video-only mp4 format, the stream yt-dlp's video selector picks.
func BestResolution(formats yt.FormatList) string {
	best := -1
	for i, f := range formats {
		if f.AudioChannels > 0 || !strings.HasPrefix(f.MimeType, "video/mp4") {
			continue
		}
		if best < 0 || f.Height > formats[best].Height {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	if label := formats[best].QualityLabel; label != "" {
		return label
	}
	if formats[best].Height > 0 {
		return strconv.Itoa(formats[best].Height) + "p"
	}
	return ""
}
