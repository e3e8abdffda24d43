package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ytdownloader/internal/core/domain"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	// streamers/youtube-scraper
	youtubeMetadataActorID = "h7sDV53CddomktSi5"
	defaultPollInterval    = 3 * time.Second
)

// ApifyScraper implements ports.MetadataFetcher using the Apify REST API.
// It is a fallback for sites that block direct metadata requests.
type ApifyScraper struct {
	apiToken     string
	baseURL      string
	actorID      string
	pollInterval time.Duration
	client       *http.Client
}

// NewApifyScraper creates a new ApifyScraper. baseURL may be empty.
func NewApifyScraper(token, baseURL string) (*ApifyScraper, error) {
	if token == "" {
		return nil, fmt.Errorf("APIFY_API_TOKEN not set")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &ApifyScraper{
		apiToken:     token,
		baseURL:      strings.TrimRight(baseURL, "/"),
		actorID:      youtubeMetadataActorID,
		pollInterval: defaultPollInterval,
		client: &http.Client{
			Timeout: time.Minute,
		},
	}, nil
}

// FetchInfo runs the actor for videoURL and reads the first dataset item.
func (s *ApifyScraper) FetchInfo(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	runID, err := s.startActorRun(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to start actor run: %w", err)
	}

	rawData, err := s.waitAndGetResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	return parseItems(rawData)
}

func (s *ApifyScraper) startActorRun(ctx context.Context, videoURL string) (string, error) {
	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", s.baseURL, s.actorID, s.apiToken)

	body, _ := json.Marshal(map[string]interface{}{
		"startUrls":  []map[string]string{{"url": videoURL}},
		"maxResults": 1,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Data.ID, nil
}

func (s *ApifyScraper) waitAndGetResults(ctx context.Context, runID string) ([]byte, error) {
	statusURL := fmt.Sprintf("%s/actor-runs/%s?token=%s", s.baseURL, runID, s.apiToken)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		switch status.Data.Status {
		case "SUCCEEDED":
			return s.getDatasetItems(ctx, status.Data.DefaultDatasetID)
		case "FAILED", "ABORTED", "TIMED-OUT":
			return nil, fmt.Errorf("actor run failed with status: %s", status.Data.Status)
		}
	}
}

func (s *ApifyScraper) getDatasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s", s.baseURL, datasetID, s.apiToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset request: unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseItems reads title and channel from the first dataset item.
func parseItems(rawData []byte) (*domain.VideoInfo, error) {
	var items []map[string]interface{}
	if err := json.Unmarshal(rawData, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no results returned from scraper")
	}
	item := items[0]

	vi := &domain.VideoInfo{
		ID:     stringField(item, "id"),
		Title:  stringField(item, "title"),
		Author: stringField(item, "channelName", "channel", "author"),
	}
	if vi.Title == "" {
		return nil, fmt.Errorf("scraper result has no title")
	}
	return vi, nil
}

func stringField(item map[string]interface{}, names ...string) string {
	for _, name := range names {
		if val, ok := item[name].(string); ok && val != "" {
			return val
		}
	}
	return ""
}
