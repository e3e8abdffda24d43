package service

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/core/domain"
	"ytdownloader/internal/core/ports"
)

// NamedFetcher labels a metadata source for logs.
type NamedFetcher struct {
	Name    string
	Fetcher ports.MetadataFetcher
}

// FetcherChain tries each fetcher in order and returns the first success.
type FetcherChain struct {
	Fetchers []NamedFetcher
	Logger   log.FieldLogger
}

// FetchInfo implements ports.MetadataFetcher.
func (c *FetcherChain) FetchInfo(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	if len(c.Fetchers) == 0 {
		return nil, errors.New("no metadata source configured")
	}
	var lastErr error
	for _, f := range c.Fetchers {
		vi, err := f.Fetcher.FetchInfo(ctx, videoURL)
		if err == nil {
			return vi, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = fmt.Errorf("%s: %w", f.Name, err)
		if c.Logger != nil {
			c.Logger.Warnf("Metadata source %s failed: %v", f.Name, err)
		}
	}
	return nil, lastErr
}

// UseCookies forwards the cookie file to every source that accepts one.
func (c *FetcherChain) UseCookies(path string) {
	for _, f := range c.Fetchers {
		if cu, ok := f.Fetcher.(CookieUser); ok {
			cu.UseCookies(path)
		}
	}
}
