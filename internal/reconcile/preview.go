package reconcile

import (
	"context"
	"log/slog"

	"stocksync/internal/errors"
	"stocksync/internal/feed"
)

// ConnectionCheck is the result of a feed connection test
type ConnectionCheck struct {
	Rows      int    `json:"rows"`
	Delimiter string `json:"delimiter"`
	SKUColumn string `json:"sku_column"`
	QtyColumn string `json:"quantity_column"`
}

// TestConnection fetches the configured feed with the short preview
// timeout and verifies that the configured columns resolve. Nothing is
// written to the catalog.
func (e *Engine) TestConnection(ctx context.Context) (*ConnectionCheck, error) {
	current, err := e.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current.FeedURL == "" {
		return nil, errors.NewConfigMissing("feed_url")
	}

	raw, err := e.fetcher.Fetch(ctx, feed.FetchOptions{
		URL:        current.FeedURL,
		DisableSSL: current.DisableSSLVerify,
		Timeout:    e.feedCfg.PreviewTimeout,
	})
	if err != nil {
		return nil, err
	}

	snapshot, err := feed.Parse(raw, current.SKUColumn, current.QuantityColumn)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "feed connection test succeeded",
		slog.Int("rows", snapshot.Len()))

	return &ConnectionCheck{
		Rows:      snapshot.Len(),
		Delimiter: delimiterLabel(snapshot.Delimiter),
		SKUColumn: current.SKUColumn,
		QtyColumn: current.QuantityColumn,
	}, nil
}

// PreviewColumns fetches a feed and reports its headers and a few
// sample rows, so column bindings can be chosen before saving them.
// An empty url falls back to the saved feed URL.
func (e *Engine) PreviewColumns(ctx context.Context, url string, disableSSL bool) (*feed.Preview, error) {
	if url == "" {
		current, err := e.settings.Load(ctx)
		if err != nil {
			return nil, err
		}
		url = current.FeedURL
		disableSSL = current.DisableSSLVerify
	}
	if url == "" {
		return nil, errors.NewConfigMissing("feed_url")
	}

	raw, err := e.fetcher.Fetch(ctx, feed.FetchOptions{
		URL:        url,
		DisableSSL: disableSSL,
		Timeout:    e.feedCfg.PreviewTimeout,
	})
	if err != nil {
		return nil, err
	}

	return feed.ParsePreview(raw)
}

func delimiterLabel(delimiter rune) string {
	if delimiter == '\t' {
		return "tab"
	}
	return string(delimiter)
}
