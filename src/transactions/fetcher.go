// Package transactions builds the merged transaction view: aggregator records
// accumulated across sync pages, internal transfers tagged with a direction,
// deduplicated and ordered newest first.
package transactions

import (
	"context"
	"fmt"

	"horizon-server/src/models"
	"horizon-server/src/observability"
)

// SyncPage is one page of the aggregator's incremental sync feed.
type SyncPage struct {
	Added      []models.Transaction
	NextCursor string
	HasMore    bool
}

type SyncFeed interface {
	SyncPage(ctx context.Context, accessToken, cursor string) (*SyncPage, error)
}

type Fetcher struct {
	feed    SyncFeed
	metrics *observability.Metrics
}

func NewFetcher(feed SyncFeed, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{feed: feed, metrics: metrics}
}

// FetchAdded walks the sync feed for one bank item until has_more is false and
// returns the union of every page's added records. Any failed page fails the
// whole fetch; no partial result is returned.
func (f *Fetcher) FetchAdded(ctx context.Context, accessToken string) ([]models.Transaction, error) {
	if accessToken == "" {
		return nil, &models.ErrValidation{Field: "access_token", Message: "required"}
	}

	var (
		added  []models.Transaction
		cursor string
	)
	for {
		page, err := f.feed.SyncPage(ctx, accessToken, cursor)
		if err != nil {
			return nil, err
		}
		f.metrics.IncrSyncPage()

		added = append(added, page.Added...)

		if !page.HasMore {
			return added, nil
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil, fmt.Errorf("sync feed reported more pages without advancing cursor %q", cursor)
		}
		cursor = page.NextCursor
	}
}
