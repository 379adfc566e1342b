package upstream

import (
	"context"
	"encoding/json"
)

// PageFetcher is the feed surface the paginator needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, changedAt, next string) (FeedPage, error)
}

// Paginate walks the feed from changedAt, handing each page's records to
// fn, until the provider stops returning a continuation. An empty page
// without a continuation ends the walk.
func Paginate(ctx context.Context, feed PageFetcher, changedAt string, fn func(records []json.RawMessage) error) error {
	next := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := feed.FetchPage(ctx, changedAt, next)
		if err != nil {
			return err
		}
		if len(page.Results) > 0 {
			if err := fn(page.Results); err != nil {
				return err
			}
		}

		token := page.NextToken()
		if token == "" || token == next {
			return nil
		}
		next = token
	}
}
