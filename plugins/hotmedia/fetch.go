package hotmedia

import (
	"context"

	"hotbot/pkg/douban"
	logx "hotbot/pkg/logx"
)

// fetchTrending returns the trending items for one category. Every failure
// (network, timeout, bad payload, unknown category) is logged and swallowed:
// a category that cannot be fetched simply contributes nothing to the push.
func (p *Plugin) fetchTrending(ctx context.Context, cat douban.Category, limit int) []douban.Item {
	items, err := p.client.Trending(ctx, cat, limit)
	if err != nil {
		p.Log.Error("trending fetch failed",
			logx.String("category", string(cat)), logx.Err(err))
		return nil
	}
	return items
}
