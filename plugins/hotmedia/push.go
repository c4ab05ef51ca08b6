package hotmedia

import (
	"context"
	"runtime/debug"
	"time"

	"hotbot/internal/storage"
	kit "hotbot/internal/transport"
	"hotbot/pkg/douban"
	logx "hotbot/pkg/logx"
)

// runPush is the scheduled job body: fetch both categories, assemble one
// message, submit one notification. Every failure is logged and contained
// here; the scheduler never sees a push problem as a task failure.
func (p *Plugin) runPush(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			p.Log.Error("push job panicked",
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	start := p.now()
	limit := p.maxItems()

	movies := p.fetchTrending(ctx, douban.CategoryMovie, limit)
	tvs := p.fetchTrending(ctx, douban.CategoryTV, limit)

	items := make([]douban.Item, 0, len(movies)+len(tvs))
	items = append(items, movies...)
	items = append(items, tvs...)

	p.Log.Info("fetched trending media",
		logx.Int("movies", len(movies)), logx.Int("tv", len(tvs)))

	if len(items) == 0 {
		p.Log.Warn("no trending media fetched, skipping push")
		return nil
	}

	title, text := buildMessage(items, p.now())
	err := p.Notify(ctx, kit.Notification{
		Channel: "plugin",
		Title:   title,
		Text:    text,
	})
	if err != nil {
		p.Log.Error("push notification failed", logx.Err(err))
	} else {
		p.Log.Info("daily push submitted", logx.Int("items", len(items)))
	}

	p.recordPush(ctx, start, title, len(movies), len(tvs), err)
	return nil
}

// recordPush appends a push-history row, best effort.
func (p *Plugin) recordPush(ctx context.Context, start time.Time, title string, movies, tvs int, pushErr error) {
	if p.Deps.Store == nil {
		return
	}
	rec := storage.PushRecord{
		At:         start,
		Plugin:     pluginName,
		Title:      title,
		ItemCount:  movies + tvs,
		MovieCount: movies,
		TVCount:    tvs,
		TookMS:     time.Since(start).Milliseconds(),
	}
	if pushErr != nil {
		rec.Error = pushErr.Error()
	}
	if err := p.Deps.Store.AppendPush(ctx, rec); err != nil {
		p.Log.Warn("failed to record push history", logx.Err(err))
	}
}
