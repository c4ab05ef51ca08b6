package hotmedia

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"hotbot/internal/notifier"
	"hotbot/internal/plugin"
	"hotbot/internal/services/scheduler"
	kit "hotbot/internal/transport"
	"hotbot/pkg/douban"
	logx "hotbot/pkg/logx"
)

type fakeFetcher struct {
	mu      sync.Mutex
	byCat   map[douban.Category][]douban.Item
	errs    map[douban.Category]error
	panicOn douban.Category
}

func (f *fakeFetcher) Trending(ctx context.Context, cat douban.Category, limit int) ([]douban.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == cat && cat != "" {
		panic("fetch blew up")
	}
	if err := f.errs[cat]; err != nil {
		return nil, err
	}
	items := f.byCat[cat]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type captureAdapter struct {
	mu    sync.Mutex
	texts []string
}

func (a *captureAdapter) Start(ctx context.Context) error { return nil }
func (a *captureAdapter) Stop(ctx context.Context) error  { return nil }

func (a *captureAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.texts)}, nil
}

func (a *captureAdapter) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.texts))
	copy(out, a.texts)
	return out
}

type testHost struct {
	plugin  *Plugin
	sched   *scheduler.Service
	adapter *captureAdapter
	not     *notifier.Service
}

func newTestHost(t *testing.T, fetch fetcher) *testHost {
	t.Helper()
	sched := scheduler.New(scheduler.Config{Enabled: false}, logx.Nop())
	adapter := &captureAdapter{}
	not := notifier.New(notifier.Config{Enabled: true, Workers: 1, RatePerSec: 100}, adapter, logx.Nop())
	not.SetDefaultTarget(kit.ChatTarget{ChatID: 1})
	not.Start(context.Background())
	t.Cleanup(func() { not.Stop(context.Background()) })

	p := New()
	if fetch != nil {
		p.client = fetch
	}
	deps := plugin.PluginDeps{
		Logger:   logx.Nop(),
		Services: &plugin.Services{Scheduler: sched, Notifier: not},
	}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &testHost{plugin: p, sched: sched, adapter: adapter, not: not}
}

func (h *testHost) applyConfig(t *testing.T, raw string) {
	t.Helper()
	if err := h.plugin.OnConfigChange(context.Background(), json.RawMessage(raw)); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}
}

func (h *testHost) pushSpec(t *testing.T) string {
	t.Helper()
	for _, s := range h.sched.Snapshot().Schedules {
		if s.Name == "hotmedia:push" {
			return s.Spec
		}
	}
	t.Fatal("push job not registered")
	return ""
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartRegistersDailyJob(t *testing.T) {
	t.Parallel()
	h := newTestHost(t, nil)
	h.applyConfig(t, `{"push_time": "9:05", "max_items": 3}`)
	if err := h.plugin.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, want := h.pushSpec(t), "5 9 * * *"; got != want {
		t.Fatalf("spec = %q, want %q", got, want)
	}
}

func TestStartBadPushTimeFallsBack(t *testing.T) {
	t.Parallel()
	h := newTestHost(t, nil)
	h.applyConfig(t, `{"push_time": "abc"}`)
	if err := h.plugin.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, want := h.pushSpec(t), "0 10 * * *"; got != want {
		t.Fatalf("spec = %q, want %q (10:00 fallback)", got, want)
	}
}

func TestStartWithoutSchedulerStillLoads(t *testing.T) {
	t.Parallel()
	p := New()
	deps := plugin.PluginDeps{Logger: logx.Nop(), Services: &plugin.Services{}}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start should swallow registration failure, got %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopTwiceIsQuiet(t *testing.T) {
	t.Parallel()
	h := newTestHost(t, nil)
	h.applyConfig(t, `{}`)
	if err := h.plugin.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.plugin.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := h.plugin.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if n := len(h.sched.Snapshot().Schedules); n != 0 {
		t.Fatalf("schedules = %d, want 0", n)
	}
}

func TestOnConfigChangeWhileRunningReschedules(t *testing.T) {
	t.Parallel()
	h := newTestHost(t, nil)
	h.applyConfig(t, `{"push_time": "10:00"}`)
	if err := h.plugin.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.applyConfig(t, `{"push_time": "21:30"}`)
	if got, want := h.pushSpec(t), "30 21 * * *"; got != want {
		t.Fatalf("spec = %q, want %q after reload", got, want)
	}
	if n := len(h.sched.Snapshot().Schedules); n != 1 {
		t.Fatalf("schedules = %d, want 1 (upsert)", n)
	}
}

func TestOnConfigChangeRejectsBadJSON(t *testing.T) {
	t.Parallel()
	h := newTestHost(t, nil)
	if err := h.plugin.OnConfigChange(context.Background(), json.RawMessage(`{"push_time": 12}`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRunPushMoviesPrecedeTV(t *testing.T) {
	t.Parallel()
	fetch := &fakeFetcher{byCat: map[douban.Category][]douban.Item{
		douban.CategoryMovie: {
			{Title: "m1", Category: douban.CategoryMovie},
			{Title: "m2", Category: douban.CategoryMovie},
			{Title: "m3", Category: douban.CategoryMovie},
		},
		douban.CategoryTV: {
			{Title: "s1", Category: douban.CategoryTV},
			{Title: "s2", Category: douban.CategoryTV},
			{Title: "s3", Category: douban.CategoryTV},
		},
	}}
	h := newTestHost(t, fetch)
	h.applyConfig(t, `{}`)

	if err := h.plugin.runPush(context.Background()); err != nil {
		t.Fatalf("runPush: %v", err)
	}
	waitFor(t, func() bool { return len(h.adapter.sent()) == 1 })

	text := h.adapter.sent()[0]
	if !strings.HasPrefix(text, "今日热播资源推荐\n\n") {
		t.Fatalf("missing title prefix:\n%s", text)
	}
	if !strings.Contains(text, "🔥 热门电影: 3部") || !strings.Contains(text, "📺 热门剧集: 3部") {
		t.Fatalf("counts missing:\n%s", text)
	}
	if strings.Index(text, "m3") > strings.Index(text, "s1") {
		t.Fatalf("movies should precede tv:\n%s", text)
	}
}

func TestRunPushRespectsMaxItems(t *testing.T) {
	t.Parallel()
	many := make([]douban.Item, 10)
	for i := range many {
		many[i] = douban.Item{Title: "m", Category: douban.CategoryMovie}
	}
	fetch := &fakeFetcher{byCat: map[douban.Category][]douban.Item{douban.CategoryMovie: many}}
	h := newTestHost(t, fetch)
	h.applyConfig(t, `{"max_items": 2}`)

	if err := h.plugin.runPush(context.Background()); err != nil {
		t.Fatalf("runPush: %v", err)
	}
	waitFor(t, func() bool { return len(h.adapter.sent()) == 1 })
	if !strings.Contains(h.adapter.sent()[0], "🔥 热门电影: 2部") {
		t.Fatalf("limit not applied:\n%s", h.adapter.sent()[0])
	}
}

func TestRunPushSkipsWhenNothingFetched(t *testing.T) {
	t.Parallel()
	fetch := &fakeFetcher{errs: map[douban.Category]error{
		douban.CategoryMovie: errors.New("timeout"),
		douban.CategoryTV:    errors.New("timeout"),
	}}
	h := newTestHost(t, fetch)
	h.applyConfig(t, `{}`)

	if err := h.plugin.runPush(context.Background()); err != nil {
		t.Fatalf("runPush: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(h.adapter.sent()); n != 0 {
		t.Fatalf("sends = %d, want 0 when nothing was fetched", n)
	}
}

func TestRunPushOneCategoryFailing(t *testing.T) {
	t.Parallel()
	fetch := &fakeFetcher{
		byCat: map[douban.Category][]douban.Item{
			douban.CategoryTV: {{Title: "s1", Category: douban.CategoryTV}},
		},
		errs: map[douban.Category]error{douban.CategoryMovie: errors.New("boom")},
	}
	h := newTestHost(t, fetch)
	h.applyConfig(t, `{}`)

	if err := h.plugin.runPush(context.Background()); err != nil {
		t.Fatalf("runPush: %v", err)
	}
	waitFor(t, func() bool { return len(h.adapter.sent()) == 1 })
	text := h.adapter.sent()[0]
	if !strings.Contains(text, "🔥 热门电影: 0部") || !strings.Contains(text, "📺 热门剧集: 1部") {
		t.Fatalf("partial fetch should still push the surviving category:\n%s", text)
	}
}

func TestRunPushSwallowsNotifyFailure(t *testing.T) {
	t.Parallel()
	fetch := &fakeFetcher{byCat: map[douban.Category][]douban.Item{
		douban.CategoryMovie: {{Title: "m1", Category: douban.CategoryMovie}},
	}}
	p := New()
	p.client = fetch
	sched := scheduler.New(scheduler.Config{Enabled: false}, logx.Nop())
	// No notifier wired: Notify fails for every push attempt.
	deps := plugin.PluginDeps{Logger: logx.Nop(), Services: &plugin.Services{Scheduler: sched}}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.OnConfigChange(context.Background(), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}

	if err := p.runPush(context.Background()); err != nil {
		t.Fatalf("runPush must not surface notify failures, got %v", err)
	}
}

func TestRunPushContainsPanic(t *testing.T) {
	t.Parallel()
	fetch := &fakeFetcher{panicOn: douban.CategoryMovie}
	h := newTestHost(t, fetch)
	h.applyConfig(t, `{}`)

	if err := h.plugin.runPush(context.Background()); err != nil {
		t.Fatalf("runPush after panic: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(h.adapter.sent()); n != 0 {
		t.Fatalf("sends = %d, want 0 after contained panic", n)
	}
}
