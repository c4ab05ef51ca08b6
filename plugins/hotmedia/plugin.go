// Package hotmedia pushes a daily digest of trending movies and TV shows
// from Douban to the configured chat.
package hotmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hotbot/internal/plugin"
	"hotbot/internal/services/scheduler"
	"hotbot/pkg/douban"
	logx "hotbot/pkg/logx"
)

const (
	pluginName      = "hotmedia"
	pushJobName     = "push"
	defaultPushTime = "10:00"
	defaultMaxItems = 5
	pushJobTimeout  = 2 * time.Minute
)

// Config holds the per-plugin settings from the host config file.
type Config struct {
	// PushTime is the daily send time as "HH:MM" (scheduler timezone).
	PushTime string `json:"push_time"`
	// MaxItems is the per-category item cap.
	MaxItems int `json:"max_items"`
}

func (c *Config) applyDefaults() {
	if c.PushTime == "" {
		c.PushTime = defaultPushTime
	}
	if c.MaxItems <= 0 {
		c.MaxItems = defaultMaxItems
	}
}

type fetcher interface {
	Trending(ctx context.Context, cat douban.Category, limit int) ([]douban.Item, error)
}

type Plugin struct {
	plugin.PluginBase

	client fetcher
	now    func() time.Time

	mu      sync.RWMutex
	cfg     Config
	started bool
}

func New() *Plugin {
	return &Plugin{
		client: douban.NewClient(),
		now:    time.Now,
	}
}

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	p.mu.Lock()
	p.cfg = Config{PushTime: defaultPushTime, MaxItems: defaultMaxItems}
	p.mu.Unlock()
	return nil
}

// OnConfigChange applies the plugin config, re-registering the push job when
// the plugin is already running so a new push_time takes effect immediately.
func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	cfg, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return fmt.Errorf("hotmedia config: %w", err)
	}
	cfg.applyDefaults()

	p.mu.Lock()
	p.cfg = cfg
	running := p.started
	p.mu.Unlock()

	if running {
		p.registerPushJob()
	}
	return nil
}

// Start registers the daily push job. A failed registration leaves the plugin
// loaded but idle rather than failing the load.
func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	p.registerPushJob()
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	if !p.RemoveSchedule(pushJobName) {
		p.Log.Debug("push job was not registered")
	}
	return p.StopBase(ctx)
}

func (p *Plugin) registerPushJob() {
	p.mu.RLock()
	at := p.cfg.PushTime
	p.mu.RUnlock()

	if _, _, err := scheduler.ParseHHMM(at); err != nil {
		p.Log.Warn("invalid push_time, using 10:00",
			logx.String("push_time", at), logx.Err(err))
		at = defaultPushTime
	}

	if _, err := p.Daily(pushJobName, at, pushJobTimeout, p.runPush); err != nil {
		p.Log.Error("daily push job registration failed, no daily push will occur",
			logx.String("at", at), logx.Err(err))
	}
}

func (p *Plugin) maxItems() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.MaxItems
}
