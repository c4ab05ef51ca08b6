package plugin

import (
	"context"
	"encoding/json"

	"hotbot/internal/config"
	"hotbot/internal/notifier"
	"hotbot/internal/services/scheduler"
	"hotbot/internal/storage"
	logx "hotbot/pkg/logx"
)

// Plugin is the lifecycle contract every plugin implements.
//
// Init wires dependencies and is called at most once per process. Start/Stop
// bracket the running state: a plugin is considered loaded once Start returns
// nil, and unloaded after Stop. Plugins must tolerate Stop without a prior
// successful Start.
type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ConfigurablePlugin is an optional hook for applying per-plugin config,
// both before first Start and on hot reload.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// Services are the host capabilities exposed to plugins.
type Services struct {
	Scheduler *scheduler.Service
	Notifier  *notifier.Service
}

type PluginDeps struct {
	Logger   logx.Logger
	Config   *config.ConfigManager
	Services *Services
	Store    storage.Store
}

// DecodePluginConfig decodes per-plugin raw json into a typed config struct.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
