package activity

import (
	"context"
	"strings"
)

// DefaultChannel is used when Config.Channel is blank.
const DefaultChannel = "protocast"

// Config controls activity emission defaults.
type Config struct {
	Enabled  bool
	Channel  string
	ActorID  string
	TenantID string
}

// Emitter stamps configured defaults onto conversion events and fans them out.
type Emitter struct {
	hooks    Hooks
	defaults Config
}

// NewEmitter constructs an emitter from hooks and configuration. It is
// disabled when cfg.Enabled is false or no non-nil hook remains.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	cfg.ActorID = strings.TrimSpace(cfg.ActorID)
	cfg.TenantID = strings.TrimSpace(cfg.TenantID)
	hooks = hooks.Clone()
	cfg.Enabled = cfg.Enabled && hooks.Enabled()
	return &Emitter{hooks: hooks, defaults: cfg}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.defaults.Enabled
}

// Emit fills blank channel, actor and tenant fields then notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	fill(&event.Channel, e.defaults.Channel)
	fill(&event.ActorID, e.defaults.ActorID)
	fill(&event.TenantID, e.defaults.TenantID)
	return e.hooks.Notify(ctx, event)
}

func fill(field *string, fallback string) {
	if strings.TrimSpace(*field) == "" {
		*field = fallback
	}
}
