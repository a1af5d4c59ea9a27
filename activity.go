package protocast

import (
	"context"

	"github.com/goliatone/go-protocast/pkg/activity"
	"github.com/google/uuid"
)

// WithActivityHooks attaches activity hooks to the caster. Hooks are cloned
// and nil entries dropped. Emission is enabled by default once hooks are set.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := hooks.Clone()
	return func(cfg *casterConfig) {
		cfg.hooks = normalized
	}
}

// WithActivityConfig replaces the emission defaults; Enabled must be set for
// events to be emitted.
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *casterConfig) {
		cfg.activityConfig = &config
	}
}

// ActivityHooks returns a cloned slice of the configured hooks.
func (c *Caster[M]) ActivityHooks() activity.Hooks {
	if c == nil {
		return nil
	}
	return c.cfg.hooks.Clone()
}

func newActivityEmitter(cfg casterConfig) *activity.Emitter {
	if len(cfg.hooks) == 0 {
		return nil
	}
	config := activity.Config{Enabled: true}
	if cfg.activityConfig != nil {
		config = *cfg.activityConfig
	}
	return activity.NewEmitter(cfg.hooks, config)
}

func (c *Caster[M]) emit(event activity.Event) {
	if !c.emitter.Enabled() {
		return
	}
	// Hook failures never change the outcome of a conversion.
	_ = c.emitter.Emit(context.Background(), event)
}

func (c *Caster[M]) conversionInput(typeName string) activity.ConversionEventInput {
	return activity.ConversionEventInput{
		ConversionID: uuid.NewString(),
		Schema:       c.target.name(),
		TypeName:     typeName,
	}
}

func (c *Caster[M]) emitMaterialized(typeName string) {
	if !c.emitter.Enabled() {
		return
	}
	c.emit(activity.BuildMaterializedEvent(c.conversionInput(typeName)))
}

func (c *Caster[M]) emitPromoted(typeName string) {
	if !c.emitter.Enabled() {
		return
	}
	c.emit(activity.BuildPromotedEvent(c.conversionInput(typeName)))
}

func (c *Caster[M]) emitRejected(typeName string, err error) {
	if !c.emitter.Enabled() {
		return
	}
	input := c.conversionInput(typeName)
	input.Err = err
	c.emit(activity.BuildLoadRejectedEvent(input))
}

func (c *Caster[M]) emitCast(typeName string, out Outcome) {
	if !c.emitter.Enabled() {
		return
	}
	input := c.conversionInput(typeName)
	input.Policy = out.Policy.String()
	input.Outcome = out.Kind.String()
	input.KeepAlive = out.Parent != nil
	c.emit(activity.BuildCastEvent(input))
}
