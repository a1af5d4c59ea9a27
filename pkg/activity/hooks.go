package activity

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"
)

// Event describes one conversion step. Schema, policy and outcome details
// travel in Metadata under the Meta* keys.
type Event struct {
	Verb       string
	ActorID    string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Deliverable reports whether the event carries the fields sinks key on.
func (e Event) Deliverable() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// Schema returns the target schema recorded on the event.
func (e Event) Schema() string {
	return e.metaString(MetaSchema)
}

// Policy returns the cast policy recorded on the event, if any.
func (e Event) Policy() string {
	return e.metaString(MetaPolicy)
}

// Failed reports whether the event records a conversion error.
func (e Event) Failed() bool {
	return e.metaString(MetaError) != ""
}

func (e Event) metaString(key string) string {
	value, _ := e.Metadata[key].(string)
	return value
}

// ActivityHook receives normalized conversion events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes the event once and hands it to every hook. Events that
// are not deliverable are dropped. Hook failures are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	event = NormalizeEvent(event)
	if !event.Deliverable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h.Clone() {
		errs = append(errs, hook.Notify(ctx, event))
	}
	return errors.Join(errs...)
}

// Clone drops nil hooks and returns a detached slice, or nil when empty.
func (h Hooks) Clone() Hooks {
	var out Hooks
	for _, hook := range h {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}

// NormalizeEvent trims identifiers, copies metadata and stamps OccurredAt.
func NormalizeEvent(event Event) Event {
	for _, field := range []*string{
		&event.Verb, &event.ActorID, &event.TenantID,
		&event.ObjectType, &event.ObjectID, &event.Channel,
	} {
		*field = strings.TrimSpace(*field)
	}
	event.Metadata = cloneMap(event.Metadata)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
