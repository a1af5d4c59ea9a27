// Package usersink records conversion events through a go-users ActivitySink.
package usersink

import (
	"context"
	"strings"

	"github.com/goliatone/go-protocast/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook adapts conversion events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
// Events built from a UUID conversion id also carry it as "conversion_id".
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if !event.Deliverable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, toRecord(event))
}

func toRecord(event activity.Event) usertypes.ActivityRecord {
	data := event.Metadata
	if id := parseUUID(event.ObjectID); id != uuid.Nil {
		if data == nil {
			data = map[string]any{}
		}
		data["conversion_id"] = id.String()
	}
	return usertypes.ActivityRecord{
		ActorID:    parseUUID(event.ActorID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
