package activity

import (
	"strings"
	"time"
)

const (
	VerbMaterialized = "protocast.materialized"
	VerbPromoted     = "protocast.promoted"
	VerbCast         = "protocast.cast"
	VerbRejected     = "protocast.load.rejected"

	// ObjectTypeMessage is the object type of every conversion event.
	ObjectTypeMessage = "protocast.message"
)

// Metadata keys set by the event builders.
const (
	MetaSchema    = "schema"
	MetaTypeName  = "type_name"
	MetaPolicy    = "policy"
	MetaOutcome   = "outcome"
	MetaKeepAlive = "keep_alive"
	MetaError     = "error"
)

// ConversionEventInput describes the common fields for conversion events.
type ConversionEventInput struct {
	ConversionID string
	ActorID      string
	TenantID     string
	Channel      string
	Schema       string
	TypeName     string
	Policy       string
	Outcome      string
	KeepAlive    bool
	Err          error
	Metadata     map[string]any
	OccurredAt   time.Time
}

// BuildMaterializedEvent describes a foreign value copied into a new native message.
func BuildMaterializedEvent(input ConversionEventInput) Event {
	return buildConversionEvent(VerbMaterialized, input)
}

// BuildPromotedEvent describes a borrowed alias promoted to an owned copy.
func BuildPromotedEvent(input ConversionEventInput) Event {
	return buildConversionEvent(VerbPromoted, input)
}

// BuildCastEvent describes a native message exposed to the foreign runtime.
func BuildCastEvent(input ConversionEventInput) Event {
	return buildConversionEvent(VerbCast, input)
}

// BuildLoadRejectedEvent describes a foreign value that could not be converted.
func BuildLoadRejectedEvent(input ConversionEventInput) Event {
	return buildConversionEvent(VerbRejected, input)
}

func buildConversionEvent(verb string, input ConversionEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if schema := strings.TrimSpace(input.Schema); schema != "" {
		metadata = ensureMetadata(metadata)
		metadata[MetaSchema] = schema
	}
	if typeName := strings.TrimSpace(input.TypeName); typeName != "" {
		metadata = ensureMetadata(metadata)
		metadata[MetaTypeName] = typeName
	}
	if input.Policy != "" {
		metadata = ensureMetadata(metadata)
		metadata[MetaPolicy] = input.Policy
	}
	if input.Outcome != "" {
		metadata = ensureMetadata(metadata)
		metadata[MetaOutcome] = input.Outcome
	}
	if input.KeepAlive {
		metadata = ensureMetadata(metadata)
		metadata[MetaKeepAlive] = true
	}
	if input.Err != nil {
		metadata = ensureMetadata(metadata)
		metadata[MetaError] = input.Err.Error()
	}

	objectID := strings.TrimSpace(input.ConversionID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.TypeName)
	}
	if objectID == "" {
		objectID = strings.TrimSpace(input.Schema)
	}
	if objectID == "" {
		objectID = ObjectTypeMessage
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectTypeMessage,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
