package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"k": "v"}
	evt := Event{
		Verb:       " protocast.cast ",
		ActorID:    " actor ",
		TenantID:   " tenant ",
		ObjectType: " protocast.message ",
		ObjectID:   " 42 ",
		Channel:    " protocast ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "protocast.cast" || got.ObjectType != "protocast.message" || got.ObjectID != "42" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.TenantID != "tenant" || got.Channel != "protocast" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["k"] = "changed"
	if evt.Metadata["k"] != "v" {
		t.Fatalf("expected original metadata untouched: %+v", evt.Metadata)
	}
}

func TestHooksNotifyShortCircuitsMissingRequired(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	if err := hooks.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			if ctx != nil {
				ctxSeen = true
			}
			return nil
		}),
		capture,
		HookFunc(func(_ context.Context, _ Event) error { return boom1 }),
		nil,
		HookFunc(func(_ context.Context, _ Event) error { return boom2 }),
	}

	//nolint:staticcheck // nil context exercises the fallback
	err := hooks.Notify(nil, Event{Verb: VerbCast, ObjectType: ObjectTypeMessage, ObjectID: "1"})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events))
	}
}

func TestHooksCloneDropsNil(t *testing.T) {
	if cloned := (Hooks{nil, nil}).Clone(); cloned != nil {
		t.Fatalf("expected nil clone, got %+v", cloned)
	}
	capture := &CaptureHook{}
	cloned := Hooks{nil, capture}.Clone()
	if len(cloned) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(cloned))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}
	event := Event{Verb: VerbMaterialized, ObjectType: ObjectTypeMessage, ObjectID: "1"}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, ActorID: "svc"})
	if !enabled.Enabled() {
		t.Fatalf("expected emitter to be enabled")
	}
	if err := enabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected one event captured, got %d", len(capture.Events))
	}
	if capture.Events[0].Channel != "protocast" {
		t.Fatalf("expected default channel applied, got %q", capture.Events[0].Channel)
	}
	if capture.Events[0].ActorID != "svc" {
		t.Fatalf("expected default actor applied, got %q", capture.Events[0].ActorID)
	}
}

func TestEmitterPreservesExplicitFields(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default", ActorID: "svc"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := emitter.Emit(context.Background(), Event{
		Verb:       VerbCast,
		ObjectType: ObjectTypeMessage,
		ObjectID:   "1",
		Channel:    "custom",
		ActorID:    "caller",
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events[0]
	if got.Channel != "custom" || got.ActorID != "caller" {
		t.Fatalf("expected explicit fields preserved, got %+v", got)
	}
	if !got.OccurredAt.Equal(at) {
		t.Fatalf("expected occurred_at preserved, got %v", got.OccurredAt)
	}
}

func TestEventAccessors(t *testing.T) {
	event := BuildLoadRejectedEvent(ConversionEventInput{
		Schema: "pkg.A",
		Policy: "copy",
		Err:    errors.New("type mismatch"),
	})
	if !event.Deliverable() {
		t.Fatalf("expected built event to be deliverable, got %+v", event)
	}
	if event.Schema() != "pkg.A" || event.Policy() != "copy" || !event.Failed() {
		t.Fatalf("unexpected accessors: schema=%q policy=%q failed=%v", event.Schema(), event.Policy(), event.Failed())
	}
	if (Event{Verb: VerbCast}).Deliverable() {
		t.Fatalf("expected event without object to be undeliverable")
	}
	if (Event{}).Failed() || (Event{}).Schema() != "" {
		t.Fatalf("expected empty accessors on empty event")
	}
}
