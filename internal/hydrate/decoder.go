package hydrate

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Context carries identifiers tied to a foreign payload.
type Context struct {
	TypeName string
	Source   string
}

// Resolver resolves message and extension types referenced by a payload,
// including the type URL of google.protobuf.Any.
type Resolver interface {
	protoregistry.MessageTypeResolver
	protoregistry.ExtensionTypeResolver
}

// PreHook lets callers mutate or normalise the payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated message after decoding.
type PostHook[M proto.Message] func(Context, M) error

// CustomDecoder replaces the default protojson decoding when provided.
type CustomDecoder[M proto.Message] func(Context, map[string]any, M) error

// DecoderOption configures a Decoder instance.
type DecoderOption[M proto.Message] func(*Decoder[M])

// Decoder converts foreign object payloads into protobuf messages.
type Decoder[M proto.Message] struct {
	preHooks  []PreHook
	postHooks []PostHook[M]
	unmarshal protojson.UnmarshalOptions
	custom    CustomDecoder[M]
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[M proto.Message](hook PreHook) DecoderOption[M] {
	return func(d *Decoder[M]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[M proto.Message](hook PostHook[M]) DecoderOption[M] {
	return func(d *Decoder[M]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithResolver sets the type resolver used for Any payloads.
func WithResolver[M proto.Message](resolver Resolver) DecoderOption[M] {
	return func(d *Decoder[M]) {
		if resolver != nil {
			d.unmarshal.Resolver = resolver
		}
	}
}

// WithDiscardUnknown ignores fields the target schema does not declare.
func WithDiscardUnknown[M proto.Message]() DecoderOption[M] {
	return func(d *Decoder[M]) {
		d.unmarshal.DiscardUnknown = true
	}
}

// WithCustomDecoder replaces the default protojson decoding path.
func WithCustomDecoder[M proto.Message](decoder CustomDecoder[M]) DecoderOption[M] {
	return func(d *Decoder[M]) {
		d.custom = decoder
	}
}

func NewDecoder[M proto.Message](opts ...DecoderOption[M]) *Decoder[M] {
	d := &Decoder[M]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode populates dst from payload applying configured hooks. dst is reset
// before decoding.
func (d *Decoder[M]) Decode(ctx Context, payload map[string]any, dst M) error {
	if payload == nil {
		return fmt.Errorf("hydrate: payload is nil for %q", ctx.TypeName)
	}

	current, err := clonePayload(payload)
	if err != nil {
		return fmt.Errorf("hydrate: clone payload for %q: %w", ctx.TypeName, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return fmt.Errorf("hydrate: pre-hook for %q failed: %w", ctx.TypeName, err)
		}
		if next != nil {
			current = next
		}
	}

	if d.custom != nil {
		if err := d.custom(ctx, current, dst); err != nil {
			return fmt.Errorf("hydrate: custom decoder for %q failed: %w", ctx.TypeName, err)
		}
	} else {
		buffer, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("hydrate: marshal payload for %q: %w", ctx.TypeName, err)
		}
		if err := d.unmarshal.Unmarshal(buffer, dst); err != nil {
			return fmt.Errorf("hydrate: decode %q: %w", ctx.TypeName, err)
		}
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, dst); err != nil {
			return fmt.Errorf("hydrate: post-hook for %q failed: %w", ctx.TypeName, err)
		}
	}

	return nil
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
