package protocast

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// materialize allocates an owned message populated from h. The returned
// message is only reachable by the caller; on failure nothing is kept.
func (c *Caster[M]) materialize(h Handle) (M, string, error) {
	var zero M
	typeName, ok := c.cfg.runtime.TypeName(h)
	if !ok || typeName == "" {
		return zero, "", fmt.Errorf("%w: foreign value carries no message type", ErrTypeMismatch)
	}

	var allocated proto.Message
	if c.target.abstract() {
		msg, found := c.cfg.registry.AllocateByName(typeName)
		if !found || msg == nil {
			return zero, typeName, fmt.Errorf("%w: %s", ErrUnknownSchema, typeName)
		}
		allocated = msg
	} else {
		if typeName != c.target.name() {
			return zero, typeName, fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, c.target.name(), typeName)
		}
		allocated = c.cfg.allocator.New(c.target.msgType)
	}

	typed, ok := allocated.(M)
	if !ok {
		return zero, typeName, fmt.Errorf("%w: allocated %T for %s", ErrTypeMismatch, allocated, typeName)
	}
	if err := c.cfg.runtime.CopyToNative(h, allocated); err != nil {
		return zero, typeName, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return typed, typeName, nil
}

// Materialize converts h into a freshly allocated message, bypassing the
// zero-copy path. The result is exclusively owned by the caller.
func (c *Caster[M]) Materialize(h Handle) (M, error) {
	var zero M
	if c.cfg.runtime == nil {
		return zero, ErrNoRuntime
	}
	if c.cfg.runtime.IsNull(h) {
		return zero, wrapConversionError("materialize", c.target.name(), "", fmt.Errorf("%w: null value", ErrTypeMismatch))
	}
	msg, typeName, err := c.materialize(h)
	if err != nil {
		return zero, wrapConversionError("materialize", c.target.name(), typeName, err)
	}
	return msg, nil
}
