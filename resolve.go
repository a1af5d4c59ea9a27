package protocast

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// target describes what a caster converts into. A nil schema means the
// abstract base: any message is accepted.
type target struct {
	schema  protoreflect.MessageDescriptor
	msgType protoreflect.MessageType
}

func (t target) abstract() bool {
	return t.schema == nil
}

func (t target) name() string {
	if t.schema == nil {
		return ""
	}
	return string(t.schema.FullName())
}

type resolution uint8

const (
	resolveMiss resolution = iota
	resolveHit
	resolveRejected
)

// resolve looks for a native message already aliased by h. Callers must have
// handled the null handle before calling it.
func (c *Caster[M]) resolve(h Handle) (M, resolution) {
	var zero M
	aliased := c.cfg.runtime.AliasedNative(h)
	if aliased == nil {
		return zero, resolveMiss
	}
	if !c.target.abstract() && !sameSchema(c.target.schema, aliased) {
		if c.cfg.strictIdentity {
			return zero, resolveRejected
		}
		return zero, resolveMiss
	}
	typed, ok := aliased.(M)
	if !ok {
		return zero, resolveMiss
	}
	return typed, resolveHit
}

// sameSchema compares schema instances, never names. Descriptors with the
// same full name loaded into different registries are distinct.
func sameSchema(expected protoreflect.MessageDescriptor, msg proto.Message) bool {
	if expected == nil || msg == nil {
		return false
	}
	return msg.ProtoReflect().Descriptor() == expected
}
