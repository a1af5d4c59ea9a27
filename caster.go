package protocast

import (
	"reflect"
	"time"

	"github.com/goliatone/go-protocast/pkg/activity"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Caster converts messages of type M across the runtime boundary. When M is
// an interface type (typically proto.Message) the caster targets the abstract
// base and accepts any registered schema. Casters are safe for concurrent use
// as long as the configured Runtime is.
type Caster[M proto.Message] struct {
	cfg     casterConfig
	target  target
	emitter *activity.Emitter
}

// NewCaster builds a caster for M. Concrete generated message types yield an
// exact-type caster, interface types an abstract-base caster.
func NewCaster[M proto.Message](opts ...Option) *Caster[M] {
	return newCaster[M](targetFor[M](), opts)
}

// NewCasterFor builds an exact-type caster for mt, which is how dynamic
// message types (dynamicpb) are targeted.
func NewCasterFor[M proto.Message](mt protoreflect.MessageType, opts ...Option) *Caster[M] {
	t := target{}
	if mt != nil {
		t = target{schema: mt.Descriptor(), msgType: mt}
	}
	return newCaster[M](t, opts)
}

func newCaster[M proto.Message](t target, opts []Option) *Caster[M] {
	cfg := applyOptions(opts)
	return &Caster[M]{
		cfg:     cfg,
		target:  t,
		emitter: newActivityEmitter(cfg),
	}
}

func targetFor[M proto.Message]() target {
	if reflect.TypeFor[M]().Kind() == reflect.Interface {
		return target{}
	}
	var zero M
	if _, dynamic := any(zero).(*dynamicpb.Message); dynamic {
		// Dynamic messages carry their schema per instance; use NewCasterFor
		// to pin one.
		return target{}
	}
	mt := zero.ProtoReflect().Type()
	return target{schema: mt.Descriptor(), msgType: mt}
}

// Schema returns the expected schema, or nil for abstract-base casters.
func (c *Caster[M]) Schema() protoreflect.MessageDescriptor {
	return c.target.schema
}

// Abstract reports whether the caster accepts any message schema.
func (c *Caster[M]) Abstract() bool {
	return c.target.abstract()
}

// Runtime returns the configured foreign runtime.
func (c *Caster[M]) Runtime() Runtime {
	return c.cfg.runtime
}

// Load converts h into a fresh Loaded value. The boolean mirrors
// Loaded.Load and is false when the handle cannot be converted.
func (c *Caster[M]) Load(h Handle) (*Loaded[M], bool) {
	loaded := c.NewLoaded()
	ok := loaded.Load(h)
	return loaded, ok
}

// NewLoaded returns an empty Loaded value bound to c.
func (c *Caster[M]) NewLoaded() *Loaded[M] {
	return &Loaded[M]{caster: c}
}

func (c *Caster[M]) logEvent(op, typeName, policy, result string, start time.Time, err error) {
	c.cfg.logger.LogConversion(ConversionLogEvent{
		Op:       op,
		Schema:   c.target.name(),
		TypeName: typeName,
		Policy:   policy,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
}

func messageName(msg proto.Message) string {
	if isNilMessage(msg) {
		return ""
	}
	return string(msg.ProtoReflect().Descriptor().FullName())
}

func isNilMessage(msg proto.Message) bool {
	if msg == nil {
		return true
	}
	rv := reflect.ValueOf(msg)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return true
	}
	return false
}
