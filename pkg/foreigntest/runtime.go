package foreigntest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ErrCorrupt is returned when an object's payload cannot be decoded.
var ErrCorrupt = errors.New("foreigntest: corrupt payload")

// Null is the foreign null value.
var Null = &Object{null: true}

// Object is a foreign-side value.
type Object struct {
	TypeName string
	Data     []byte
	Alias    proto.Message
	Corrupt  bool

	null bool
}

// Runtime is an in-memory foreign runtime. It is safe for concurrent use.
type Runtime struct {
	mu     sync.Mutex
	edges  map[*Object]any
	copies atomic.Int64
	alias  atomic.Int64
}

// New constructs an empty runtime.
func New() *Runtime {
	return &Runtime{edges: map[*Object]any{}}
}

// Wrap returns a foreign object aliasing msg.
func (r *Runtime) Wrap(msg proto.Message) *Object {
	return &Object{Alias: msg}
}

// Foreign returns a foreign-only object claiming typeName with raw payload.
func (r *Runtime) Foreign(typeName string, data []byte) *Object {
	return &Object{TypeName: typeName, Data: append([]byte(nil), data...)}
}

// ForeignFrom serializes msg into a foreign-only object.
func (r *Runtime) ForeignFrom(msg proto.Message) (*Object, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Object{TypeName: string(msg.ProtoReflect().Descriptor().FullName()), Data: data}, nil
}

func (r *Runtime) IsNull(h any) bool {
	if h == nil {
		return true
	}
	obj, ok := h.(*Object)
	return ok && (obj == nil || obj.null)
}

func (r *Runtime) AliasedNative(h any) proto.Message {
	obj, ok := h.(*Object)
	if !ok || obj == nil {
		return nil
	}
	return obj.Alias
}

func (r *Runtime) TypeName(h any) (string, bool) {
	obj, ok := h.(*Object)
	if !ok || obj == nil || obj.null {
		return "", false
	}
	if obj.Alias != nil {
		return string(obj.Alias.ProtoReflect().Descriptor().FullName()), true
	}
	if obj.TypeName == "" {
		return "", false
	}
	return obj.TypeName, true
}

func (r *Runtime) CopyToNative(h any, dst proto.Message) error {
	obj, ok := h.(*Object)
	if !ok || obj == nil || obj.null {
		return fmt.Errorf("foreigntest: %T is not a foreign object", h)
	}
	data := obj.Data
	if obj.Alias != nil {
		encoded, err := proto.Marshal(obj.Alias)
		if err != nil {
			return err
		}
		data = encoded
	}
	if obj.Corrupt {
		return ErrCorrupt
	}
	if err := proto.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func (r *Runtime) None() any {
	return Null
}

func (r *Runtime) Alias(msg proto.Message) (any, error) {
	r.alias.Add(1)
	return r.Wrap(msg), nil
}

func (r *Runtime) Copy(msg proto.Message) (any, error) {
	r.copies.Add(1)
	return r.ForeignFrom(msg)
}

func (r *Runtime) KeepAlive(result, parent any) error {
	obj, ok := result.(*Object)
	if !ok || obj == nil {
		return fmt.Errorf("foreigntest: cannot keep %T alive", result)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges[obj] = parent
	return nil
}

// Parent returns the keep-alive parent recorded for result.
func (r *Runtime) Parent(result any) (any, bool) {
	obj, ok := result.(*Object)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.edges[obj]
	return parent, ok
}

// Copies returns the number of foreign copies produced.
func (r *Runtime) Copies() int64 {
	return r.copies.Load()
}

// Aliases returns the number of foreign aliases produced.
func (r *Runtime) Aliases() int64 {
	return r.alias.Load()
}

// Decode unmarshals a foreign object's payload into dst.
func Decode(h any, dst proto.Message) error {
	obj, ok := h.(*Object)
	if !ok || obj == nil {
		return fmt.Errorf("foreigntest: %T is not a foreign object", h)
	}
	if obj.Alias != nil {
		proto.Reset(dst)
		proto.Merge(dst, obj.Alias)
		return nil
	}
	return proto.Unmarshal(obj.Data, dst)
}

// CountingAllocator counts every allocation.
type CountingAllocator struct {
	n atomic.Int64
}

// New allocates a new instance of mt.
func (a *CountingAllocator) New(mt protoreflect.MessageType) proto.Message {
	a.n.Add(1)
	return mt.New().Interface()
}

// Count returns the number of allocations so far.
func (a *CountingAllocator) Count() int64 {
	return a.n.Load()
}
