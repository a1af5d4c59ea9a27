package protocast

import (
	"strings"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// SchemaCache stores resolved message types keyed by full name.
type SchemaCache interface {
	Get(key string) (protoreflect.MessageType, bool)
	Set(key string, value protoreflect.MessageType)
}

// NewSchemaCache returns a SchemaCache safe for concurrent use.
func NewSchemaCache() SchemaCache {
	return &syncSchemaCache{}
}

type syncSchemaCache struct {
	entries sync.Map
}

func (c *syncSchemaCache) Get(key string) (protoreflect.MessageType, bool) {
	value, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	mt, ok := value.(protoreflect.MessageType)
	return mt, ok
}

func (c *syncSchemaCache) Set(key string, value protoreflect.MessageType) {
	if value == nil {
		return
	}
	c.entries.Store(key, value)
}

// RegistryOption configures a TypeRegistry.
type RegistryOption func(*TypeRegistry)

// RegistryWithAllocator sets the allocator used for new instances.
func RegistryWithAllocator(allocator Allocator) RegistryOption {
	return func(r *TypeRegistry) {
		if allocator != nil {
			r.allocator = allocator
		}
	}
}

// RegistryWithCache caches resolver lookups.
func RegistryWithCache(cache SchemaCache) RegistryOption {
	return func(r *TypeRegistry) {
		r.cache = cache
	}
}

// TypeRegistry allocates messages by name through a protoregistry resolver.
type TypeRegistry struct {
	resolver  protoregistry.MessageTypeResolver
	allocator Allocator
	cache     SchemaCache
}

// NewRegistry constructs a Registry over resolver. A nil resolver falls back
// to protoregistry.GlobalTypes.
func NewRegistry(resolver protoregistry.MessageTypeResolver, opts ...RegistryOption) *TypeRegistry {
	if resolver == nil {
		resolver = protoregistry.GlobalTypes
	}
	r := &TypeRegistry{
		resolver:  resolver,
		allocator: defaultAllocator{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lookup resolves name to a message type.
func (r *TypeRegistry) Lookup(name string) (protoreflect.MessageType, bool) {
	key := strings.TrimSpace(name)
	if key == "" {
		return nil, false
	}
	if r.cache != nil {
		if mt, ok := r.cache.Get(key); ok {
			return mt, true
		}
	}
	mt, err := r.resolver.FindMessageByName(protoreflect.FullName(key))
	if err != nil {
		return nil, false
	}
	if r.cache != nil {
		r.cache.Set(key, mt)
	}
	return mt, true
}

// AllocateByName implements Registry.
func (r *TypeRegistry) AllocateByName(name string) (proto.Message, bool) {
	mt, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	msg := r.allocator.New(mt)
	if msg == nil {
		return nil, false
	}
	return msg, true
}
