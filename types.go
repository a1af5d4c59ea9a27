package protocast

import (
	"github.com/goliatone/go-protocast/pkg/activity"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Handle is an opaque reference into the foreign runtime.
type Handle = any

// Runtime exposes the foreign-side primitives the caster depends on.
// Implementations are not required to be safe for concurrent use.
type Runtime interface {
	// IsNull reports whether h is the foreign null value.
	IsNull(h Handle) bool
	// AliasedNative returns the Go message h already wraps, or nil.
	AliasedNative(h Handle) proto.Message
	// TypeName reports the fully qualified message name carried by h.
	TypeName(h Handle) (string, bool)
	// CopyToNative populates dst from the content of h.
	CopyToNative(h Handle, dst proto.Message) error

	// None returns the foreign null value.
	None() Handle
	// Alias wraps msg without copying it.
	Alias(msg proto.Message) (Handle, error)
	// Copy builds an independent foreign object from msg.
	Copy(msg proto.Message) (Handle, error)
	// KeepAlive keeps parent reachable for as long as result is.
	KeepAlive(result, parent Handle) error
}

// Registry allocates messages by fully qualified schema name.
type Registry interface {
	AllocateByName(name string) (proto.Message, bool)
}

// Allocator creates new message instances. It is the single allocation point
// used by casters, which makes allocation observable in tests.
type Allocator interface {
	New(mt protoreflect.MessageType) proto.Message
}

// AllocatorFunc adapts a function to Allocator.
type AllocatorFunc func(mt protoreflect.MessageType) proto.Message

// New implements Allocator.
func (f AllocatorFunc) New(mt protoreflect.MessageType) proto.Message {
	return f(mt)
}

type defaultAllocator struct{}

func (defaultAllocator) New(mt protoreflect.MessageType) proto.Message {
	return mt.New().Interface()
}

// CastMode selects how native values are exposed to the foreign runtime.
type CastMode uint8

const (
	// CastModeFast honors reference policies and aliases when asked to.
	CastModeFast CastMode = iota
	// CastModeNative always copies, for runtimes that cannot alias Go memory.
	CastModeNative
)

func (m CastMode) String() string {
	switch m {
	case CastModeFast:
		return "fast"
	case CastModeNative:
		return "native"
	default:
		return "unknown"
	}
}

// Option configures a Caster.
type Option func(*casterConfig)

type casterConfig struct {
	runtime        Runtime
	registry       Registry
	resolver       protoregistry.MessageTypeResolver
	allocator      Allocator
	cache          SchemaCache
	logger         ConversionLogger
	hooks          activity.Hooks
	activityConfig *activity.Config
	strictIdentity bool
	mode           CastMode
}

func applyOptions(opts []Option) casterConfig {
	cfg := casterConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.allocator == nil {
		cfg.allocator = defaultAllocator{}
	}
	if cfg.resolver == nil {
		cfg.resolver = protoregistry.GlobalTypes
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry(cfg.resolver,
			RegistryWithAllocator(cfg.allocator),
			RegistryWithCache(cfg.cache),
		)
	}
	if cfg.logger == nil {
		cfg.logger = noopConversionLogger{}
	}
	return cfg
}

// WithRuntime sets the foreign runtime used for loads and casts.
func WithRuntime(rt Runtime) Option {
	return func(cfg *casterConfig) {
		cfg.runtime = rt
	}
}

// WithRegistry replaces the name based allocator used for abstract targets.
func WithRegistry(registry Registry) Option {
	return func(cfg *casterConfig) {
		cfg.registry = registry
	}
}

// WithResolver sets the message type resolver backing the default registry.
// Defaults to protoregistry.GlobalTypes.
func WithResolver(resolver protoregistry.MessageTypeResolver) Option {
	return func(cfg *casterConfig) {
		cfg.resolver = resolver
	}
}

// WithAllocator routes every message allocation through allocator.
func WithAllocator(allocator Allocator) Option {
	return func(cfg *casterConfig) {
		cfg.allocator = allocator
	}
}

// WithSchemaCache caches name lookups performed by the default registry.
func WithSchemaCache(cache SchemaCache) Option {
	return func(cfg *casterConfig) {
		cfg.cache = cache
	}
}

// WithStrictIdentity rejects aliases whose schema instance differs from the
// expected one instead of falling back to a serialized copy.
func WithStrictIdentity() Option {
	return func(cfg *casterConfig) {
		cfg.strictIdentity = true
	}
}

// WithCastMode selects between aliasing capable and copy-only casting.
func WithCastMode(mode CastMode) Option {
	return func(cfg *casterConfig) {
		cfg.mode = mode
	}
}
