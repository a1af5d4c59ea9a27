// Package gojart implements protocast.Runtime on top of a goja JavaScript VM.
//
// Aliases are goja wrappers around the Go message pointer, so exporting them
// yields the same message. Copies are plain JavaScript objects holding the
// protojson form of the message packed into google.protobuf.Any, which keeps
// the schema name under the "@type" key. A Runtime shares the single-goroutine
// restriction of its goja VM and is not safe for concurrent use.
package gojart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/goliatone/go-protocast/internal/hydrate"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/anypb"
)

// TypeKey is the property carrying the type URL on copied objects.
const TypeKey = "@type"

// ErrNotObject indicates a handle that is neither an alias nor a copy.
var ErrNotObject = errors.New("gojart: value is not a message object")

// Resolver resolves message types by name and type URL.
type Resolver = hydrate.Resolver

// Context identifies the object handed to a PreHook.
type Context = hydrate.Context

// PreHook rewrites an exported object before it is decoded.
type PreHook = hydrate.PreHook

// Option configures a Runtime.
type Option func(*config)

type config struct {
	vm       *goja.Runtime
	resolver Resolver
	preHooks []PreHook
	discard  bool
}

// WithVM binds the runtime to an existing goja VM.
func WithVM(vm *goja.Runtime) Option {
	return func(cfg *config) {
		cfg.vm = vm
	}
}

// WithResolver sets the resolver used to encode and decode copies.
// Defaults to protoregistry.GlobalTypes.
func WithResolver(resolver Resolver) Option {
	return func(cfg *config) {
		cfg.resolver = resolver
	}
}

// WithPreHook normalizes copied objects before they are decoded.
func WithPreHook(hook PreHook) Option {
	return func(cfg *config) {
		if hook != nil {
			cfg.preHooks = append(cfg.preHooks, hook)
		}
	}
}

// WithDiscardUnknown ignores properties the schema does not declare when
// decoding copies.
func WithDiscardUnknown() Option {
	return func(cfg *config) {
		cfg.discard = true
	}
}

// Runtime is a goja backed foreign runtime.
type Runtime struct {
	vm       *goja.Runtime
	resolver Resolver
	parse    goja.Callable
	edges    *goja.Object
	edgeSet  goja.Callable
	edgeGet  goja.Callable
	decoder  *hydrate.Decoder[*anypb.Any]
}

// New constructs a Runtime. A fresh VM is created unless WithVM is given.
func New(opts ...Option) (*Runtime, error) {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.vm == nil {
		cfg.vm = goja.New()
	}
	if cfg.resolver == nil {
		cfg.resolver = protoregistry.GlobalTypes
	}

	vm := cfg.vm
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("gojart: JSON.parse unavailable")
	}
	weakMap, ok := goja.AssertConstructor(vm.Get("WeakMap"))
	if !ok {
		return nil, fmt.Errorf("gojart: WeakMap unavailable")
	}
	edges, err := weakMap(nil)
	if err != nil {
		return nil, fmt.Errorf("gojart: create keep-alive map: %w", err)
	}
	edgeSet, ok := goja.AssertFunction(edges.Get("set"))
	if !ok {
		return nil, fmt.Errorf("gojart: WeakMap.set unavailable")
	}
	edgeGet, ok := goja.AssertFunction(edges.Get("get"))
	if !ok {
		return nil, fmt.Errorf("gojart: WeakMap.get unavailable")
	}

	decoderOpts := []hydrate.DecoderOption[*anypb.Any]{
		hydrate.WithResolver[*anypb.Any](cfg.resolver),
	}
	for _, hook := range cfg.preHooks {
		decoderOpts = append(decoderOpts, hydrate.WithPreHook[*anypb.Any](hook))
	}
	if cfg.discard {
		decoderOpts = append(decoderOpts, hydrate.WithDiscardUnknown[*anypb.Any]())
	}

	return &Runtime{
		vm:       vm,
		resolver: cfg.resolver,
		parse:    parse,
		edges:    edges,
		edgeSet:  edgeSet,
		edgeGet:  edgeGet,
		decoder:  hydrate.NewDecoder(decoderOpts...),
	}, nil
}

// VM returns the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

func asValue(h any) (goja.Value, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h.(goja.Value)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// IsNull reports whether h is nil, null or undefined.
func (r *Runtime) IsNull(h any) bool {
	v, ok := asValue(h)
	if !ok {
		return h == nil
	}
	return goja.IsNull(v) || goja.IsUndefined(v)
}

// AliasedNative returns the Go message wrapped by h, or nil for copies.
func (r *Runtime) AliasedNative(h any) proto.Message {
	v, ok := asValue(h)
	if !ok || r.IsNull(v) {
		return nil
	}
	msg, ok := v.Export().(proto.Message)
	if !ok {
		return nil
	}
	return msg
}

// TypeName reads the schema name from an alias or the "@type" property of a
// copy.
func (r *Runtime) TypeName(h any) (string, bool) {
	if msg := r.AliasedNative(h); msg != nil {
		return string(msg.ProtoReflect().Descriptor().FullName()), true
	}
	obj, ok := r.object(h)
	if !ok {
		return "", false
	}
	raw := obj.Get(TypeKey)
	if raw == nil || goja.IsNull(raw) || goja.IsUndefined(raw) {
		return "", false
	}
	name := typeNameFromURL(raw.String())
	return name, name != ""
}

// CopyToNative populates dst from h.
func (r *Runtime) CopyToNative(h any, dst proto.Message) error {
	if msg := r.AliasedNative(h); msg != nil {
		data, err := proto.Marshal(msg)
		if err != nil {
			return fmt.Errorf("gojart: marshal alias: %w", err)
		}
		if err := proto.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("gojart: unmarshal alias: %w", err)
		}
		return nil
	}

	obj, ok := r.object(h)
	if !ok {
		return ErrNotObject
	}
	payload, ok := obj.Export().(map[string]any)
	if !ok {
		return ErrNotObject
	}
	typeName, _ := r.TypeName(h)
	envelope := &anypb.Any{}
	ctx := hydrate.Context{TypeName: typeName, Source: "goja"}
	if err := r.decoder.Decode(ctx, payload, envelope); err != nil {
		return err
	}
	if err := envelope.UnmarshalTo(dst); err != nil {
		return fmt.Errorf("gojart: unpack %s: %w", typeName, err)
	}
	return nil
}

// None returns JavaScript null.
func (r *Runtime) None() any {
	return goja.Null()
}

// Alias wraps msg so that JavaScript sees the Go message itself.
func (r *Runtime) Alias(msg proto.Message) (any, error) {
	return r.vm.ToValue(msg), nil
}

// Copy builds a plain JavaScript object holding the content of msg.
func (r *Runtime) Copy(msg proto.Message) (any, error) {
	envelope, err := anypb.New(msg)
	if err != nil {
		return nil, fmt.Errorf("gojart: pack %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	data, err := protojson.MarshalOptions{Resolver: r.resolver}.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("gojart: encode %s: %w", envelope.MessageName(), err)
	}
	value, err := r.parse(goja.Undefined(), r.vm.ToValue(string(data)))
	if err != nil {
		return nil, fmt.Errorf("gojart: parse %s: %w", envelope.MessageName(), err)
	}
	return value, nil
}

// KeepAlive records parent as reachable from result.
func (r *Runtime) KeepAlive(result, parent any) error {
	key, ok := r.object(result)
	if !ok {
		return ErrNotObject
	}
	value, ok := asValue(parent)
	if !ok {
		value = r.vm.ToValue(parent)
	}
	if _, err := r.edgeSet(r.edges, key, value); err != nil {
		return fmt.Errorf("gojart: keep alive: %w", err)
	}
	return nil
}

// Parent returns the value kept alive by result, if any.
func (r *Runtime) Parent(result any) (goja.Value, bool) {
	key, ok := r.object(result)
	if !ok {
		return nil, false
	}
	value, err := r.edgeGet(r.edges, key)
	if err != nil || value == nil || goja.IsUndefined(value) {
		return nil, false
	}
	return value, true
}

func (r *Runtime) object(h any) (*goja.Object, bool) {
	v, ok := asValue(h)
	if !ok || r.IsNull(v) {
		return nil, false
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	return obj, true
}

func typeNameFromURL(url string) string {
	url = strings.TrimSpace(url)
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}
