package protocast

import (
	"bytes"
	"errors"
	"testing"

	"github.com/goliatone/go-protocast/pkg/foreigntest"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

func TestMaterializeRoundTripIsByteIdentical(t *testing.T) {
	env := newTestEnv(t)
	caster := env.casterA()
	source := env.schemas.newA("round", 42)
	want := marshalDeterministic(t, source)

	msg, err := caster.Materialize(env.rt.Foreign("pkg.A", want))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if got := marshalDeterministic(t, msg); !bytes.Equal(got, want) {
		t.Fatalf("expected byte identical round trip, got %x want %x", got, want)
	}
}

func TestMaterializeBypassesAlias(t *testing.T) {
	env := newTestEnv(t)
	caster := env.casterA()
	source := env.schemas.newA("alias", 1)

	msg, err := caster.Materialize(env.rt.Wrap(source))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if msg == source {
		t.Fatalf("expected a fresh message")
	}
	if !proto.Equal(msg, source) {
		t.Fatalf("expected equal content")
	}
}

func TestMaterializeTypeMismatch(t *testing.T) {
	env := newTestEnv(t)
	caster := env.casterA()
	data := marshalDeterministic(t, env.schemas.newB("label"))

	loaded, ok := caster.Load(env.rt.Foreign("pkg.B", data))
	if ok {
		t.Fatalf("expected pkg.B to be rejected")
	}
	if loaded.State() != StateEmpty {
		t.Fatalf("expected empty state, got %s", loaded.State())
	}
	var convErr *ConversionError
	if !errors.As(loaded.Err(), &convErr) {
		t.Fatalf("expected ConversionError, got %T", loaded.Err())
	}
	if convErr.Schema != "pkg.A" || convErr.TypeName != "pkg.B" || convErr.Op != "load" {
		t.Fatalf("unexpected error metadata: %+v", convErr)
	}
	if env.alloc.Count() != 0 {
		t.Fatalf("expected no allocation on mismatch, got %d", env.alloc.Count())
	}
}

func TestMaterializeMissingTypeName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.casterA().Materialize(env.rt.Foreign("", nil))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestMaterializeNull(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.casterA().Materialize(foreigntest.Null)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch for null, got %v", err)
	}
}

func TestMaterializeCorruptPayload(t *testing.T) {
	env := newTestEnv(t)
	caster := env.casterA()
	obj := env.rt.Foreign("pkg.A", nil)
	obj.Corrupt = true

	loaded, ok := caster.Load(obj)
	if ok {
		t.Fatalf("expected corrupt payload to fail")
	}
	if !errors.Is(loaded.Err(), ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", loaded.Err())
	}
	if loaded.Value() != nil {
		t.Fatalf("expected nothing kept after a failed copy")
	}
}

func TestAbstractMaterializeAllocatesByName(t *testing.T) {
	env := newTestEnv(t)
	caster := env.anyCaster()
	source := env.schemas.newB("by-name")
	handle, err := env.rt.ForeignFrom(source)
	if err != nil {
		t.Fatalf("foreign: %v", err)
	}

	loaded, ok := caster.Load(handle)
	if !ok {
		t.Fatalf("load: %v", loaded.Err())
	}
	value, isDynamic := loaded.Value().(*dynamicpb.Message)
	if !isDynamic {
		t.Fatalf("expected dynamic message, got %T", loaded.Value())
	}
	if value.Descriptor() != env.schemas.B.Descriptor() {
		t.Fatalf("expected message allocated from the registered pkg.B")
	}
	if !proto.Equal(value, source) {
		t.Fatalf("expected equal content")
	}
	if env.alloc.Count() != 1 {
		t.Fatalf("expected one allocation, got %d", env.alloc.Count())
	}
}

func TestAbstractMaterializeUnknownSchema(t *testing.T) {
	env := newTestEnv(t)
	caster := env.anyCaster()

	loaded, ok := caster.Load(env.rt.Foreign("pkg.Unregistered", nil))
	if ok {
		t.Fatalf("expected unknown schema to fail")
	}
	if !errors.Is(loaded.Err(), ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", loaded.Err())
	}
}

func TestRegistryCachesLookups(t *testing.T) {
	env := newTestEnv(t)
	cache := NewSchemaCache()
	registry := NewRegistry(env.schemas.Types, RegistryWithCache(cache), RegistryWithAllocator(env.alloc))

	if _, ok := registry.AllocateByName(" pkg.A "); !ok {
		t.Fatalf("expected pkg.A to resolve")
	}
	mt, ok := cache.Get("pkg.A")
	if !ok || mt != env.schemas.A {
		t.Fatalf("expected cached pkg.A type, got %v", mt)
	}
	if _, ok := registry.AllocateByName(""); ok {
		t.Fatalf("expected empty name to miss")
	}
	if env.alloc.Count() != 1 {
		t.Fatalf("expected one allocation, got %d", env.alloc.Count())
	}
}
