package protocast

import (
	"testing"

	"github.com/goliatone/go-protocast/pkg/foreigntest"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// testSchemas holds a pkg.A / pkg.B schema pair built at runtime, plus a
// registry that knows about them.
type testSchemas struct {
	A     protoreflect.MessageType
	B     protoreflect.MessageType
	Types *protoregistry.Types
}

func testFileProto() *descriptorpb.FileDescriptorProto {
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	i64 := descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum()
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("pkg/test.proto"),
		Package: proto.String("pkg"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("A"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("name"), JsonName: proto.String("name"), Number: proto.Int32(1), Label: optional, Type: str},
					{Name: proto.String("count"), JsonName: proto.String("count"), Number: proto.Int32(2), Label: optional, Type: i64},
				},
			},
			{
				Name: proto.String("B"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("label"), JsonName: proto.String("label"), Number: proto.Int32(1), Label: optional, Type: str},
				},
			},
		},
	}
}

func newTestSchemas(t *testing.T) testSchemas {
	t.Helper()
	fd, err := protodesc.NewFile(testFileProto(), new(protoregistry.Files))
	if err != nil {
		t.Fatalf("build file descriptor: %v", err)
	}
	schemas := testSchemas{
		A:     dynamicpb.NewMessageType(fd.Messages().ByName("A")),
		B:     dynamicpb.NewMessageType(fd.Messages().ByName("B")),
		Types: new(protoregistry.Types),
	}
	for _, mt := range []protoreflect.MessageType{schemas.A, schemas.B} {
		if err := schemas.Types.RegisterMessage(mt); err != nil {
			t.Fatalf("register %s: %v", mt.Descriptor().FullName(), err)
		}
	}
	return schemas
}

func (s testSchemas) newA(name string, count int64) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(s.A.Descriptor())
	fields := s.A.Descriptor().Fields()
	msg.Set(fields.ByName("name"), protoreflect.ValueOfString(name))
	msg.Set(fields.ByName("count"), protoreflect.ValueOfInt64(count))
	return msg
}

func (s testSchemas) newB(label string) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(s.B.Descriptor())
	msg.Set(s.B.Descriptor().Fields().ByName("label"), protoreflect.ValueOfString(label))
	return msg
}

func nameOf(msg proto.Message) string {
	m := msg.ProtoReflect()
	return m.Get(m.Descriptor().Fields().ByName("name")).String()
}

func setName(msg proto.Message, name string) {
	m := msg.ProtoReflect()
	m.Set(m.Descriptor().Fields().ByName("name"), protoreflect.ValueOfString(name))
}

type testEnv struct {
	schemas testSchemas
	rt      *foreigntest.Runtime
	alloc   *foreigntest.CountingAllocator
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return testEnv{
		schemas: newTestSchemas(t),
		rt:      foreigntest.New(),
		alloc:   &foreigntest.CountingAllocator{},
	}
}

func (e testEnv) options(extra ...Option) []Option {
	opts := []Option{
		WithRuntime(e.rt),
		WithAllocator(e.alloc),
		WithResolver(e.schemas.Types),
	}
	return append(opts, extra...)
}

func (e testEnv) casterA(extra ...Option) *Caster[*dynamicpb.Message] {
	return NewCasterFor[*dynamicpb.Message](e.schemas.A, e.options(extra...)...)
}

func (e testEnv) anyCaster(extra ...Option) *Caster[proto.Message] {
	return NewCaster[proto.Message](e.options(extra...)...)
}

func marshalDeterministic(t *testing.T, msg proto.Message) []byte {
	t.Helper()
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

var _ Runtime = (*foreigntest.Runtime)(nil)
var _ Allocator = (*foreigntest.CountingAllocator)(nil)
