package guard

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func sampleFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("a.proto"),
		Package:    proto.String("pkg"),
		Dependency: []string{"b.proto", "c.proto"},
	}
}

func TestEvaluatorsAllow(t *testing.T) {
	evaluators := map[string]Evaluator{
		"cel":  NewCELEvaluator(),
		"expr": NewExprEvaluator(),
	}
	cases := map[string]map[string]bool{
		"cel": {
			`msg.name == "a.proto"`:       true,
			`msg.name == "other.proto"`:   false,
			`size(msg.dependency) == 2`:   true,
			`msg.name.endsWith(".proto")`: true,
		},
		"expr": {
			`msg.name == "a.proto"`:       true,
			`name == "other.proto"`:       false,
			`len(dependency) == 2`:        true,
			`"b.proto" in msg.dependency`: true,
			`msg["package"] == "pkg"`:     true,
		},
	}

	for engine, evaluator := range evaluators {
		for expression, want := range cases[engine] {
			t.Run(engine+"/"+expression, func(t *testing.T) {
				got, err := evaluator.Allow(sampleFile(), expression)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != want {
					t.Fatalf("expected %v, got %v", want, got)
				}
			})
		}
	}
}

func TestEvaluatorsRejectNonBoolean(t *testing.T) {
	for engine, evaluator := range map[string]Evaluator{
		"cel":  NewCELEvaluator(),
		"expr": NewExprEvaluator(),
	} {
		_, err := evaluator.Allow(sampleFile(), `msg.name`)
		if !errors.Is(err, ErrNotBoolean) {
			t.Fatalf("%s: expected ErrNotBoolean, got %v", engine, err)
		}
		var evalErr *EvaluationError
		if !errors.As(err, &evalErr) {
			t.Fatalf("%s: expected EvaluationError, got %T", engine, err)
		}
		if evalErr.Engine != engine || evalErr.Schema != "google.protobuf.FileDescriptorProto" {
			t.Fatalf("%s: unexpected metadata %+v", engine, evalErr)
		}
	}
}

func TestEvaluatorsRejectEmptyInput(t *testing.T) {
	for engine, evaluator := range map[string]Evaluator{
		"cel":  NewCELEvaluator(),
		"expr": NewExprEvaluator(),
	} {
		if _, err := evaluator.Allow(sampleFile(), ""); !errors.Is(err, ErrEmptyExpression) {
			t.Fatalf("%s: expected ErrEmptyExpression, got %v", engine, err)
		}
		if _, err := evaluator.Allow(nil, "true"); !errors.Is(err, ErrNilMessage) {
			t.Fatalf("%s: expected ErrNilMessage, got %v", engine, err)
		}
	}
}

func TestCELChecksFieldsAgainstSchema(t *testing.T) {
	_, err := NewCELEvaluator().Allow(sampleFile(), `msg.owner == "x"`)
	if err == nil {
		t.Fatalf("expected undeclared field to fail type checking")
	}
	if !strings.Contains(err.Error(), "owner") {
		t.Fatalf("expected error to mention the field, got %v", err)
	}
}

func TestCELCustomVariable(t *testing.T) {
	evaluator := NewCELEvaluator(CELWithVariable("file"))
	allowed, err := evaluator.Allow(sampleFile(), `file.name == "a.proto"`)
	if err != nil || !allowed {
		t.Fatalf("expected allow, got %v err=%v", allowed, err)
	}
}

func TestProgramCacheReusesPrograms(t *testing.T) {
	cache := &countingCache{ProgramCache: NewProgramCache()}
	evaluator := NewCELEvaluator(CELWithProgramCache(cache))

	for i := 0; i < 3; i++ {
		if _, err := evaluator.Allow(sampleFile(), `msg.name == "a.proto"`); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	if cache.sets != 1 {
		t.Fatalf("expected one compiled program, got %d", cache.sets)
	}
	if _, err := evaluator.Allow(&descriptorpb.DescriptorProto{Name: proto.String("a.proto")}, `msg.name == "a.proto"`); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if cache.sets != 2 {
		t.Fatalf("expected programs keyed per schema, got %d", cache.sets)
	}

	exprCache := &countingCache{ProgramCache: NewProgramCache()}
	exprEval := NewExprEvaluator(ExprWithProgramCache(exprCache))
	for i := 0; i < 3; i++ {
		if _, err := exprEval.Allow(sampleFile(), `name != ""`); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	if exprCache.sets != 1 {
		t.Fatalf("expected one compiled expr program, got %d", exprCache.sets)
	}
}

func newHelperRegistry(t *testing.T) *FunctionRegistry {
	t.Helper()
	registry := NewFunctionRegistry()
	err := registry.Register("hasPrefix", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, errors.New("hasPrefix expects two arguments")
		}
		value, _ := args[0].(string)
		prefix, _ := args[1].(string)
		return strings.HasPrefix(value, prefix), nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return registry
}

func TestExprFunctions(t *testing.T) {
	evaluator := NewExprEvaluator(ExprWithFunctionRegistry(newHelperRegistry(t)))
	for _, expression := range []string{`hasPrefix(name, "a.")`, `call("hasPrefix", name, "a.")`} {
		allowed, err := evaluator.Allow(sampleFile(), expression)
		if err != nil || !allowed {
			t.Fatalf("%s: expected allow, got %v err=%v", expression, allowed, err)
		}
	}
}

func TestCELFunctions(t *testing.T) {
	evaluator := NewCELEvaluator(CELWithFunctionRegistry(newHelperRegistry(t)))
	allowed, err := evaluator.Allow(sampleFile(), `call("hasPrefix", [msg.name, "a."]) == true`)
	if err != nil || !allowed {
		t.Fatalf("expected allow, got %v err=%v", allowed, err)
	}
	if _, err := evaluator.Allow(sampleFile(), `call("missing", []) == true`); err == nil {
		t.Fatalf("expected unknown function to fail")
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := newHelperRegistry(t)
	if err := registry.Register("hasPrefix", func(...any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register("nil", nil); err == nil {
		t.Fatalf("expected nil function to fail")
	}
	clone := registry.Clone()
	if err := clone.Register("extra", func(...any) (any, error) { return true, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(registry.Names()) != 1 || len(clone.Names()) != 2 {
		t.Fatalf("expected clone to be independent, got %v and %v", registry.Names(), clone.Names())
	}
	if _, err := registry.Call("extra"); err == nil {
		t.Fatalf("expected unknown function to fail")
	}
}

func TestEvaluatorLogging(t *testing.T) {
	var events []EvaluatorLogEvent
	logger := EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		events = append(events, event)
	})
	evaluator := NewExprEvaluator(ExprWithLogger(logger))

	evaluator.Allow(sampleFile(), `name == "a.proto"`)
	evaluator.Allow(sampleFile(), `name`)

	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	if events[0].Engine != "expr" || !events[0].Allowed || events[0].Err != nil {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Err == nil || events[1].Schema != "google.protobuf.FileDescriptorProto" {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestWrapEvaluationErrorCreatesMetadata(t *testing.T) {
	base := errors.New("boom")
	err := wrapEvaluationError("expr", "flag && missing", "pkg.A", base)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("expected engine expr, got %q", evalErr.Engine)
	}
	if evalErr.Expr != "flag && missing" {
		t.Fatalf("expected expression metadata, got %q", evalErr.Expr)
	}
	if evalErr.Schema != "pkg.A" {
		t.Fatalf("expected schema metadata, got %q", evalErr.Schema)
	}
	if !errors.Is(evalErr.Err, base) {
		t.Fatalf("wrapped error should unwrap to base error")
	}
}

func TestWrapEvaluationErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &EvaluationError{
		Engine: "expr",
		Err:    base,
	}

	err := wrapEvaluationError("cel", "rule", "pkg.B", existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != "expr" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Expr != "rule" {
		t.Fatalf("expression should be filled, got %q", existing.Expr)
	}
	if existing.Schema != "pkg.B" {
		t.Fatalf("schema should be filled, got %q", existing.Schema)
	}
}

type countingCache struct {
	ProgramCache
	sets int
}

func (c *countingCache) Set(key string, value any) {
	c.sets++
	c.ProgramCache.Set(key, value)
}
