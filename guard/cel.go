package guard

import (
	"fmt"
	"reflect"
	"time"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/proto"
)

const celEngine = "cel"

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithLogger attaches an evaluator logger.
func CELWithLogger(logger EvaluatorLogger) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if logger == nil {
			e.logger = noopEvaluatorLogger{}
			return
		}
		e.logger = logger
	}
}

// CELWithFunctionRegistry exposes registry functions through
// call(name, [args...]).
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// CELWithVariable declares the name the message is bound to. Defaults to msg.
func CELWithVariable(name string) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if name != "" {
			e.variable = name
		}
	}
}

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

type celEvaluator struct {
	cache    ProgramCache
	logger   EvaluatorLogger
	registry *FunctionRegistry
	variable string
}

// NewCELEvaluator constructs an Evaluator backed by cel-go. The message is
// bound as a typed object, so field access is checked against its schema.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{
		logger:   noopEvaluatorLogger{},
		variable: "msg",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Allow(msg proto.Message, expression string) (allowed bool, err error) {
	start := time.Now()
	defer func() {
		logEvaluation(e.logger, celEngine, expression, msg, allowed, start, err)
	}()

	if expression == "" {
		return false, wrapEvaluatorError(celEngine, ErrEmptyExpression)
	}
	if msg == nil {
		return false, wrapEvaluationError(celEngine, expression, "", ErrNilMessage)
	}
	program, err := e.loadOrCompile(msg, expression)
	if err != nil {
		return false, wrapEvaluationError(celEngine, expression, schemaName(msg), err)
	}
	out, _, err := program.program.Eval(map[string]any{e.variable: msg})
	if err != nil {
		return false, wrapEvaluationError(celEngine, expression, schemaName(msg), err)
	}
	allowed, err = asBool(out.Value())
	if err != nil {
		return false, wrapEvaluationError(celEngine, expression, schemaName(msg), err)
	}
	return allowed, nil
}

func (e *celEvaluator) loadOrCompile(msg proto.Message, expression string) (*celProgram, error) {
	key := fmt.Sprintf("%s\x00%s", schemaName(msg), expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	opts := []celgo.EnvOption{
		celgo.Types(msg),
		celgo.Variable(e.variable, celgo.ObjectType(schemaName(msg))),
	}
	if e.registry != nil {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_string_list",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.BinaryBinding(e.callBinding),
		)))
	}
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, err
	}

	bundle := &celProgram{
		env:     env,
		program: prg,
	}
	if e.cache != nil {
		e.cache.Set(key, bundle)
	}
	return bundle, nil
}

func (e *celEvaluator) callBinding(nameVal, argsVal ref.Val) ref.Val {
	name, ok := nameVal.Value().(string)
	if !ok {
		return types.NewErr("guard: call name must be string")
	}
	native, err := argsVal.ConvertToNative(reflect.TypeOf([]any{}))
	if err != nil {
		return types.NewErr("guard: call arguments: %v", err)
	}
	args, _ := native.([]any)
	result, err := e.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%v", err)
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}
