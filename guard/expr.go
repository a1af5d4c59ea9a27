package guard

import (
	"encoding/json"
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const exprEngine = "expr"

// ExprEvaluatorOption configures an expr evaluator instance.
type ExprEvaluatorOption func(*exprEvaluator)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.cache = cache
	}
}

// ExprWithLogger attaches an evaluator logger.
func ExprWithLogger(logger EvaluatorLogger) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if logger == nil {
			e.logger = noopEvaluatorLogger{}
			return
		}
		e.logger = logger
	}
}

// ExprWithFunctionRegistry exposes registry functions by name and through
// call(name, args...).
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprEvaluator runs guards using github.com/expr-lang/expr over the JSON
// snapshot of a message. Field names follow the .proto declarations and the
// snapshot is bound both as msg and as top level variables.
type exprEvaluator struct {
	cache    ProgramCache
	logger   EvaluatorLogger
	registry *FunctionRegistry
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	e := &exprEvaluator{
		logger: noopEvaluatorLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *exprEvaluator) Allow(msg proto.Message, expression string) (allowed bool, err error) {
	start := time.Now()
	defer func() {
		logEvaluation(e.logger, exprEngine, expression, msg, allowed, start, err)
	}()

	if expression == "" {
		return false, wrapEvaluatorError(exprEngine, ErrEmptyExpression)
	}
	if msg == nil {
		return false, wrapEvaluationError(exprEngine, expression, "", ErrNilMessage)
	}
	env, err := snapshotEnv(msg)
	if err != nil {
		return false, wrapEvaluationError(exprEngine, expression, schemaName(msg), err)
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return false, wrapEvaluationError(exprEngine, expression, schemaName(msg), err)
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return false, wrapEvaluationError(exprEngine, expression, schemaName(msg), err)
	}
	allowed, err = asBool(result)
	if err != nil {
		return false, wrapEvaluationError(exprEngine, expression, schemaName(msg), err)
	}
	return allowed, nil
}

func (e *exprEvaluator) loadOrCompile(expression string) (*exprvm.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	if e.registry != nil {
		options = append(options, exprlang.Function("call", e.callFunction))
		for _, name := range e.registry.Names() {
			fn := name
			options = append(options, exprlang.Function(fn, func(arguments ...any) (any, error) {
				return e.registry.Call(fn, arguments...)
			}))
		}
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

func snapshotEnv(msg proto.Message) (map[string]any, error) {
	data, err := protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: true}.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var snapshot any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	env := map[string]any{"msg": snapshot}
	if fields, ok := snapshot.(map[string]any); ok {
		for key, value := range fields {
			if _, reserved := env[key]; !reserved {
				env[key] = value
			}
		}
	}
	return env, nil
}

func (e *exprEvaluator) callFunction(arguments ...any) (any, error) {
	if len(arguments) == 0 {
		return nil, fmt.Errorf("guard: call requires function name")
	}
	name, ok := arguments[0].(string)
	if !ok {
		return nil, fmt.Errorf("guard: call name must be string")
	}
	return e.registry.Call(name, arguments[1:]...)
}
