// Package guard evaluates boolean predicates over protobuf messages. Guards
// decide whether a message is acceptable before it crosses into native code.
package guard

import (
	"errors"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
)

var (
	// ErrEmptyExpression indicates a guard without an expression.
	ErrEmptyExpression = errors.New("guard: expression must not be empty")
	// ErrNotBoolean indicates a guard that evaluated to a non boolean value.
	ErrNotBoolean = errors.New("guard: expression did not evaluate to a boolean")
	// ErrNilMessage indicates a guard evaluated against a nil message.
	ErrNilMessage = errors.New("guard: message is nil")
)

// Evaluator decides whether msg satisfies expression.
type Evaluator interface {
	Allow(msg proto.Message, expression string) (bool, error)
}

// ProgramCache stores compiled programs keyed by expression and schema.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// NewProgramCache returns a ProgramCache safe for concurrent use.
func NewProgramCache() ProgramCache {
	return &syncProgramCache{}
}

type syncProgramCache struct {
	entries sync.Map
}

func (c *syncProgramCache) Get(key string) (any, bool) {
	return c.entries.Load(key)
}

func (c *syncProgramCache) Set(key string, value any) {
	c.entries.Store(key, value)
}

// EvaluatorLogEvent describes a guard evaluation for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Schema   string
	Allowed  bool
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

func schemaName(msg proto.Message) string {
	if msg == nil {
		return ""
	}
	return string(msg.ProtoReflect().Descriptor().FullName())
}

func logEvaluation(logger EvaluatorLogger, engine, expr string, msg proto.Message, allowed bool, start time.Time, err error) {
	if logger == nil {
		return
	}
	logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Schema:   schemaName(msg),
		Allowed:  allowed,
		Duration: time.Since(start),
		Err:      err,
	})
}

func asBool(value any) (bool, error) {
	allowed, ok := value.(bool)
	if !ok {
		return false, ErrNotBoolean
	}
	return allowed, nil
}
