// Package binding exposes typed Go functions over protobuf messages to a goja
// VM. A name may carry several overloads; calls are dispatched to the first
// overload whose argument converts and whose guard allows it.
package binding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
	protocast "github.com/goliatone/go-protocast"
	"github.com/goliatone/go-protocast/guard"
	"github.com/goliatone/go-protocast/runtime/gojart"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var (
	// ErrNoOverload indicates no overload accepted the call arguments.
	ErrNoOverload = errors.New("binding: no matching overload")
	// ErrGuardRejected indicates a candidate was filtered by its guard.
	ErrGuardRejected = errors.New("binding: guard rejected argument")
)

// ArgMode selects how an argument is handed to the Go function.
type ArgMode uint8

const (
	// ArgBorrow passes the loaded value, which may alias a foreign-owned
	// message. The function must treat it as read-only.
	ArgBorrow ArgMode = iota
	// ArgOwned passes an exclusively owned copy.
	ArgOwned
)

func (m ArgMode) String() string {
	switch m {
	case ArgBorrow:
		return "borrow"
	case ArgOwned:
		return "owned"
	default:
		return "unknown"
	}
}

// DefOption configures a single overload.
type DefOption func(*defConfig)

type defConfig struct {
	mode       ArgMode
	policy     protocast.Policy
	constant   bool
	nullable   bool
	argType    protoreflect.MessageType
	evaluator  guard.Evaluator
	expression string
	caster     []protocast.Option
}

// WithArgMode selects borrow or owned arguments. Defaults to ArgBorrow.
func WithArgMode(mode ArgMode) DefOption {
	return func(cfg *defConfig) {
		cfg.mode = mode
	}
}

// WithReturnPolicy sets the policy used to expose the result. Defaults to
// protocast.PolicyAutomatic. PolicyReferenceInternal ties the result to the
// argument.
func WithReturnPolicy(policy protocast.Policy) DefOption {
	return func(cfg *defConfig) {
		cfg.policy = policy
	}
}

// WithConstResult marks the result as read-only; reference policies then fail.
func WithConstResult() DefOption {
	return func(cfg *defConfig) {
		cfg.constant = true
	}
}

// WithNullable lets null and undefined arguments reach the function as a nil
// message.
func WithNullable() DefOption {
	return func(cfg *defConfig) {
		cfg.nullable = true
	}
}

// WithArgType targets a dynamic message type for the argument.
func WithArgType(mt protoreflect.MessageType) DefOption {
	return func(cfg *defConfig) {
		cfg.argType = mt
	}
}

// WithGuard only selects the overload when evaluator allows the argument.
func WithGuard(evaluator guard.Evaluator, expression string) DefOption {
	return func(cfg *defConfig) {
		cfg.evaluator = evaluator
		cfg.expression = expression
	}
}

// WithCasterOptions forwards options to the argument and result casters.
func WithCasterOptions(opts ...protocast.Option) DefOption {
	return func(cfg *defConfig) {
		cfg.caster = append(cfg.caster, opts...)
	}
}

// invoker runs one overload. matched is false when the argument does not
// select this overload.
type invoker func(arg protocast.Handle) (out protocast.Outcome, matched bool, err error)

type overload struct {
	signature string
	bind      func(rt protocast.Runtime) invoker
}

// Module stores overloaded functions keyed by name.
type Module struct {
	mu        sync.RWMutex
	functions map[string][]overload
}

// NewModule constructs an empty module.
func NewModule() *Module {
	return &Module{
		functions: make(map[string][]overload),
	}
}

// Def registers fn as an overload of name. Overloads are tried in
// registration order.
func Def[A, R proto.Message](m *Module, name string, fn func(A) (R, error), opts ...DefOption) error {
	if m == nil {
		return fmt.Errorf("binding: module is nil")
	}
	if fn == nil {
		return fmt.Errorf("binding: function %q is nil", name)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("binding: function name must not be empty")
	}
	cfg := defConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.evaluator != nil && cfg.expression == "" {
		return fmt.Errorf("binding: guard for %q has no expression", name)
	}

	ov := overload{
		signature: signature[A, R](cfg),
		bind: func(rt protocast.Runtime) invoker {
			return bindOverload(rt, cfg, fn)
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.functions == nil {
		m.functions = make(map[string][]overload)
	}
	m.functions[name] = append(m.functions[name], ov)
	return nil
}

func bindOverload[A, R proto.Message](rt protocast.Runtime, cfg defConfig, fn func(A) (R, error)) invoker {
	casterOpts := append([]protocast.Option{}, cfg.caster...)
	casterOpts = append(casterOpts, protocast.WithRuntime(rt))

	var args *protocast.Caster[A]
	if cfg.argType != nil {
		args = protocast.NewCasterFor[A](cfg.argType, casterOpts...)
	} else {
		args = protocast.NewCaster[A](casterOpts...)
	}
	results := protocast.NewCaster[R](casterOpts...)

	return func(arg protocast.Handle) (protocast.Outcome, bool, error) {
		loaded, ok := args.Load(arg)
		if !ok {
			return protocast.Outcome{}, false, nil
		}
		if loaded.Empty() && !cfg.nullable {
			return protocast.Outcome{}, false, nil
		}

		value := loaded.Value()
		if cfg.mode == ArgOwned && !loaded.Empty() {
			owned, err := loaded.Release()
			if err != nil {
				return protocast.Outcome{}, true, err
			}
			value = owned
		}

		if cfg.evaluator != nil && !loaded.Empty() {
			allowed, err := cfg.evaluator.Allow(value, cfg.expression)
			if err != nil {
				return protocast.Outcome{}, true, err
			}
			if !allowed {
				return protocast.Outcome{}, false, ErrGuardRejected
			}
		}

		result, err := fn(value)
		if err != nil {
			return protocast.Outcome{}, true, err
		}
		if cfg.constant {
			out, err := results.CastConst(result, cfg.policy, arg)
			return out, true, err
		}
		out, err := results.Cast(result, cfg.policy, arg)
		return out, true, err
	}
}

// Names returns registered function names sorted alphabetically.
func (m *Module) Names() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.functions))
	for name := range m.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Overloads returns the signatures registered under name.
func (m *Module) Overloads(name string) []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	signatures := make([]string, 0, len(m.functions[name]))
	for _, ov := range m.functions[name] {
		signatures = append(signatures, ov.signature)
	}
	return signatures
}

// Clone returns a shallow copy of the module.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone := &Module{
		functions: make(map[string][]overload, len(m.functions)),
	}
	for name, overloads := range m.functions {
		clone.functions[name] = append([]overload(nil), overloads...)
	}
	return clone
}

// Install defines every function as a global of the runtime's VM.
func (m *Module) Install(rt *gojart.Runtime) error {
	if rt == nil {
		return fmt.Errorf("binding: runtime is nil")
	}
	vm := rt.VM()
	for _, name := range m.Names() {
		if err := vm.Set(name, m.function(rt, name)); err != nil {
			return fmt.Errorf("binding: install %q: %w", name, err)
		}
	}
	return nil
}

// Object returns a JavaScript object carrying every function as a property.
func (m *Module) Object(rt *gojart.Runtime) (*goja.Object, error) {
	if rt == nil {
		return nil, fmt.Errorf("binding: runtime is nil")
	}
	obj := rt.VM().NewObject()
	for _, name := range m.Names() {
		if err := obj.Set(name, m.function(rt, name)); err != nil {
			return nil, fmt.Errorf("binding: define %q: %w", name, err)
		}
	}
	return obj, nil
}

func (m *Module) function(rt *gojart.Runtime, name string) func(goja.FunctionCall) goja.Value {
	m.mu.RLock()
	overloads := append([]overload(nil), m.functions[name]...)
	m.mu.RUnlock()

	invokers := make([]invoker, 0, len(overloads))
	signatures := make([]string, 0, len(overloads))
	for _, ov := range overloads {
		invokers = append(invokers, ov.bind(rt))
		signatures = append(signatures, ov.signature)
	}

	vm := rt.VM()
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		out, err := dispatch(invokers, arg)
		if errors.Is(err, ErrNoOverload) {
			message := noOverloadMessage(rt, name, arg, signatures)
			if errors.Is(err, ErrGuardRejected) {
				message += " (rejected by guard)"
			}
			panic(vm.NewTypeError("%s", message))
		}
		if err != nil {
			panic(vm.NewGoError(err))
		}
		value, ok := out.Handle.(goja.Value)
		if !ok || value == nil {
			return goja.Null()
		}
		return value
	}
}

func dispatch(invokers []invoker, arg protocast.Handle) (protocast.Outcome, error) {
	guarded := false
	for _, invoke := range invokers {
		out, matched, err := invoke(arg)
		if !matched {
			guarded = guarded || errors.Is(err, ErrGuardRejected)
			continue
		}
		return out, err
	}
	if guarded {
		return protocast.Outcome{}, fmt.Errorf("%w: %w", ErrNoOverload, ErrGuardRejected)
	}
	return protocast.Outcome{}, ErrNoOverload
}

func noOverloadMessage(rt *gojart.Runtime, name string, arg goja.Value, signatures []string) string {
	got := "null"
	if !rt.IsNull(arg) {
		if typeName, ok := rt.TypeName(arg); ok {
			got = typeName
		} else {
			got = arg.ExportType().String()
		}
	}
	return fmt.Sprintf("%s(): incompatible function arguments (%s); candidates: %s",
		name, got, strings.Join(signatures, ", "))
}

func signature[A, R proto.Message](cfg defConfig) string {
	arg := typeLabel[A]()
	if cfg.argType != nil {
		arg = string(cfg.argType.Descriptor().FullName())
	}
	if cfg.evaluator != nil {
		arg = fmt.Sprintf("%s if %s", arg, cfg.expression)
	}
	return fmt.Sprintf("(%s) -> %s", arg, typeLabel[R]())
}

func typeLabel[M proto.Message]() string {
	var zero M
	switch any(zero).(type) {
	case nil:
		return "message"
	case *dynamicpb.Message:
		return "dynamic"
	}
	return string(zero.ProtoReflect().Descriptor().FullName())
}
