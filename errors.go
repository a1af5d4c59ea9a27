package protocast

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch indicates the foreign value names a different schema.
	ErrTypeMismatch = errors.New("protocast: type mismatch")
	// ErrIdentityMismatch indicates an alias built from another schema instance.
	ErrIdentityMismatch = errors.New("protocast: schema identity mismatch")
	// ErrUnknownSchema indicates the schema name is not known to the native registry.
	ErrUnknownSchema = errors.New("protocast: unknown schema")
	// ErrSerialization indicates copying foreign content into a native message failed.
	ErrSerialization = errors.New("protocast: serialization failure")
	// ErrConstReference indicates a const source was requested as an alias.
	ErrConstReference = errors.New("protocast: const reference")
	// ErrUnknownPolicy indicates a Policy outside the supported set.
	ErrUnknownPolicy = errors.New("protocast: unknown policy")
	// ErrAlreadyReleased indicates ownership was already transferred out.
	ErrAlreadyReleased = errors.New("protocast: value already released")
	// ErrUnsafeConversion indicates mutable access to a borrowed alias without
	// the protocast_unsafe build tag.
	ErrUnsafeConversion = errors.New("protocast: unsafe conversion disabled")
	// ErrNoRuntime indicates the caster was built without a Runtime.
	ErrNoRuntime = errors.New("protocast: runtime not configured")
)

// ConversionError captures foreign to native conversion metadata alongside the
// originating error.
type ConversionError struct {
	Op       string
	Schema   string
	TypeName string
	Err      error
}

func (e *ConversionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("protocast: %s schema=%s %s: %v", e.Op, describeSchema(e.Schema), describeTypeName(e.TypeName), e.Err)
}

func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CastError reports a native to foreign conversion that was requested but is
// unsafe or structurally invalid.
type CastError struct {
	Policy Policy
	Schema string
	Err    error
}

func (e *CastError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if errors.Is(e.Err, ErrConstReference) {
		return fmt.Sprintf("protocast: cannot return a const reference to %s with policy %s; use policy %s instead",
			describeSchema(e.Schema), e.Policy, PolicyCopy)
	}
	return fmt.Sprintf("protocast: cast %s with policy %s: %v", describeSchema(e.Schema), e.Policy, e.Err)
}

func (e *CastError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeSchema(name string) string {
	if name == "" {
		return "<any>"
	}
	return name
}

func describeTypeName(name string) string {
	if name == "" {
		return "type=<none>"
	}
	return fmt.Sprintf("type=%q", name)
}

func wrapConversionError(op, schema, typeName string, err error) error {
	if err == nil {
		return nil
	}

	var convErr *ConversionError
	if errors.As(err, &convErr) {
		if convErr.Op == "" {
			convErr.Op = op
		}
		if convErr.Schema == "" {
			convErr.Schema = schema
		}
		if convErr.TypeName == "" {
			convErr.TypeName = typeName
		}
		return convErr
	}

	return &ConversionError{
		Op:       op,
		Schema:   schema,
		TypeName: typeName,
		Err:      err,
	}
}
