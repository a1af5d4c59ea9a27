package protocast

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
)

// OutcomeKind tags the foreign representation produced by a cast.
type OutcomeKind uint8

const (
	OutcomeNone OutcomeKind = iota
	OutcomeAlias
	OutcomeCopy
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "none"
	case OutcomeAlias:
		return "alias"
	case OutcomeCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// Outcome is the foreign-side result of a native to foreign cast.
type Outcome struct {
	Kind   OutcomeKind
	Handle Handle
	// Parent is set when a keep-alive edge ties Handle to it.
	Parent Handle
	// Policy is the policy after normalization.
	Policy Policy
}

// Cast exposes a mutable native message using policy. take_ownership moves
// the message into the cast; the caller must not use msg afterwards.
func (c *Caster[M]) Cast(msg M, policy Policy, parent Handle) (Outcome, error) {
	return c.CastPolicy(msg, policy, parent, false)
}

// CastConst exposes a message the caller may not mutate. Reference policies
// are rejected with ErrConstReference.
func (c *Caster[M]) CastConst(msg M, policy Policy, parent Handle) (Outcome, error) {
	return c.CastPolicy(msg, policy, parent, true)
}

// CastValue exposes a message passed by value; the result is always a copy.
func (c *Caster[M]) CastValue(msg M, parent Handle) (Outcome, error) {
	return c.CastPolicy(msg, PolicyCopy, parent, false)
}

// CastPolicy is the single decision point for native to foreign casts.
func (c *Caster[M]) CastPolicy(msg M, policy Policy, parent Handle, isConst bool) (Outcome, error) {
	start := time.Now()
	out, err := c.castMessage(msg, policy, parent, isConst)
	c.logEvent("cast", messageName(msg), policy.String(), out.Kind.String(), start, err)
	if err == nil && out.Kind != OutcomeNone {
		c.emitCast(messageName(msg), out)
	}
	return out, err
}

func (c *Caster[M]) castMessage(msg proto.Message, policy Policy, parent Handle, isConst bool) (Outcome, error) {
	rt := c.cfg.runtime
	if rt == nil {
		return Outcome{}, ErrNoRuntime
	}
	if isNilMessage(msg) {
		return Outcome{Kind: OutcomeNone, Handle: rt.None(), Policy: policy}, nil
	}
	if !policy.valid() {
		return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: ErrUnknownPolicy}
	}

	policy = policy.normalize()
	if isConst && policy.IsReference() {
		return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: ErrConstReference}
	}

	switch policy {
	case PolicyMove, PolicyTakeOwnership:
		// Ownership moves into the cast, but the foreign form still needs a
		// structural copy.
		policy = PolicyCopy
	}
	if c.cfg.mode == CastModeNative {
		policy = PolicyCopy
	}

	switch policy {
	case PolicyCopy:
		handle, err := rt.Copy(msg)
		if err != nil {
			return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: err}
		}
		return Outcome{Kind: OutcomeCopy, Handle: handle, Policy: policy}, nil
	case PolicyReference:
		handle, err := rt.Alias(msg)
		if err != nil {
			return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: err}
		}
		return Outcome{Kind: OutcomeAlias, Handle: handle, Policy: policy}, nil
	case PolicyReferenceInternal:
		handle, err := rt.Alias(msg)
		if err != nil {
			return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: err}
		}
		out := Outcome{Kind: OutcomeAlias, Handle: handle, Policy: policy}
		if parent == nil || rt.IsNull(parent) {
			return out, nil
		}
		if err := rt.KeepAlive(handle, parent); err != nil {
			return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: fmt.Errorf("keep alive: %w", err)}
		}
		out.Parent = parent
		return out, nil
	default:
		return Outcome{}, &CastError{Policy: policy, Schema: messageName(msg), Err: ErrUnknownPolicy}
	}
}
