package protocast

import (
	"time"

	"google.golang.org/protobuf/proto"
)

// LoadedState tags the ownership of a Loaded value.
type LoadedState uint8

const (
	// StateEmpty holds no value; the foreign side passed null or the load failed.
	StateEmpty LoadedState = iota
	// StateBorrowed aliases a message owned by someone else.
	StateBorrowed
	// StateOwned holds an exclusively owned copy.
	StateOwned
	// StateReleased means the owned copy was transferred out.
	StateReleased
)

func (s LoadedState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBorrowed:
		return "borrowed"
	case StateOwned:
		return "owned"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Loaded is the per call site result of a foreign to native conversion.
// Promotion from borrowed to owned is one-way. A Loaded value is not safe for
// concurrent use.
type Loaded[M proto.Message] struct {
	caster   *Caster[M]
	state    LoadedState
	borrowed M
	owned    M
	err      error
}

// Load converts h, replacing any previous state. It returns false, leaving
// the state empty, when h cannot be converted; Err reports why.
func (l *Loaded[M]) Load(h Handle) bool {
	start := time.Now()
	l.reset()
	c := l.caster
	if c == nil || c.cfg.runtime == nil {
		l.err = ErrNoRuntime
		return false
	}

	if c.cfg.runtime.IsNull(h) {
		c.logEvent("load", "", "", StateEmpty.String(), start, nil)
		return true
	}

	value, res := c.resolve(h)
	switch res {
	case resolveHit:
		l.state = StateBorrowed
		l.borrowed = value
		c.logEvent("load", messageName(value), "", StateBorrowed.String(), start, nil)
		return true
	case resolveRejected:
		aliased := c.cfg.runtime.AliasedNative(h)
		l.err = wrapConversionError("load", c.target.name(), messageName(aliased), ErrIdentityMismatch)
		c.logEvent("load", messageName(aliased), "", StateEmpty.String(), start, l.err)
		c.emitRejected(messageName(aliased), l.err)
		return false
	}

	owned, typeName, err := c.materialize(h)
	if err != nil {
		l.err = wrapConversionError("load", c.target.name(), typeName, err)
		c.logEvent("load", typeName, "", StateEmpty.String(), start, l.err)
		c.emitRejected(typeName, l.err)
		return false
	}
	l.state = StateOwned
	l.owned = owned
	l.borrowed = owned
	c.logEvent("load", typeName, "", StateOwned.String(), start, nil)
	c.emitMaterialized(typeName)
	return true
}

func (l *Loaded[M]) reset() {
	var zero M
	l.state = StateEmpty
	l.borrowed = zero
	l.owned = zero
	l.err = nil
}

// State returns the current ownership tag.
func (l *Loaded[M]) State() LoadedState {
	return l.state
}

// Empty reports whether the value is absent.
func (l *Loaded[M]) Empty() bool {
	return l.state == StateEmpty || l.state == StateReleased
}

// Err returns the reason of the last failed Load.
func (l *Loaded[M]) Err() error {
	return l.err
}

// Value returns a read-only view of the loaded message, or the zero M when
// empty. Callers must not mutate it unless State is StateOwned.
func (l *Loaded[M]) Value() M {
	if l.state == StateReleased {
		var zero M
		return zero
	}
	return l.borrowed
}

// Promote returns an exclusively owned message, copying the borrowed alias on
// first use. Repeated calls return the same owned instance.
func (l *Loaded[M]) Promote() (M, error) {
	var zero M
	switch l.state {
	case StateEmpty:
		return zero, nil
	case StateReleased:
		return zero, ErrAlreadyReleased
	case StateOwned:
		return l.owned, nil
	}

	start := time.Now()
	c := l.caster
	copied, err := c.copyMessage(l.borrowed)
	if err != nil {
		c.logEvent("promote", messageName(l.borrowed), "", l.state.String(), start, err)
		return zero, err
	}
	l.owned = copied
	l.borrowed = copied
	l.state = StateOwned
	c.logEvent("promote", messageName(copied), "", StateOwned.String(), start, nil)
	c.emitPromoted(messageName(copied))
	return copied, nil
}

// Release transfers the owned message out of l, promoting first if needed.
// Afterwards l is released and a second call fails with ErrAlreadyReleased.
func (l *Loaded[M]) Release() (M, error) {
	var zero M
	if l.state == StateEmpty {
		return zero, nil
	}
	owned, err := l.Promote()
	if err != nil {
		return zero, err
	}
	l.owned = zero
	l.borrowed = zero
	l.state = StateReleased
	return owned, nil
}

// Mutable returns a message the caller may modify. Owned values are always
// returned; borrowed aliases only when built with the protocast_unsafe tag.
func (l *Loaded[M]) Mutable() (M, error) {
	var zero M
	switch l.state {
	case StateOwned:
		return l.owned, nil
	case StateBorrowed:
		if !unsafeConversions {
			return zero, ErrUnsafeConversion
		}
		return l.borrowed, nil
	case StateReleased:
		return zero, ErrAlreadyReleased
	default:
		return zero, nil
	}
}

// copyMessage allocates a message of the same type as src and copies src
// into it by value.
func (c *Caster[M]) copyMessage(src M) (M, error) {
	var zero M
	fresh := c.cfg.allocator.New(src.ProtoReflect().Type())
	typed, ok := fresh.(M)
	if !ok {
		return zero, wrapConversionError("promote", c.target.name(), messageName(src), ErrTypeMismatch)
	}
	proto.Merge(fresh, src)
	return typed, nil
}
