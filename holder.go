package protocast

import (
	"google.golang.org/protobuf/proto"
)

// Unique is a move-only container: its message has exactly one owner and
// Release hands it over.
type Unique[M proto.Message] struct {
	value M
	set   bool
}

// NewUnique wraps an owned message.
func NewUnique[M proto.Message](msg M) *Unique[M] {
	if isNilMessage(msg) {
		return &Unique[M]{}
	}
	return &Unique[M]{value: msg, set: true}
}

// Get returns the held message without transferring it.
func (u *Unique[M]) Get() M {
	if u == nil {
		var zero M
		return zero
	}
	return u.value
}

// Empty reports whether the container holds nothing.
func (u *Unique[M]) Empty() bool {
	return u == nil || !u.set
}

// Release transfers the message out, leaving the container empty.
func (u *Unique[M]) Release() (M, bool) {
	var zero M
	if u.Empty() {
		return zero, false
	}
	value := u.value
	u.value = zero
	u.set = false
	return value, true
}

type sharedCell[M proto.Message] struct {
	value M
}

// Shared is a copyable container; copies refer to the same message.
type Shared[M proto.Message] struct {
	cell *sharedCell[M]
}

// NewShared wraps msg in a fresh shared container.
func NewShared[M proto.Message](msg M) Shared[M] {
	if isNilMessage(msg) {
		return Shared[M]{}
	}
	return Shared[M]{cell: &sharedCell[M]{value: msg}}
}

// Get returns the shared message.
func (s Shared[M]) Get() M {
	if s.cell == nil {
		var zero M
		return zero
	}
	return s.cell.value
}

// Empty reports whether the container holds nothing.
func (s Shared[M]) Empty() bool {
	return s.cell == nil
}

// Same reports whether s and other share one message.
func (s Shared[M]) Same(other Shared[M]) bool {
	return s.cell != nil && s.cell == other.cell
}

// UniqueHolder loads foreign values into a move-only container.
type UniqueHolder[M proto.Message] struct {
	caster *Caster[M]
	holder *Unique[M]
	taken  bool
	err    error
}

// NewUniqueHolder returns a holder adapter bound to c.
func (c *Caster[M]) NewUniqueHolder() *UniqueHolder[M] {
	return &UniqueHolder[M]{caster: c}
}

// Load converts h and takes exclusive ownership of the result, copying
// borrowed aliases.
func (h *UniqueHolder[M]) Load(handle Handle) bool {
	h.holder = nil
	h.taken = false
	h.err = nil

	loaded := h.caster.NewLoaded()
	if !loaded.Load(handle) {
		h.err = loaded.Err()
		return false
	}
	owned, err := loaded.Release()
	if err != nil {
		h.err = err
		return false
	}
	h.holder = NewUnique(owned)
	return true
}

// Take hands the container to the caller. Only one Take per Load succeeds.
func (h *UniqueHolder[M]) Take() (*Unique[M], error) {
	if h.taken {
		return nil, ErrAlreadyReleased
	}
	h.taken = true
	holder := h.holder
	h.holder = nil
	if holder == nil {
		holder = &Unique[M]{}
	}
	return holder, nil
}

// Err returns the reason of the last failed Load.
func (h *UniqueHolder[M]) Err() error {
	return h.err
}

// SharedHolder loads foreign values into a shared container.
type SharedHolder[M proto.Message] struct {
	caster *Caster[M]
	holder Shared[M]
	err    error
}

// NewSharedHolder returns a holder adapter bound to c.
func (c *Caster[M]) NewSharedHolder() *SharedHolder[M] {
	return &SharedHolder[M]{caster: c}
}

// Load converts h into an owned copy wrapped in a fresh Shared container.
func (h *SharedHolder[M]) Load(handle Handle) bool {
	h.holder = Shared[M]{}
	h.err = nil

	loaded := h.caster.NewLoaded()
	if !loaded.Load(handle) {
		h.err = loaded.Err()
		return false
	}
	owned, err := loaded.Release()
	if err != nil {
		h.err = err
		return false
	}
	h.holder = NewShared(owned)
	return true
}

// Holder returns the loaded container. Copies share the same message.
func (h *SharedHolder[M]) Holder() Shared[M] {
	return h.holder
}

// Err returns the reason of the last failed Load.
func (h *SharedHolder[M]) Err() error {
	return h.err
}

// CastUnique moves the message out of u into the foreign runtime.
func (c *Caster[M]) CastUnique(u *Unique[M], parent Handle) (Outcome, error) {
	msg, ok := u.Release()
	if !ok {
		var zero M
		return c.CastPolicy(zero, PolicyMove, parent, false)
	}
	return c.CastPolicy(msg, PolicyMove, parent, false)
}

// CastShared always copies; shared containers are never aliased across the
// boundary.
func (c *Caster[M]) CastShared(s Shared[M], parent Handle) (Outcome, error) {
	return c.CastPolicy(s.Get(), PolicyCopy, parent, true)
}
