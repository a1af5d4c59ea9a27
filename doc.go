// Package protocast bridges protocol buffer messages between Go and a foreign
// runtime without either side having to trust the other's ownership model.
//
// # Overview
//
// A foreign runtime (see runtime/gojart for the goja implementation) hands Go
// opaque Handle values. Some of them alias a live Go message, others only
// carry a type name and serialized content. A Caster decides, per call site,
// whether the handle can be used zero-copy or must be materialized into a
// freshly allocated message:
//
//	caster := protocast.NewCaster[*wrapperspb.StringValue](
//	    protocast.WithRuntime(rt),
//	)
//	loaded, ok := caster.Load(handle)
//	if !ok {
//	    // try the next overload
//	}
//	value := loaded.Value()
//
// Going the other way, Cast applies a Policy:
//
//	out, err := caster.Cast(msg, protocast.PolicyReferenceInternal, parent)
//
// Const sources can never be exposed as aliases:
//
//	_, err := caster.CastConst(msg, protocast.PolicyReference, nil)
//	// errors.Is(err, protocast.ErrConstReference) == true
//
// # Ownership
//
// Loaded values are Empty, Borrowed or Owned. Promote turns a borrowed alias
// into an owned copy exactly once; Release transfers the owned copy out of the
// Loaded value. Unique and Shared containers express the same transfer for call
// sites that need an explicit holder. Shared containers are never aliased
// across the boundary.
//
// # Unsafe conversions
//
// Mutable access to borrowed aliases is only compiled in with the
// protocast_unsafe build tag:
//
//	go build -tags protocast_unsafe ./...
package protocast
