// Package foreigntest provides an in-memory foreign runtime for exercising
// casters without an embedded interpreter.
//
// Objects created by Wrap alias a live Go message, the same way an embedded
// runtime would hand back a Go pointer it already holds. Objects created by
// Foreign or Copy only carry a type name and wire-format bytes, so converting
// them requires a serialize/deserialize round trip.
//
// CountingAllocator records every allocation a caster performs, which makes
// zero-copy guarantees observable in tests.
package foreigntest
