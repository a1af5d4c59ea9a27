//go:build protocast_unsafe

package protocast

const unsafeConversions = true

// UnsafeConversions reports whether mutable access to borrowed aliases was
// compiled in.
func UnsafeConversions() bool {
	return unsafeConversions
}
