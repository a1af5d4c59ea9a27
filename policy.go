package protocast

import (
	"fmt"
	"strings"
)

// Policy requests ownership semantics for a native to foreign conversion.
type Policy uint8

const (
	PolicyAutomatic Policy = iota
	PolicyAutomaticReference
	PolicyCopy
	PolicyMove
	PolicyReference
	PolicyReferenceInternal
	PolicyTakeOwnership
)

var policyNames = [...]string{
	PolicyAutomatic:          "automatic",
	PolicyAutomaticReference: "automatic_reference",
	PolicyCopy:               "copy",
	PolicyMove:               "move",
	PolicyReference:          "reference",
	PolicyReferenceInternal:  "reference_internal",
	PolicyTakeOwnership:      "take_ownership",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy maps a policy name back to its Policy value.
func ParsePolicy(name string) (Policy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range policyNames {
		if candidate == key {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// IsReference reports whether p exposes the native value as an alias.
func (p Policy) IsReference() bool {
	return p == PolicyReference || p == PolicyReferenceInternal
}

func (p Policy) valid() bool {
	return int(p) < len(policyNames)
}

// normalize resolves automatic policies to copy.
func (p Policy) normalize() Policy {
	switch p {
	case PolicyAutomatic, PolicyAutomaticReference:
		return PolicyCopy
	default:
		return p
	}
}
