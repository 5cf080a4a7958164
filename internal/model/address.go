package model

import "strings"

// CanonicalAddress normalizes a hex address to lowercase so every map key
// and equality check in the module compares the same form.
func CanonicalAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return CanonicalAddress(a) == CanonicalAddress(b)
}
