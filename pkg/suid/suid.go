// Package suid generates and validates session-unique identifiers.
//
// A SUID is a standard RFC-4122 v4 UUID in canonical hyphenated form. The
// package exists so call sites never reach for uuid.New directly: the
// identifier scheme used for agent/conversation ids, transcript file names,
// and session ids is a single, swappable decision.
package suid

import "github.com/google/uuid"

// New generates a new random SUID in canonical hyphenated form.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s parses as an RFC-4122 UUID. It fails silently
// (returns false) on malformed input rather than returning an error, since
// callers use it purely as a boolean gate on untrusted path/query input.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
