// Package codec is the binary encoding used for values persisted on the
// device (stored session, surveyor profile, capture statistics).
//
// Encoding is CBOR with Core Deterministic Encoding so the same value always
// produces the same bytes. Types that only carry json tags are encoded using
// those names.
package codec
