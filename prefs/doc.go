// Package prefs is the capture agent's on-device key/value store.
//
// Values are CBOR-encoded (see package codec) and kept in a single SQLite
// table, so a restarted agent can restore the signed-in session and resume
// tracking where it left off.
package prefs
