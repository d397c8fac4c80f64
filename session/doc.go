// Package session holds the authentication state of a running client.
//
// A Store keeps the current credential and hands it to the transmission
// client on every request. Writes (Set, Clear) replace the whole value
// atomically, so a concurrent reader observes either the old credential or
// the new one, never a torn value. Once Clear returns, no request built
// afterwards carries the previous credential.
//
// The Store is an explicit value injected into the client; there is no
// process-wide token.
package session
