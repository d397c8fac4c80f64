// Package model holds the records exchanged between the mobile agent, the
// dashboard and the tracking backend.
//
// Surveyor records are owned by the backend and treated as read-only by the
// clients. A LocationFix is immutable once captured: the agent creates it,
// the transmission client sends it, and the dashboard receives fixes back
// from the latest/track endpoints.
package model
