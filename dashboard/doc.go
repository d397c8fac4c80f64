// Package dashboard is the view-mode state machine behind the tracking
// dashboard.
//
// The dashboard is always in exactly one ViewMode: LiveAll, LiveSingle for
// one surveyor, or Historical for one surveyor and time range. Every
// transition cancels all polling loops and then starts only the loops the
// new mode needs:
//
//	LiveAll     status, all-latest
//	LiveSingle  status, single-live
//	Historical  status
//
// Fetch results are applied only if the loop that produced them is still
// the current one, so a late response from a cancelled loop never changes
// what is displayed.
package dashboard
