// Package capture runs the mobile side of tracking: it subscribes to a
// location Provider, stamps each delivered reading as a model.LocationFix
// and pushes it to the backend without waiting for the result.
//
// Agent state moves Stopped -> Starting -> Running -> Stopped. A provider
// that refuses the location capability sends the agent straight back to
// Stopped with a *CapabilityError. Failed pushes are logged and counted;
// capture keeps going and nothing is replayed later.
package capture
