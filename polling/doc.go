// Package polling owns the dashboard's recurring fetch loops.
//
// A Controller runs at most one loop per Kind. Each loop has a generation
// number; an action receives it in its Tick and must check IsCurrent before
// applying a result, because cancelling a loop stops future ticks but a
// request issued by the last tick can still complete afterwards.
//
// Ticks are independent. If an action's work outlives the interval the next
// tick still fires, so two requests of the same loop can be in flight at
// once. The controller does not suppress that overlap.
package polling
