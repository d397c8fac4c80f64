// Package utils provides shared helpers for the surveyor tracking clients.
//
// It contains:
//   - ISO-8601 timestamp formatting and parsing for location fixes
//   - Great-circle distance and route summaries
package utils
