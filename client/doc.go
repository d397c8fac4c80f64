// Package client wraps the tracking backend's REST API.
//
// Every call reads the current credential from a session.Store at the moment
// the request is built and, when present, sends it in the Authorization
// header. A missing credential is not an error here; the backend decides.
//
// Calls fail fast: a transport error or a non-2xx status is returned
// immediately as one of the typed errors below and nothing is retried.
// Callers choose whether to log, retry or surface the failure:
//
//   - *AuthError: login rejected or login request failed
//   - *TransmitError: a location push failed
//   - *FetchError: a status, latest, surveyor or track fetch failed
package client
