// Package restapi is the HTTP client for the tracking backend's REST API.
//
// # Overview
//
// The client serves three callers:
//
//   - the cache, through Collection, which returns a fetch function per path
//   - the outbound queue, through Submit, which POSTs one queued write
//   - the connectivity probe, through Health
//
// # Request Handling
//
// Every request carries Accept: application/json and User-Agent:
// tracksync/0.1, and a bearer token when a TokenSource is configured. Writes
// send Content-Type: application/json. The default timeout is ten seconds.
//
// Any status of 400 or above is returned as a *StatusError, so the queue
// counts it as a failed attempt. Network failures are wrapped with
// "execute request:" and decoding failures with "decode response:".
//
// # URL Construction
//
// The base URL may carry a path prefix. Relative endpoints are appended to
// it, so with a base of https://parks.example.org/v1 the endpoint
// /api/animals/ resolves to https://parks.example.org/v1/api/animals/.
// Absolute endpoint URLs are used as given.
//
//   - "127.0.0.1:8000" → http://127.0.0.1:8000
//   - "https://parks.example.org/v1/" → https://parks.example.org/v1
//
// # Retries
//
// The client never retries. The queue owns the retry budget and the cache
// decides what to serve when a fetch fails.
package restapi
