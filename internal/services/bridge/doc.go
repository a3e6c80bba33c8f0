// Package bridge talks to the platform bridge: a local sidecar that owns the
// logged-in browser sessions for each managed account and exposes them over
// a small JSON HTTP API.
//
// The bridge covers everything the pipeline treats as an external
// collaborator: session validation, bounded content fetches and reply
// posting. Client implements platform.SessionProvider, platform.Fetcher and
// platform.Sender.
//
// # Endpoints
//
//	POST /v1/sessions/{account}/validate   -> {"session_id", "expires_at"}
//	GET  /v1/accounts/{account}/content    -> {"items": [...], "cursor"}
//	POST /v1/accounts/{account}/replies    -> {"reply_id"}
//	GET  /v1/health
//
// HTTP 401 and 403 map to services.ErrSessionInvalid. Other failures are
// tagged ErrFetchTransient on the read path and ErrSendFailed on the send
// path.
package bridge
