// Package llm provides an OpenRouter-compatible chat client that composes
// reply text for inbound comments and messages.
//
// The client asks the model for a JSON object of the form {"reply": "..."}
// and trims the result to the caller's maximum length. Compose satisfies
// platform.Composer; the dispatcher bounds each call with a context
// deadline and substitutes the configured fallback reply on any error.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx responses, empty completions and
// network timeouts using the shared backoff policy. A Retry-After header
// takes precedence over the computed delay. Context cancellation aborts
// retries immediately.
package llm
