package cloud

import "errors"

// Error taxonomy for the cloud analysis path. Callers classify failures with
// errors.Is; the orchestrator treats every one of them as a fallback trigger.
var (
	// ErrTransport indicates a connectivity failure or timeout before a
	// response was received.
	ErrTransport = errors.New("cloud: transport failure")

	// ErrAuth indicates the credential was rejected (HTTP 401/403).
	ErrAuth = errors.New("cloud: authentication rejected")

	// ErrRateLimited indicates the provider throttled the request (HTTP 429).
	ErrRateLimited = errors.New("cloud: rate limited")

	// ErrRemote indicates any other non-2xx response.
	ErrRemote = errors.New("cloud: remote error")

	// ErrUnparsable indicates the response carried no usable analysis text.
	// Malformed-but-present text never produces this error: the parse chain
	// degrades to a narrative result instead.
	ErrUnparsable = errors.New("cloud: unparsable response")
)
