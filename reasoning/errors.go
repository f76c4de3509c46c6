package reasoning

import (
	"time"

	"github.com/synapse-run/synapse/synapseerr"
)

// Every reasoning-service failure other than RateLimited/Timeout (which
// reuse the shared taxonomy's top-level kinds directly) surfaces as
// KindReasoningService with one of these prefixes in Message, matching
// spec §7's "ReasoningServiceError(kind, detail)" nested-kind shape.
const (
	subkindInvalidAPIKey   = "invalid_api_key"
	subkindStreamError     = "stream_error"
	subkindNetworkError    = "network_error"
	subkindInvalidResponse = "invalid_response"
)

func errInvalidAPIKey(cause error) error {
	return synapseerr.Wrap(component, synapseerr.KindReasoningService, cause, subkindInvalidAPIKey)
}

func errStream(detail string, cause error) error {
	return synapseerr.Wrap(component, synapseerr.KindReasoningService, cause, subkindStreamError+": "+detail)
}

func errNetwork(cause error) error {
	return synapseerr.Wrap(component, synapseerr.KindReasoningService, cause, subkindNetworkError)
}

func errInvalidResponse(detail string) error {
	return synapseerr.New(component, synapseerr.KindReasoningService, subkindInvalidResponse+": "+detail)
}

func errRateLimited(retryAfter time.Duration) error {
	return synapseerr.RateLimited(component, retryAfter)
}

func errTimeout() error {
	return synapseerr.New(component, synapseerr.KindTimeout, "reasoning service call timed out")
}
