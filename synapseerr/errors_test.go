package synapseerr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesKindAcrossLayers(t *testing.T) {
	root := New("tool", KindNotFound, "tool \"foo\" not found")
	wrapped := Wrap("runner", KindExecutionFailed, root, "agent execute failed")

	assert.Equal(t, KindExecutionFailed, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindExecutionFailed))

	var asErr *Error
	require.True(t, errors.As(wrapped, &asErr))
	require.ErrorIs(t, wrapped, root)
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited("tool", 2*time.Second)
	require.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, 2*time.Second, err.RetryAfter)
}

func TestKindOfUnclassifiedErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsMatchesByKindNotIdentity(t *testing.T) {
	a := New("bus", KindTimeout, "mailbox full")
	b := New("tool", KindTimeout, "different message, same kind")
	assert.True(t, errors.Is(a, b))
}
