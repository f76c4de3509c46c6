package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTextInputRoundTrip(t *testing.T) {
	in := NewTextInput("hi")
	assert.Equal(t, KindText, in.Content.Kind)
	assert.Equal(t, "hi", in.String())
}

func TestEnvelopeStringEmptyForNonText(t *testing.T) {
	doc := Envelope{Content: NewDocument(map[string]any{"a": 1})}
	assert.Equal(t, "", doc.String())

	bin := Envelope{Content: NewBinary([]byte{1, 2}, "application/octet-stream")}
	assert.Equal(t, "", bin.String())
	assert.Equal(t, "application/octet-stream", bin.Content.ContentType)
}
