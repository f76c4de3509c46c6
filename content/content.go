// Package content defines the typed envelopes agents exchange: AgentInput
// and AgentOutput (spec §3), each wrapping one of three content kinds —
// plain text, a structured document tree, or a binary blob tagged with its
// content type.
package content

// Kind tags which variant of Content is populated.
type Kind string

const (
	KindText     Kind = "text"
	KindDocument Kind = "document"
	KindBinary   Kind = "binary"
)

// Document is a tree of string/number/bool/null/array/object values, the
// structured-document content kind from spec §3. It is a thin alias over
// the natural Go decoding of JSON so tool arguments, tool results, and
// structured agent payloads share one representation.
type Document = any

// Content is exactly one of Text, Document, or Binary, selected by Kind.
// A zero-value Content is invalid; use the New* constructors.
type Content struct {
	Kind Kind

	Text     string
	Document Document

	Binary      []byte
	ContentType string
}

// NewText builds a text Content.
func NewText(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// NewDocument builds a structured-document Content.
func NewDocument(doc Document) Content {
	return Content{Kind: KindDocument, Document: doc}
}

// NewBinary builds a binary-blob Content tagged with its MIME content type.
func NewBinary(data []byte, contentType string) Content {
	return Content{Kind: KindBinary, Binary: data, ContentType: contentType}
}

// Envelope is the common shape of AgentInput and AgentOutput: a Content
// payload plus an optional metadata map.
type Envelope struct {
	Content  Content
	Metadata map[string]any
}

// AgentInput is what a runner hands to Agent.Execute.
type AgentInput = Envelope

// AgentOutput is what Agent.Execute returns.
type AgentOutput = Envelope

// NewTextInput is a convenience constructor for the common plain-text case.
func NewTextInput(text string) AgentInput {
	return AgentInput{Content: NewText(text)}
}

// NewTextOutput is the AgentOutput analogue of NewTextInput.
func NewTextOutput(text string) AgentOutput {
	return AgentOutput{Content: NewText(text)}
}

// String returns the text content when Kind is KindText, otherwise "".
// Coordination patterns and tests use this to pipe text-shaped agents
// together without unpacking Content by hand every time.
func (e Envelope) String() string {
	if e.Content.Kind == KindText {
		return e.Content.Text
	}
	return ""
}
