// Package tool implements C5: the tool registry and dispatcher — named
// entries with optional JSON-schema parameter validation, and invocation
// with per-call timeout and typed errors (spec §4.5).
package tool

import (
	"context"

	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/identity"
)

// Tool is a named, externally-callable capability an agent can invoke.
type Tool struct {
	// Name uniquely identifies the tool within a Registry.
	Name string
	// Description is surfaced to reasoning-service callers deciding when
	// to use this tool.
	Description string
	// Schema is an optional JSON-Schema draft-07 document constraining
	// Arguments; nil means no validation is performed.
	Schema map[string]any
	// Invoke performs the tool's action. args has already passed Schema
	// validation (if any) by the time Invoke is called.
	Invoke func(ctx context.Context, ec *identity.ExecutionContext, args content.Document) (content.Document, error)
}

// Descriptor is the registry-facing projection of a Tool used for LLM
// tool-definition export and MCP bulk-registration, mirroring the
// teacher's ConvertToolInfoToDefinition helper.
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Describe projects t into its Descriptor.
func (t Tool) Describe() Descriptor {
	return Descriptor{Name: t.Name, Description: t.Description, Schema: t.Schema}
}
