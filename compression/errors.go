package compression

import "github.com/synapse-run/synapse/synapseerr"

func errNoReasoningClient() error {
	return synapseerr.New(component, synapseerr.KindInvalidState, "strategy requires a reasoning client but none was configured")
}
