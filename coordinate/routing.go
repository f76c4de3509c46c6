package coordinate

import (
	"context"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/synapseerr"
)

// Route describes one candidate target the router agent may select.
type Route struct {
	ID          agent.ID `yaml:"id"`
	Description string   `yaml:"description"`
}

// RoutingConfig configures Routing.
type RoutingConfig struct {
	Routes []Route `yaml:"routes"`
	// Router is a real agent, dispatched like every other decision-maker
	// in this package, whose job is to pick a target from Routes. Its
	// output Metadata key "target" must hold the selected Route.ID.
	Router agent.ID `yaml:"router"`

	// Emitter is a runtime collaborator wired in code, not a
	// YAML-serializable setting.
	Emitter observability.Emitter
}

// routeList renders Routes as plain data for the router agent's input
// metadata, independent of agent.ID's underlying type.
func routeList(routes []Route) []any {
	list := make([]any, 0, len(routes))
	for _, r := range routes {
		list = append(list, map[string]any{"id": string(r.ID), "description": r.Description})
	}
	return list
}

// Routing dispatches to cfg.Router with the original input plus the
// candidate Routes attached as metadata, reads the selected target out of
// the router's output metadata, then dispatches the original input to
// that target and returns its output (spec §4.10).
func Routing(ctx context.Context, d Dispatcher, cfg RoutingConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	e.emit(ctx, "routing_start", map[string]any{"routes": len(cfg.Routes)})

	routerIn := input
	routerIn.Metadata = mergeMetadata(input.Metadata, map[string]any{"routes": routeList(cfg.Routes)})

	routerOut, err := d.Dispatch(ctx, cfg.Router, routerIn)
	if err != nil {
		e.emit(ctx, "routing_done", map[string]any{"ok": false})
		return content.AgentOutput{}, err
	}

	targetName, _ := routerOut.Metadata["target"].(string)
	target := agent.ID(targetName)

	found := false
	for _, r := range cfg.Routes {
		if r.ID == target {
			found = true
			break
		}
	}
	if !found {
		e.emit(ctx, "routing_done", map[string]any{"ok": false})
		return content.AgentOutput{}, synapseerr.New(component, synapseerr.KindNotFound, "router selected unknown route \""+targetName+"\"")
	}

	out, err := d.Dispatch(ctx, target, input)
	e.emit(ctx, "routing_done", map[string]any{"ok": err == nil, "target": targetName})
	return out, err
}

// mergeMetadata returns a new map combining base with extra, extra taking
// precedence on key collision. Neither input is mutated.
func mergeMetadata(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
