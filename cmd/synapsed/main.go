// Command synapsed is a minimal demonstration binary wiring a kernel.Kernel
// together and running a two-stage sequential coordination over it. It is
// not a configuration-driven CLI — loading agents/tools from files is left
// to a host application (spec's CLI/config-loading non-goal).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/coordinate"
	"github.com/synapse-run/synapse/kernel"
)

type echoAgent struct {
	id    agent.ID
	name  string
	state agent.State
	fn    func(string) string
}

func (e *echoAgent) ID() agent.ID                     { return e.id }
func (e *echoAgent) Name() string                     { return e.name }
func (e *echoAgent) Capabilities() agent.Capabilities {
	return agent.Capabilities{InputKind: "text", OutputKind: "text"}
}
func (e *echoAgent) State() agent.State { return e.state }
func (e *echoAgent) Initialize(context.Context) error {
	e.state = agent.StateReady
	return nil
}
func (e *echoAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	return content.NewTextOutput(e.fn(in.String())), nil
}
func (e *echoAgent) Shutdown(context.Context) error {
	e.state = agent.StateShutdown
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	k := kernel.New(kernel.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agents := []*echoAgent{
		{id: "shout", name: "shout", fn: strings.ToUpper},
		{id: "whisper", name: "whisper", fn: strings.ToLower},
	}
	for _, a := range agents {
		if _, err := k.Spawn(ctx, a); err != nil {
			logger.Error("spawn failed", "agent", a.id, "error", err)
			os.Exit(1)
		}
	}
	defer k.Shutdown(ctx)

	out, err := coordinate.Sequential(ctx, k, coordinate.SequentialConfig{
		Participants: []agent.ID{"shout", "whisper"},
	}, content.NewTextInput("Hello, Synapse"))
	if err != nil {
		logger.Error("sequential coordination failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(out.String())
}
