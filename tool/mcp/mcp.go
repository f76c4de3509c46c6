// Package mcp adapts a Model Context Protocol server's tool set into C5's
// tool.Registry: Load connects over stdio, lists the server's tools, and
// bulk-registers them as tool.Tool entries that proxy Invoke over the MCP
// connection; Unload tears the connection down and removes every tool it
// registered, grounded on the teacher's mcptoolset package and its
// stdio connect/initialize/list-tools/close sequence.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/identity"
	"github.com/synapse-run/synapse/synapseerr"
	"github.com/synapse-run/synapse/tool"
)

const component = "tool_mcp"

// ClientInfo identifies this runtime to the MCP server during the
// initialize handshake.
var ClientInfo = mcp.Implementation{Name: "synapse", Version: "0.1.0"}

// Config configures a stdio-transport MCP connection.
type Config struct {
	// Name prefixes every tool this connection registers, so tools from
	// distinct MCP servers never collide in the shared Registry.
	Name string
	// Command and Args launch the MCP server subprocess.
	Command string
	Args    []string
	Env     map[string]string
	// Filter, if non-empty, restricts which server-advertised tools are
	// registered; an empty Filter registers every tool the server lists.
	Filter []string
}

// Toolset owns one MCP stdio connection and the set of tool names it
// registered into a Registry, so Unload can remove exactly those.
type Toolset struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
	names     []string
}

// New constructs an unconnected Toolset. Call Load to connect and
// bulk-register its tools.
func New(cfg Config) *Toolset {
	return &Toolset{cfg: cfg}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Load connects to the MCP server, performs the initialize handshake,
// lists its tools, and registers each (subject to cfg.Filter) into reg
// under "<cfg.Name>.<tool name>".
func (t *Toolset) Load(ctx context.Context, reg *tool.Registry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return synapseerr.New(component, synapseerr.KindInvalidState, "toolset \""+t.cfg.Name+"\" already loaded")
	}

	cli, err := client.NewStdioMCPClient(t.cfg.Command, envSlice(t.cfg.Env), t.cfg.Args...)
	if err != nil {
		return synapseerr.Wrap(component, synapseerr.KindExecutionFailed, err, "create MCP client")
	}
	if err := cli.Start(ctx); err != nil {
		return synapseerr.Wrap(component, synapseerr.KindExecutionFailed, err, "start MCP client")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = ClientInfo
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		cli.Close()
		return synapseerr.Wrap(component, synapseerr.KindExecutionFailed, err, "initialize MCP connection")
	}

	listResp, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		cli.Close()
		return synapseerr.Wrap(component, synapseerr.KindExecutionFailed, err, "list MCP tools")
	}

	filter := make(map[string]bool, len(t.cfg.Filter))
	for _, name := range t.cfg.Filter {
		filter[name] = true
	}

	var names []string
	for _, mt := range listResp.Tools {
		if len(filter) > 0 && !filter[mt.Name] {
			continue
		}
		registeredName := t.cfg.Name + "." + mt.Name
		remoteName := mt.Name
		schema := convertSchema(mt.InputSchema)

		err := reg.Register(tool.Tool{
			Name:        registeredName,
			Description: mt.Description,
			Schema:      schema,
			Invoke:      t.invokeFunc(remoteName),
		})
		if err != nil {
			cli.Close()
			return synapseerr.Wrap(component, synapseerr.KindExecutionFailed, err, "register MCP tool \""+registeredName+"\"")
		}
		names = append(names, registeredName)
	}

	t.client = cli
	t.connected = true
	t.names = names
	return nil
}

// invokeFunc builds a tool.Tool.Invoke closure that forwards args to the
// MCP server's remoteName tool and decodes its text content back into a
// content.Document.
func (t *Toolset) invokeFunc(remoteName string) func(context.Context, *identity.ExecutionContext, content.Document) (content.Document, error) {
	return func(ctx context.Context, _ *identity.ExecutionContext, args content.Document) (content.Document, error) {
		t.mu.Lock()
		cli := t.client
		t.mu.Unlock()
		if cli == nil {
			return nil, synapseerr.New(component, synapseerr.KindInvalidState, "toolset \""+t.cfg.Name+"\" not loaded")
		}

		argMap, _ := args.(map[string]any)
		req := mcp.CallToolRequest{}
		req.Params.Name = remoteName
		req.Params.Arguments = argMap

		result, err := cli.CallTool(ctx, req)
		if err != nil {
			return nil, synapseerr.Wrap(component, synapseerr.KindExecutionFailed, err, "call MCP tool \""+remoteName+"\"")
		}
		if result.IsError {
			return nil, synapseerr.New(component, synapseerr.KindExecutionFailed, "MCP tool \""+remoteName+"\" returned an error result")
		}
		return decodeResult(result), nil
	}
}

// decodeResult flattens an MCP CallToolResult's content blocks into a
// content.Document: a single text block decodes as JSON if possible
// (falling back to the raw string), multiple blocks become a slice.
func decodeResult(result *mcp.CallToolResult) content.Document {
	if len(result.Content) == 1 {
		return decodeContentBlock(result.Content[0])
	}
	out := make([]any, len(result.Content))
	for i, c := range result.Content {
		out[i] = decodeContentBlock(c)
	}
	return out
}

func decodeContentBlock(c mcp.Content) any {
	tc, ok := c.(mcp.TextContent)
	if !ok {
		return c
	}
	var decoded any
	if err := json.Unmarshal([]byte(tc.Text), &decoded); err == nil {
		return decoded
	}
	return tc.Text
}

func convertSchema(s mcp.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// Unload removes every tool this Toolset registered from reg and closes
// the underlying MCP connection.
func (t *Toolset) Unload(reg *tool.Registry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}

	var firstErr error
	for _, name := range t.names {
		if err := reg.Unregister(name); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unregister %q: %w", name, err)
		}
	}
	if t.client != nil {
		t.client.Close()
	}
	t.connected = false
	t.names = nil
	t.client = nil
	return firstErr
}
