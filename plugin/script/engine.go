// Package script implements C6's sandboxed script plugin kind: embedded
// Lua source (github.com/yuin/gopher-lua) evaluated under a hard resource
// budget (spec §4.6's limit table), with no filesystem, network, process,
// or module-loading access exposed to the script.
package script

import (
	"context"
	"fmt"
	"regexp"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/synapse-run/synapse/synapseerr"
)

const component = "script"

// Limits is the resource-limit table from spec §4.6.
type Limits struct {
	MaxOperations     int           `yaml:"max_operations"`
	MaxCallDepth      int           `yaml:"max_call_depth"`
	MaxScriptModules  int           `yaml:"max_script_modules"`
	MaxFunctions      int           `yaml:"max_functions"`
	MaxVariables      int           `yaml:"max_variables"`
	MaxStringSize     int           `yaml:"max_string_size"`
	MaxArraySize      int           `yaml:"max_array_size"`
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`
}

// DefaultLimits returns the "typical prod value" column of spec §4.6's
// resource-limit table.
func DefaultLimits() Limits {
	return Limits{
		MaxOperations:     100_000,
		MaxCallDepth:      32,
		MaxScriptModules:  0,
		MaxFunctions:      50,
		MaxVariables:      100,
		MaxStringSize:     100 * 1024,
		MaxArraySize:      1000,
		InvocationTimeout: 5 * time.Second,
	}
}

var (
	reFunctionDecl = regexp.MustCompile(`\bfunction\b`)
	reLocalDecl    = regexp.MustCompile(`\blocal\s+((?:[A-Za-z_][A-Za-z0-9_]*\s*,\s*)*[A-Za-z_][A-Za-z0-9_]*)`)
	reNameSplit    = regexp.MustCompile(`\s*,\s*`)
)

// Engine is one ScriptEngineInstance: validated source plus the resource
// limits every invocation runs under. gopher-lua exposes no public opcode
// counter, so max_operations is enforced as a wall-clock proxy via
// InvocationTimeout rather than a true instruction count (documented in
// DESIGN.md); max_functions/max_variables are enforced with a pre-execution
// lexical scan of the source rather than a full AST walk, since gopher-lua's
// parser/ast packages are internal implementation detail this module does
// not depend on.
type Engine struct {
	source string
	limits Limits
	host   HostFunctions
}

// HostFunctions is the enumerated set of capabilities exposed to scripts.
// Every field left nil is simply absent from the sandbox; there is no
// mechanism for a script to acquire a capability not listed here.
type HostFunctions struct {
	Log func(level, message string)
}

// NewEngine validates source against limits and returns a ready-to-invoke
// Engine, or a KindValidation error describing the first limit exceeded.
func NewEngine(source string, limits Limits, host HostFunctions) (*Engine, error) {
	if n := len(reFunctionDecl.FindAllStringIndex(source, -1)); limits.MaxFunctions > 0 && n > limits.MaxFunctions {
		return nil, synapseerr.New(component, synapseerr.KindValidation,
			fmt.Sprintf("script declares %d functions, exceeding max_functions=%d", n, limits.MaxFunctions))
	}

	if limits.MaxVariables > 0 {
		seen := make(map[string]struct{})
		for _, m := range reLocalDecl.FindAllStringSubmatch(source, -1) {
			for _, name := range reNameSplit.Split(m[1], -1) {
				seen[name] = struct{}{}
			}
		}
		if len(seen) > limits.MaxVariables {
			return nil, synapseerr.New(component, synapseerr.KindValidation,
				fmt.Sprintf("script declares %d local variables, exceeding max_variables=%d", len(seen), limits.MaxVariables))
		}
	}

	if len(source) > limits.MaxStringSize && limits.MaxStringSize > 0 {
		return nil, synapseerr.New(component, synapseerr.KindValidation, "script source exceeds max_string_size")
	}

	return &Engine{source: source, limits: limits, host: host}, nil
}

// newState constructs a fresh, sandboxed lua.LState: call-depth bounded by
// limits.MaxCallDepth, and only the base/string/table/math libraries
// opened — no os, io, package (module loading), debug, or coroutine
// access, matching spec §4.6's default-deny sandbox.
func (e *Engine) newState() *lua.LState {
	callStack := e.limits.MaxCallDepth
	if callStack <= 0 {
		callStack = 32
	}
	L := lua.NewState(lua.Options{
		CallStackSize:       callStack,
		RegistrySize:        1024 * 20,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})
	for _, lib := range []lua.LGFunction{lua.OpenBase, lua.OpenString, lua.OpenTable, lua.OpenMath} {
		lib(L)
	}
	// The base library includes file loaders; remove them.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	e.registerHostFunctions(L)
	return L
}

func (e *Engine) registerHostFunctions(L *lua.LState) {
	L.SetGlobal("now", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		level := L.CheckString(1)
		msg := L.CheckString(2)
		if e.host.Log != nil {
			e.host.Log(level, msg)
		}
		return 0
	}))
	L.SetGlobal("str_upper", L.NewFunction(func(L *lua.LState) int {
		s := e.checkedString(L, 1)
		L.Push(lua.LString(toUpper(s)))
		return 1
	}))
	L.SetGlobal("json_stringify", L.NewFunction(func(L *lua.LState) int {
		v := luaToGo(L.CheckAny(1))
		s, err := jsonMarshal(v)
		if err != nil {
			L.RaiseError("json_stringify: %v", err)
			return 0
		}
		L.Push(lua.LString(s))
		return 1
	}))
	L.SetGlobal("json_parse", L.NewFunction(func(L *lua.LState) int {
		s := e.checkedString(L, 1)
		v, err := jsonUnmarshal(s)
		if err != nil {
			L.RaiseError("json_parse: %v", err)
			return 0
		}
		L.Push(goToLua(L, v, e.limits))
		return 1
	}))
}

// checkedString enforces max_string_size at the host-function boundary,
// the point spec §4.6 designates for that limit rather than at parse time.
func (e *Engine) checkedString(L *lua.LState, idx int) string {
	s := L.CheckString(idx)
	if e.limits.MaxStringSize > 0 && len(s) > e.limits.MaxStringSize {
		L.RaiseError("string argument exceeds max_string_size")
	}
	return s
}

// Invoke calls the global function funcName with args marshaled into a Lua
// table, under InvocationTimeout. Returns the function's single return
// value converted back to a Go value.
func (e *Engine) Invoke(ctx context.Context, funcName string, args map[string]any) (any, error) {
	timeout := e.limits.InvocationTimeout
	if timeout <= 0 {
		timeout = DefaultLimits().InvocationTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	L := e.newState()
	defer L.Close()
	L.SetContext(callCtx)

	if err := L.DoString(e.source); err != nil {
		return nil, synapseerr.Wrap(component, synapseerr.KindPlugin, err, "script failed to load")
	}

	fn, ok := L.GetGlobal(funcName).(*lua.LFunction)
	if !ok {
		return nil, synapseerr.New(component, synapseerr.KindNotFound, "script defines no function \""+funcName+"\"")
	}

	argTable := goToLua(L, args, e.limits).(*lua.LTable)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, argTable); err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, synapseerr.New(component, synapseerr.KindTimeout, "script invocation exceeded invocation_timeout")
		}
		return nil, synapseerr.Wrap(component, synapseerr.KindPlugin, err, "script invocation failed")
	}

	ret := L.Get(-1)
	L.Pop(1)
	return luaToGo(ret), nil
}

// hasGlobal reports whether source defines a function named name, without
// invoking it. Used by the script-plugin adapter to treat undefined
// optional hooks as no-ops rather than NotFound errors.
func (e *Engine) hasGlobal(name string) (lua.LValue, bool) {
	L := e.newState()
	defer L.Close()
	if err := L.DoString(e.source); err != nil {
		return lua.LNil, false
	}
	v := L.GetGlobal(name)
	_, ok := v.(*lua.LFunction)
	return v, ok
}

// Render implements the "script as prompt template" expansion: a script
// defining a global `render(vars)` function returning (system, user)
// doubles as a parameterized prompt builder for C7 callers.
func (e *Engine) Render(ctx context.Context, vars map[string]any) (system, user string, err error) {
	timeout := e.limits.InvocationTimeout
	if timeout <= 0 {
		timeout = DefaultLimits().InvocationTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	L := e.newState()
	defer L.Close()
	L.SetContext(callCtx)

	if err := L.DoString(e.source); err != nil {
		return "", "", synapseerr.Wrap(component, synapseerr.KindPlugin, err, "script failed to load")
	}
	fn, ok := L.GetGlobal("render").(*lua.LFunction)
	if !ok {
		return "", "", synapseerr.New(component, synapseerr.KindNotFound, "script defines no function \"render\"")
	}

	argTable := goToLua(L, vars, e.limits).(*lua.LTable)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, argTable); err != nil {
		return "", "", synapseerr.Wrap(component, synapseerr.KindPlugin, err, "render invocation failed")
	}
	userV := L.Get(-1)
	sysV := L.Get(-2)
	L.Pop(2)
	return lua.LVAsString(sysV), lua.LVAsString(userV), nil
}
