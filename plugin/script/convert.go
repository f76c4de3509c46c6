package script

import (
	"encoding/json"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

func toUpper(s string) string { return strings.ToUpper(s) }

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func jsonUnmarshal(s string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// goToLua converts a Go value (as produced by encoding/json decoding, or a
// map[string]any of host arguments) into the equivalent lua.LValue,
// enforcing max_array_size on any slice/array encountered.
func goToLua(L *lua.LState, v any, limits Limits) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, goToLua(L, item, limits))
		}
		return tbl
	case []any:
		n := len(val)
		if limits.MaxArraySize > 0 && n > limits.MaxArraySize {
			n = limits.MaxArraySize
		}
		tbl := L.NewTable()
		for i := 0; i < n; i++ {
			tbl.RawSetInt(i+1, goToLua(L, val[i], limits))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// luaToGo converts a returned lua.LValue back into a plain Go value
// (string, float64, bool, nil, map[string]any, or []any), matching the
// shape encoding/json would have produced for the same data.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return luaTableToGo(val)
	default:
		return nil
	}
}

func luaTableToGo(tbl *lua.LTable) any {
	maxN := tbl.Len()
	if maxN > 0 {
		arr := make([]any, 0, maxN)
		isArray := true
		tbl.ForEach(func(key, value lua.LValue) {
			if _, ok := key.(lua.LNumber); !ok {
				isArray = false
			}
		})
		if isArray {
			for i := 1; i <= maxN; i++ {
				arr = append(arr, luaToGo(tbl.RawGetInt(i)))
			}
			return arr
		}
	}

	out := make(map[string]any)
	tbl.ForEach(func(key, value lua.LValue) {
		out[key.String()] = luaToGo(value)
	})
	return out
}
