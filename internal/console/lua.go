//go:build !noconsolelua

package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

func init() {
	Register("lua", func() (Backend, error) {
		L := lua.NewState(lua.Options{SkipOpenLibs: true})
		L.Close()
		return luaBackend{}, nil
	})
}

// luaBackend is a Lua REPL with the unit exposed as the global self.
// Expressions are echoed, statements are executed.
type luaBackend struct{}

func (luaBackend) Attach(ctx context.Context, s Session) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	act := actions{ctx: ctx, target: s.Target}
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, luaString(L.Get(i)))
		}
		fmt.Fprintln(s.Out, strings.Join(parts, "\t"))
		return 0
	}))

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := setSelf(L, act); err != nil {
			fmt.Fprintf(s.Out, "error: %v\n", err)
		}

		line, err := s.Lines.ReadLine("lua> ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.Out)
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit", "exit()":
			return nil
		}
		if err := evalLua(L, line, s.Out); err != nil {
			fmt.Fprintf(s.Out, "error: %v\n", err)
		}
	}
}

// evalLua runs line as an expression if it parses as one, else as a chunk,
// and prints what it returns.
func evalLua(L *lua.LState, line string, out io.Writer) error {
	fn, err := L.LoadString("return " + line)
	if err != nil {
		if fn, err = L.LoadString(line); err != nil {
			return err
		}
	}
	top := L.GetTop()
	defer L.SetTop(top)

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return err
	}
	for i := top + 1; i <= L.GetTop(); i++ {
		fmt.Fprintln(out, luaString(L.Get(i)))
	}
	return nil
}

func setSelf(L *lua.LState, act actions) error {
	snap, err := act.self()
	if err != nil {
		return err
	}
	self, ok := toLua(L, snap).(*lua.LTable)
	if !ok {
		self = L.NewTable()
	}

	L.SetField(self, "process", L.NewFunction(func(L *lua.LState) int {
		if err := act.process(); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))
	L.SetField(self, "receive", L.NewFunction(func(L *lua.LState) int {
		msg, err := act.receive()
		if err != nil {
			L.RaiseError("%v", err)
		}
		L.Push(toLua(L, msg))
		return 1
	}))
	L.SetField(self, "ack", L.NewFunction(func(L *lua.LState) int {
		if err := act.ack(); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))
	// send accepts a JSON string or a table and works as self.send(x)
	// and self:send(x).
	L.SetField(self, "send", L.NewFunction(func(L *lua.LState) int {
		var payload []byte
		switch v := L.Get(L.GetTop()).(type) {
		case lua.LString:
			payload = []byte(v)
		case *lua.LTable:
			data, err := json.Marshal(fromLua(v))
			if err != nil {
				L.RaiseError("%v", err)
			}
			payload = data
		default:
			L.ArgError(1, "message table or JSON string expected")
		}
		if err := act.send(payload); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))
	L.SetGlobal("self", self)
	return nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

func fromLua(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := v.Len(); n > 0 {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				arr[i-1] = fromLua(v.RawGetInt(i))
			}
			return arr
		}
		m := make(map[string]any)
		v.ForEach(func(k, item lua.LValue) {
			if _, isFn := item.(*lua.LFunction); isFn {
				return
			}
			m[k.String()] = fromLua(item)
		})
		return m
	default:
		return nil
	}
}

func luaString(lv lua.LValue) string {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return lv.String()
	}
	data, err := json.Marshal(fromLua(t))
	if err != nil {
		return t.String()
	}
	return string(data)
}
