// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package simulator

import (
	"context"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/restart"
)

// Hook names a Lua sensor may define.
const (
	hookPresent      = "hardware_present"
	hookEnrolled     = "enrolled"
	hookAuthenticate = "authenticate"
)

// MaxLuaAttempts bounds how often authenticate(attempt) is called per
// authenticate call.
const MaxLuaAttempts = 64

// luaCallTimeout bounds a single hook invocation.
const luaCallTimeout = time.Second

// sandbox lists the libraries opened in sensor states. os, io, debug and
// package stay closed.
var sandbox = []struct {
	name string
	fn   lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

var blockedBase = []string{"dofile", "loadfile", "loadstring", "load", "require"}

// newState creates a sandboxed state with source loaded.
func newState(source string) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range sandbox {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.Wrapf(err, "open library %s", lib.name)
		}
	}
	for _, fn := range blockedBase {
		L.SetGlobal(fn, lua.LNil)
	}
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, oops.Code(biometric.CodeInvalidProfile).Wrapf(err, "load sensor script")
	}
	return L, nil
}

// call invokes the global fn with args under a timeout derived from ctx. A
// missing function yields (nil, false, nil).
func call(ctx context.Context, L *lua.LState, fn string, args ...lua.LValue) (lua.LValue, bool, error) {
	f, ok := L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return lua.LNil, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, luaCallTimeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()
	if err := L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, true, oops.With("hook", fn).Wrapf(err, "lua hook failed")
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, true, nil
}

// scriptedLua asks a Lua script for each hardware report.
type scriptedLua struct {
	*device
	source string
}

var _ backend.Backend = (*scriptedLua)(nil)

// newScriptedLua compiles source once to fail fast, then evaluates the
// presence and enrollment hooks.
func newScriptedLua(ctx context.Context, dev *device, source string) (*scriptedLua, error) {
	L, err := newState(source)
	if err != nil {
		return nil, err
	}
	defer L.Close()
	if _, ok := L.GetGlobal(hookAuthenticate).(*lua.LFunction); !ok {
		return nil, oops.Code(biometric.CodeInvalidProfile).Errorf("sensor script must define %s(attempt)", hookAuthenticate)
	}
	for hook, target := range map[string]func(bool){
		hookPresent:  dev.present.Store,
		hookEnrolled: dev.enrolled.Store,
	} {
		v, defined, err := call(ctx, L, hook)
		if err != nil {
			return nil, err
		}
		if defined {
			target(lua.LVAsBool(v))
		}
	}
	return &scriptedLua{device: dev, source: source}, nil
}

// Authenticate implements backend.Backend. Every call gets its own state so
// script globals persist across attempts of one call only.
func (s *scriptedLua) Authenticate(token *backend.Token, purpose *biometric.CryptoPurpose, sink backend.Sink, pred restart.Predicate) {
	cb := s.NewCallback(token, sink, pred, s.cbOpts...)
	L, err := newState(s.source)
	if err != nil {
		s.Logger().Error("sensor script failed to load", "error", err)
		cb.Error(backend.CodeHwUnavailable)
		return
	}
	defer L.Close()

	for attempt := 1; attempt <= MaxLuaAttempts; attempt++ {
		if token.Canceled() {
			cb.Error(backend.CodeCanceled)
			return
		}
		ret, _, err := call(token.Context(), L, hookAuthenticate, lua.LNumber(attempt))
		if token.Canceled() {
			cb.Error(backend.CodeCanceled)
			return
		}
		if err != nil {
			s.Logger().Warn("sensor script error", "attempt", attempt, "error", err)
			if cb.Error(backend.CodeUnableToProcess) == backend.Stop {
				return
			}
			continue
		}
		if ret == lua.LNil {
			break
		}
		st, err := decodeLuaStep(ret)
		if err != nil {
			s.Logger().Warn("invalid report from sensor script", "attempt", attempt, "error", err)
			break
		}
		if !pause(token, st.after) {
			cb.Error(backend.CodeCanceled)
			return
		}
		if s.apply(cb, st, purpose) == backend.Stop {
			return
		}
	}
	idle(token, cb)
}

// decodeLuaStep accepts either an event name or a table with the Step
// fields; after is a duration string or milliseconds.
func decodeLuaStep(v lua.LValue) (step, error) {
	switch val := v.(type) {
	case lua.LString:
		return decodeStep(Step{Event: string(val)})
	case *lua.LTable:
		raw := Step{
			Event:   lua.LVAsString(val.RawGetString("event")),
			Code:    lua.LVAsString(val.RawGetString("code")),
			Message: lua.LVAsString(val.RawGetString("message")),
		}
		after := val.RawGetString("after")
		if n, ok := after.(lua.LNumber); ok {
			raw.After = (time.Duration(n) * time.Millisecond).String()
		} else if after != lua.LNil {
			raw.After = lua.LVAsString(after)
		}
		return decodeStep(raw)
	default:
		return step{}, oops.With("type", v.Type().String()).Errorf("unexpected report type")
	}
}
