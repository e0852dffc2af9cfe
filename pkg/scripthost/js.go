/*
 * vodbridge is a project to aggregate heterogeneous VOD sources behind a single local API.
 * Copyright (C) 2026  Vodbridge Contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package scripthost

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// cancelGrace is how long a cancelled call may keep running before the
// runtime is interrupted.
const cancelGrace = 200 * time.Millisecond

// interruptSentinel is the value passed to goja.Interrupt so interrupted
// runs are distinguishable from script exceptions.
const interruptSentinel = "vodbridge:deadline"

type jsHost struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	bridges *Bridges
	dead    bool
}

func newJSHost(bridges *Bridges) *jsHost {
	return &jsHost{bridges: bridges}
}

// jsPreludeJS provides the minimal browser-ish globals site scripts expect.
const jsPreludeJS = `
var globalThis = this;
if (typeof window === 'undefined') { var window = this; }
if (typeof self === 'undefined') { var self = this; }
if (typeof console === 'undefined') {
	var console = { log: function(m){ __log(String(m)); }, error: function(m){ __log(String(m)); } };
}
if (typeof log === 'undefined') { var log = function(m){ __log(String(m)); }; }
`

func (h *jsHost) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := h.bridges.install(vm); err != nil {
		return types.WrapError(types.KindScript, err, "install bridges")
	}
	if _, err := vm.RunString(jsPreludeJS); err != nil {
		return types.WrapError(types.KindScript, err, "prelude")
	}

	h.vm = vm
	h.dead = false
	return nil
}

func (h *jsHost) Eval(source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.vm == nil {
		return types.NewError(types.KindScript, "host not initialized")
	}
	if _, err := h.vm.RunString(source); err != nil {
		return types.WrapError(types.KindScript, err, "eval")
	}
	return nil
}

func (h *jsHost) HasFn(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.vm == nil {
		return false
	}
	v := h.vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}

func (h *jsHost) Call(ctx context.Context, name string, args ...interface{}) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.vm == nil || h.dead {
		return "", types.NewError(types.KindScript, "host not usable")
	}

	fnVal := h.vm.Get(name)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return "", types.NewError(types.KindScript, "no such function %q", name)
	}

	// Arm the hard deadline plus cooperative cancellation with grace.
	callCtx, cancel := context.WithTimeout(ctx, DefaultCallDeadline)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-callCtx.Done():
			select {
			case <-done:
				return
			default:
			}
			if ctx.Err() != nil {
				// Caller cancelled: give the script a short grace window.
				time.Sleep(cancelGrace)
				select {
				case <-done:
					return
				default:
				}
			}
			h.vm.Interrupt(interruptSentinel)
		case <-done:
		}
	}()

	h.vm.ClearInterrupt()
	gojaArgs := make([]goja.Value, 0, len(args))
	for _, a := range args {
		gojaArgs = append(gojaArgs, h.vm.ToValue(a))
	}

	result, err := fn(goja.Undefined(), gojaArgs...)
	close(done)
	h.vm.ClearInterrupt()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if ctx.Err() != nil {
				return "", types.WrapError(types.KindCancelled, ctx.Err(), "script call "+name)
			}
			return "", types.NewError(types.KindScriptTO, "script call %q exceeded %s", name, DefaultCallDeadline)
		}
		return "", types.WrapError(types.KindScript, err, "call "+name)
	}

	return h.stringify(result)
}

// stringify renders a call result: script strings pass through, everything
// else goes through the runtime's own JSON encoder so the output matches
// what the script author sees.
func (h *jsHost) stringify(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	if s, ok := v.Export().(string); ok {
		return s, nil
	}
	jsonObj := h.vm.Get("JSON").ToObject(h.vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return v.String(), nil
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return "", types.WrapError(types.KindScript, err, "stringify result")
	}
	return out.String(), nil
}

func (h *jsHost) Dead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}

func (h *jsHost) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.vm != nil {
		h.vm.Interrupt(interruptSentinel)
		h.vm = nil
	}
	h.dead = true
	utils.DebugLog("JS host destroyed")
}
