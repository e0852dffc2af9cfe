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
	"time"

	"github.com/vodbridge/vodbridge/pkg/types"
)

// DefaultCallDeadline bounds every scripted call.
const DefaultCallDeadline = 15 * time.Second

// Host is the embedding surface for a script runtime. A host belongs to
// exactly one spider and serializes its calls internally.
type Host interface {
	// Init prepares the runtime and injects the native bridges.
	Init() error
	// Eval runs source in the runtime's global scope.
	Eval(source string) error
	// HasFn reports whether a global function with that name exists.
	HasFn(name string) bool
	// Call invokes a global function. Results are returned as their JSON
	// encoding (strings pass through verbatim). The call is bounded by
	// DefaultCallDeadline and by ctx; cancellation gets a 200 ms grace
	// before the runtime is interrupted.
	Call(ctx context.Context, name string, args ...interface{}) (string, error)
	// Dead reports whether the runtime is unusable and the owning spider
	// should be recycled.
	Dead() bool
	// Destroy tears the runtime down. Idempotent.
	Destroy()
}

// Kind selects the runtime variant.
type Kind string

const (
	KindJS Kind = "js"
	KindPY Kind = "py"
)

// New constructs a host of the requested kind. The Python runtime is not
// embeddable in this build; requesting it returns a ScriptError so that the
// spider manager can degrade the site instead of failing the operation.
func New(kind Kind, bridges *Bridges) (Host, error) {
	switch kind {
	case KindJS:
		return newJSHost(bridges), nil
	case KindPY:
		return nil, types.NewError(types.KindScript, "python runtime is not embedded in this build")
	default:
		return nil, types.NewError(types.KindScript, "unknown script host kind %q", kind)
	}
}
