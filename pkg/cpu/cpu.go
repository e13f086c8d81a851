// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cpu stands in for the CPU Abstraction external collaborator
// described in spec.md §6: context save/restore, halt, interrupt
// enable/disable, and core identification. A real implementation of this
// package would be machine code; this one gives the kernel package
// something to link against while keeping the same call surface.
//
// Go provides no primitive to save one goroutine's stack and resume a
// different one on the same OS thread, so SwitchContext is realized with a
// parking channel instead of a register file. See DESIGN.md for the full
// rationale.
package cpu

import "sync/atomic"

// CoreID identifies one simulated CPU core.
type CoreID int32

// BSP is the boot strap processor's core ID.
const BSP CoreID = 0

// Context is an opaque, restorable snapshot of a thread's execution point.
type Context struct {
	resume chan struct{}
}

// NewContext allocates a Context for a thread that has not yet run.
func NewContext() *Context {
	return &Context{resume: make(chan struct{}, 1)}
}

// SwitchContext saves the calling goroutine's position by parking it on
// prev and restores next by waking it, mirroring
// switch_context(&prev_ctx_slot, next_ctx) (spec.md §6). If prev is nil the
// caller is not expecting to resume here again (e.g. an AP bringing up its
// first thread) and SwitchContext returns as soon as next has been woken.
//
// Callers are expected to have already released the global kernel lock
// before calling SwitchContext, and to reacquire it once it returns.
func SwitchContext(prev, next *Context) {
	next.resume <- struct{}{}
	if prev != nil {
		<-prev.resume
	}
}

// Park blocks the calling goroutine until this Context is woken by
// SwitchContext, the way a freshly created thread waits for its first
// dispatch before running any of its entry function.
func (c *Context) Park() { <-c.resume }

// Local is a handle to one simulated CPU core, held by whichever goroutine
// is currently driving it. EPOS's CPU::id()/int_enable()/int_disable()
// read and mutate hardware state implicit to "the calling CPU"; Go has no
// such ambient register, so callers carry this handle explicitly instead.
type Local struct {
	id      CoreID
	enabled atomic.Bool
}

// NewLocal returns a handle for core id with interrupts initially enabled.
func NewLocal(id CoreID) *Local {
	l := &Local{id: id}
	l.enabled.Store(true)
	return l
}

// ID returns this core's identity.
func (l *Local) ID() CoreID { return l.id }

// IntEnable enables interrupt delivery on this core.
func (l *Local) IntEnable() { l.enabled.Store(true) }

// IntDisable disables interrupt delivery on this core.
func (l *Local) IntDisable() { l.enabled.Store(false) }

// IntEnabled reports whether interrupts are currently enabled on this core.
func (l *Local) IntEnabled() bool { return l.enabled.Load() }

// Halt blocks the calling goroutine until wake is signaled, simulating a
// halt instruction that waits for the next interrupt.
func (l *Local) Halt(wake <-chan struct{}) {
	<-wake
}
