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

// Package ic stands in for the interrupt controller external collaborator
// (spec.md §6): IPI delivery and timer-to-vector routing. Real hardware
// delivers an IPI by forcibly diverting the target core's instruction
// stream to a handler; a Go goroutine cannot be forced off whatever it is
// currently executing, so delivery here is a pending flag plus a wake
// channel for cores that are halted. See DESIGN.md for the consequences.
package ic

import (
	"sync"

	"github.com/arthurwinck/epos-kernel/pkg/cpu"
)

// Controller multiplexes reschedule/timer signals to simulated cores.
type Controller struct {
	mu      sync.Mutex
	pending map[cpu.CoreID]bool
	wake    map[cpu.CoreID]chan struct{}
}

// NewController returns an empty controller.
func NewController() *Controller {
	return &Controller{
		pending: make(map[cpu.CoreID]bool),
		wake:    make(map[cpu.CoreID]chan struct{}),
	}
}

func (c *Controller) wakeChanLocked(id cpu.CoreID) chan struct{} {
	ch, ok := c.wake[id]
	if !ok {
		ch = make(chan struct{}, 1)
		c.wake[id] = ch
	}
	return ch
}

// WakeChan returns the channel a halted core on id should block on.
func (c *Controller) WakeChan(id cpu.CoreID) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeChanLocked(id)
}

// Signal delivers an IPI (or a timer tick) to id: it marks a reschedule
// pending for that core and, if the core is parked in Halt, wakes it.
func (c *Controller) Signal(id cpu.CoreID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = true
	ch := c.wakeChanLocked(id)
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Consume reports whether a reschedule is pending for id and clears the
// flag. Cooperative checkpoints (Thread.Tick, the idle loop) call this to
// notice signals delivered while they were busy running.
func (c *Controller) Consume(id cpu.CoreID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.pending[id]
	c.pending[id] = false
	return v
}
