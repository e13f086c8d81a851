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

package sched

import "math"

// idleValue and ceilingValue are the sentinel Criterion.Value extremes:
// IDLE is the least urgent possible rank, CEILING is more urgent than any
// value a real thread can hold.
const (
	idleValue    = math.MaxInt64
	ceilingValue = math.MinInt64 + 1
)

// FCFS is a static first-come-first-served policy: priority is the plain
// int supplied at thread creation, Notify is a no-op, and no preemption
// timer applies. Equivalent to EPOS's simplest Criterion.
type FCFS struct{}

func (FCFS) New(priority, home int) Criterion {
	return Criterion{Value: int64(priority), Home: home}
}
func (FCFS) Idle(home int) Criterion { return Criterion{Value: idleValue, Home: home} }
func (FCFS) Ceiling() Criterion { return Criterion{Value: ceilingValue} }
func (FCFS) Notify(c Criterion, _ Event) Criterion { return c }
func (FCFS) Timed() bool { return false }
func (FCFS) Dynamic() bool { return false }
func (FCFS) Queues() int { return 1 }
func (FCFS) Name() string { return "FCFS" }

// RoundRobin is a dynamic, timed policy: all threads created at the same
// priority level share a Value, and every CHARGE/AWARD cycle bumps Gen so
// the ready-queue (ordered by (Value, Gen)) rotates the just-run thread to
// the back of its priority band. This gives the dispatcher's dynamic
// re-rank path (spec.md §4.6 step 3) something real to do.
type RoundRobin struct {
	gen uint64
}

func (r *RoundRobin) New(priority, home int) Criterion {
	r.gen++
	return Criterion{Value: int64(priority), Gen: r.gen, Home: home}
}
func (r *RoundRobin) Idle(home int) Criterion { return Criterion{Value: idleValue, Home: home} }
func (RoundRobin) Ceiling() Criterion         { return Criterion{Value: ceilingValue} }

func (r *RoundRobin) Notify(c Criterion, ev Event) Criterion {
	switch ev {
	case EventCharge, EventAward:
		r.gen++
		c.Gen = r.gen
	}
	return c
}
func (RoundRobin) Timed() bool   { return true }
func (RoundRobin) Dynamic() bool { return true }
func (RoundRobin) Queues() int   { return 1 }
func (RoundRobin) Name() string  { return "RoundRobin" }

// NewRoundRobin returns a fresh RoundRobin policy instance.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }
