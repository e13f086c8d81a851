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

// Package sched is the pluggable scheduling-policy collaborator (the
// "Criterion" of spec.md §2.2): a totally-ordered priority value per
// thread, plus the event channel dynamic policies use to recompute rank.
// Its internals are a black box to the kernel; the kernel only ever calls
// through the Policy interface.
package sched

import "fmt"

// Event is delivered to a Policy when something happens to a thread that a
// dynamic policy may want to react to (spec.md §2.2).
type Event int

const (
	EventCreate Event = iota
	EventEnter
	EventLeave
	EventCharge
	EventAward
	EventFinish
)

func (e Event) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventEnter:
		return "ENTER"
	case EventLeave:
		return "LEAVE"
	case EventCharge:
		return "CHARGE"
	case EventAward:
		return "AWARD"
	case EventFinish:
		return "FINISH"
	default:
		return "UNKNOWN"
	}
}

// Criterion is the scheduling rank carried by every thread (spec.md §3,
// §6). Lower Value is more urgent; "greater" in the spec's own wording
// ("higher numeric = lower effective priority") means less urgent. Gen is
// a tiebreaker used by dynamic policies (e.g. round-robin rotation) and by
// the ready-queue to keep FIFO order among equal-Value entries. Home is
// the partitioned-mode ready-queue index this Criterion targets; it is
// ignored entirely in global distribution.
type Criterion struct {
	Value int64
	Gen   uint64
	Home  int
}

// Less reports whether c is strictly more urgent than other.
func (c Criterion) Less(other Criterion) bool {
	if c.Value != other.Value {
		return c.Value < other.Value
	}
	return c.Gen < other.Gen
}

// Equal reports value equality (used by the priority-inheritance round
// trip property: prioritize then deprioritize must restore the exact
// value).
func (c Criterion) Equal(other Criterion) bool {
	return c.Value == other.Value && c.Gen == other.Gen && c.Home == other.Home
}

func (c Criterion) String() string {
	return fmt.Sprintf("Criterion{Value:%d Gen:%d Home:%d}", c.Value, c.Gen, c.Home)
}

// Policy creates and mutates Criterion values for one scheduling
// discipline (spec.md §2.2, §6). FCFS, Rate-Monotonic, EDF etc. are all
// Policy implementations; the kernel never inspects one beyond this
// interface.
type Policy interface {
	// New returns the initial Criterion for a thread created with the
	// given niceness/priority input and partitioned-mode home queue.
	New(priority int, home int) Criterion

	// Idle returns the sentinel Criterion assigned to a per-CPU idle
	// thread targeting the given home queue.
	Idle(home int) Criterion

	// Ceiling returns the sentinel Criterion used by the CEILING
	// priority-inversion protocol.
	Ceiling() Criterion

	// Notify delivers a scheduling event for c and returns the
	// (possibly unchanged) updated Criterion. Static policies return c
	// unmodified for every event.
	Notify(c Criterion, ev Event) Criterion

	// Timed reports whether a preemption timer quantum applies under
	// this policy.
	Timed() bool

	// Dynamic reports whether Notify can change rank; dispatch must
	// re-rank the whole scheduler on every switch when true.
	Dynamic() bool

	// Queues is the number of per-CPU ready-queue buckets this policy
	// wants under partitioned distribution (<=4 per spec.md §6).
	Queues() int

	// Name identifies the policy for diagnostics.
	Name() string
}
