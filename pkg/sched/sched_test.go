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

import "testing"

func TestCriterionLess(t *testing.T) {
	a := Criterion{Value: 1, Gen: 5}
	b := Criterion{Value: 2, Gen: 0}
	if !a.Less(b) {
		t.Fatalf("expected %v to be more urgent than %v", a, b)
	}
	if b.Less(a) {
		t.Fatalf("expected %v not to be more urgent than %v", b, a)
	}
}

func TestCriterionLessTiebreakOnGen(t *testing.T) {
	a := Criterion{Value: 3, Gen: 1}
	b := Criterion{Value: 3, Gen: 2}
	if !a.Less(b) {
		t.Fatalf("expected lower Gen to win a Value tie")
	}
}

func TestFCFSIsStatic(t *testing.T) {
	var p FCFS
	c := p.New(4, 0)
	if c.Value != 4 {
		t.Fatalf("New(4, 0).Value = %d, want 4", c.Value)
	}
	if got := p.Notify(c, EventCharge); !got.Equal(c) {
		t.Fatalf("FCFS.Notify must be a no-op, got %v want %v", got, c)
	}
	if p.Dynamic() || p.Timed() {
		t.Fatalf("FCFS must be static and untimed")
	}
}

func TestRoundRobinBumpsGenOnCharge(t *testing.T) {
	p := NewRoundRobin()
	c := p.New(1, 0)
	next := p.Notify(c, EventCharge)
	if next.Gen == c.Gen {
		t.Fatalf("RoundRobin.Notify(EventCharge) did not advance Gen")
	}
	if !p.Dynamic() || !p.Timed() {
		t.Fatalf("RoundRobin must be dynamic and timed")
	}
}

func TestIdleIsLeastUrgent(t *testing.T) {
	var p FCFS
	idle := p.New(-1000, 0) // an absurdly low (urgent-looking) priority value
	if !idle.Less(p.Idle(0)) {
		t.Fatalf("Idle() must be less urgent than any ordinary thread's rank")
	}
}
