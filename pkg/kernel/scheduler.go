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

package kernel

import (
	"github.com/arthurwinck/epos-kernel/pkg/cpu"
	"github.com/arthurwinck/epos-kernel/pkg/kernel/rq"
	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

// Scheduler is the ready-queue half of spec.md §2: either one rq.Queue per
// CPU (partitioned distribution) or a single queue shared by every CPU
// (global distribution), plus a record of which thread is currently
// RUNNING on each CPU. Every method assumes the kernel's global lock is
// already held (spec.md §5 invariant 7).
type Scheduler struct {
	partitioned bool
	perCPU      []*rq.Queue
	global      *rq.Queue
	chosen      []*Thread
}

// newScheduler builds a Scheduler for the given number of cores and
// distribution mode.
func newScheduler(cores int, partitioned bool) *Scheduler {
	s := &Scheduler{
		partitioned: partitioned,
		chosen:      make([]*Thread, cores),
	}
	if partitioned {
		s.perCPU = make([]*rq.Queue, cores)
		for i := range s.perCPU {
			s.perCPU[i] = rq.New()
		}
	} else {
		s.global = rq.New()
	}
	return s
}

func (s *Scheduler) queueFor(home int) *rq.Queue {
	if s.partitioned {
		return s.perCPU[home]
	}
	return s.global
}

// Insert attaches t to the ready queue appropriate for its home CPU.
func (s *Scheduler) Insert(t *Thread) { s.queueFor(t.home).Insert(t) }

// Remove detaches t from whichever ready queue it is enqueued in, if any.
func (s *Scheduler) Remove(t *Thread) { s.queueFor(t.home).Remove(t) }

// Suspend is Remove under the name spec.md §4.3 uses at the call site.
func (s *Scheduler) Suspend(t *Thread) { s.Remove(t) }

// Resume is Insert under the name spec.md §4.3/§4.4 use at the call site.
func (s *Scheduler) Resume(t *Thread) { s.Insert(t) }

// Reinsert re-ranks t in place after its Criterion has changed.
func (s *Scheduler) Reinsert(t *Thread) { s.queueFor(t.home).Reinsert(t) }

// Chosen returns the thread currently recorded as RUNNING on c, or nil.
func (s *Scheduler) Chosen(c cpu.CoreID) *Thread { return s.chosen[c] }

// Choose pops the most urgent ready thread for c's queue and records it as
// chosen for c (spec.md §4.6 step 2, dispatcher()'s "pick next").
func (s *Scheduler) Choose(c cpu.CoreID) *Thread {
	q := s.readyQueueFor(c)
	it := q.Min()
	if it == nil {
		return nil
	}
	t := it.(*Thread)
	q.Remove(t)
	s.chosen[c] = t
	return t
}

// ChooseThread validates that target is actually ready-eligible on c (it
// must be enqueued in c's ready queue) before detaching and choosing it;
// used by Pass, which may name an ineligible target (spec.md §4.3 pass()).
func (s *Scheduler) ChooseThread(c cpu.CoreID, target *Thread) *Thread {
	q := s.readyQueueFor(c)
	if !q.Contains(target) {
		return nil
	}
	q.Remove(target)
	s.chosen[c] = target
	return target
}

// ChooseAnother behaves like Choose but never returns self, which stays in
// the ready queue if it is there (Yield inserts it before calling); it
// returns nil when no other thread is ready, in which case Yield keeps
// running self (spec.md §4.3 yield()).
func (s *Scheduler) ChooseAnother(c cpu.CoreID, self *Thread) *Thread {
	q := s.readyQueueFor(c)
	drained := q.DrainFIFO()
	var picked *Thread
	for _, it := range drained {
		t := it.(*Thread)
		if t == self {
			q.Insert(t)
			continue
		}
		if picked == nil {
			picked = t
		} else {
			q.Insert(t)
		}
	}
	if picked != nil {
		s.chosen[c] = picked
	}
	return picked
}

func (s *Scheduler) readyQueueFor(c cpu.CoreID) *rq.Queue {
	if s.partitioned {
		return s.perCPU[c]
	}
	return s.global
}

// RerankAll re-ranks every ready thread against policy, used by the
// dispatcher's dynamic-policy step (spec.md §4.6 step 3, "policies that
// evolve every thread's rank on every dispatch", e.g. round robin aging).
func (s *Scheduler) RerankAll(policy sched.Policy) {
	if s.partitioned {
		for _, q := range s.perCPU {
			rerankQueue(q, policy)
		}
		return
	}
	rerankQueue(s.global, policy)
}

func rerankQueue(q *rq.Queue, policy sched.Policy) {
	items := q.DrainFIFO()
	for _, it := range items {
		t := it.(*Thread)
		t.criterion = policy.Notify(t.criterion, sched.EventCharge)
		q.Insert(t)
	}
}
