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

// Prioritize implements the priority-inheritance/ceiling protocol's boost
// step (spec.md §4.5): for every thread currently enqueued in q whose rank
// is less urgent than waiter's, push its current Criterion onto its
// natural_priority stack and assign it the waiter's rank (INHERIT) or the
// policy's ceiling sentinel (CEILING), then re-rank it wherever it
// currently lives. The caller must already hold the kernel's global lock.
func (waiter *Thread) Prioritize(q *WaitQueue) {
	k := waiter.k
	if k.protocol == ProtocolNone {
		return
	}
	members := q.q.DrainFIFO()
	for _, it := range members {
		o := it.(*Thread)
		if waiter.criterion.Less(o.criterion) {
			o.natural = append(o.natural, o.criterion)
			if k.protocol == ProtocolCeiling {
				o.criterion = k.policy.Ceiling()
			} else {
				o.criterion = waiter.criterion
			}
			k.rerankWherever(o)
		}
		if !q.q.Contains(o) {
			q.q.Insert(o)
		}
	}
	k.requestReschedule(waiter.rescheduleTarget())
}

// Deprioritize is the inverse of Prioritize: pop the saved Criterion (if
// any — an empty stack means nothing was saved, spec.md §9 open question)
// and re-rank identically. The caller must already hold the kernel's
// global lock.
func (waiter *Thread) Deprioritize(q *WaitQueue) {
	k := waiter.k
	if k.protocol == ProtocolNone {
		return
	}
	members := q.q.DrainFIFO()
	for _, it := range members {
		o := it.(*Thread)
		if n := len(o.natural); n > 0 {
			o.criterion = o.natural[n-1]
			o.natural = o.natural[:n-1]
			k.rerankWherever(o)
		}
		if !q.q.Contains(o) {
			q.q.Insert(o)
		}
	}
	k.requestReschedule(waiter.rescheduleTarget())
}

// rerankWherever re-reads t's (now possibly mutated) Criterion and
// reinserts t into whatever structure currently holds it: the scheduler's
// ready queue if READY, its own wait queue if WAITING, or nowhere if
// RUNNING/SUSPENDED/FINISHING — assignment alone is enough there, since
// it is not enqueued anywhere that needs reordering (spec.md §4.5).
func (k *Kernel) rerankWherever(t *Thread) {
	switch t.state {
	case StateReady:
		k.sched.Reinsert(t)
	case StateWaiting:
		if t.waiting != nil {
			t.waiting.q.Reinsert(t)
		}
	}
}
