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
	"encoding/binary"
	"fmt"

	"github.com/arthurwinck/epos-kernel/internal/klog"
	"github.com/arthurwinck/epos-kernel/pkg/cpu"
	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

// State is a thread's lifecycle state (spec.md §3).
type State int

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateWaiting
	StateFinishing
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateSuspended:
		return "SUSPENDED"
	case StateWaiting:
		return "WAITING"
	case StateFinishing:
		return "FINISHING"
	default:
		return "UNKNOWN"
	}
}

// Entry is the function a thread runs. Its return value becomes the
// thread's exit status if it returns normally instead of calling Exit.
type Entry func(t *Thread) int

// Thread is the principal entity of spec.md §3. Every field below is
// mutated only while the owning Kernel's global lock is held (spec.md §5
// invariant 7); Thread itself holds no lock of its own.
type Thread struct {
	k    *Kernel
	id   uint64
	name string

	state     State
	criterion sched.Criterion
	natural   []sched.Criterion // priority-inheritance save stack; presence is len>0, no in-band sentinel (spec.md §9 open question)

	waiting *WaitQueue // non-nil iff state == StateWaiting
	joining *Thread    // thread blocked in Join() on this one, if any

	ctx   *cpu.Context
	stack []byte

	entry Entry
	home  int        // home CPU index given at creation; selects the ready queue only under partitioned distribution
	cpu   cpu.CoreID // CPU this thread is running/was last dispatched on

	idle bool // true for the one per-CPU idle thread
}

// minStackSize is large enough to hold the exit-status word (spec.md §3,
// "SUPPLEMENTED FEATURES" in SPEC_FULL.md).
const minStackSize = 64

// Rank implements rq.Item so a Thread can be enqueued directly in a ready
// queue or wait queue.
func (t *Thread) Rank() sched.Criterion { return t.criterion }

// ID returns the thread's kernel-assigned identifier.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the thread's diagnostic name.
func (t *Thread) Name() string { return t.name }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State {
	t.k.lock.Lock()
	defer t.k.lock.Unlock()
	return t.state
}

// Criterion returns the thread's current scheduling rank.
func (t *Thread) Criterion() sched.Criterion {
	t.k.lock.Lock()
	defer t.k.lock.Unlock()
	return t.criterion
}

// CPU returns the CPU this thread is currently running on, or was last
// dispatched to.
func (t *Thread) CPU() cpu.CoreID {
	t.k.lock.Lock()
	defer t.k.lock.Unlock()
	return t.cpu
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread{%d %q state=%s rank=%s}", t.id, t.name, t.state, t.criterion)
}

func (t *Thread) writeExitStatus(status int) {
	binary.LittleEndian.PutUint64(t.stack[:8], uint64(int64(status)))
}

func (t *Thread) readExitStatus() int {
	return int(int64(binary.LittleEndian.Uint64(t.stack[:8])))
}

// IntEnable enables interrupt delivery on the CPU this thread is
// currently running on (spec.md §6, consumed by the idle loop).
func (t *Thread) IntEnable() { t.k.cpus[t.cpu].IntEnable() }

// IntDisable disables interrupt delivery on the CPU this thread is
// currently running on.
func (t *Thread) IntDisable() { t.k.cpus[t.cpu].IntDisable() }

// Tick is a cooperative preemption checkpoint: a long-running Entry may
// call it periodically so that a pending reschedule signal (from a timer
// quantum expiry or an IPI targeting a busy CPU) actually takes effect.
// See DESIGN.md for why Go cannot force this the way a hardware timer
// interrupt would.
func (t *Thread) Tick() {
	if t.k.ic.Consume(t.cpu) {
		t.Yield()
	}
}

// Pass cooperatively hands the CPU to target if target is eligible
// (spec.md §4.3 pass(t)). If target is not READY, Pass logs and returns
// without switching (spec.md §7 non-actionable request).
func (caller *Thread) Pass(target *Thread) {
	k := caller.k
	k.lock.Lock()
	defer k.lock.Unlock()
	chosen := k.sched.ChooseThread(caller.cpu, target)
	if chosen == nil {
		klog.Warningf("kernel: pass(%s): target not eligible on cpu %d", target, caller.cpu)
		return
	}
	// caller is about to become READY, not RUNNING; make it visible to the
	// scheduler again so a later choose() can pick it up.
	k.sched.Insert(caller)
	// charge=false: a cooperative hand-off does not restart the preemption
	// quantum, matching EPOS's pass().
	k.dispatch(caller, chosen, false)
}

// Suspend detaches the calling thread from the scheduler and blocks it
// until some other thread calls Resume on it (spec.md §4.3 suspend()).
func (t *Thread) Suspend() {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	t.state = StateSuspended
	k.sched.Suspend(t)
	next := k.sched.Choose(t.cpu)
	if next == nil {
		next = k.idleFor(t.cpu)
	}
	k.dispatch(t, next, true)
}

// Resume moves a SUSPENDED thread back to READY and re-attaches it to the
// scheduler (spec.md §4.3 resume()). Resuming a thread that is not
// SUSPENDED is a non-actionable request: logged and ignored.
func (t *Thread) Resume() {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	if t.state != StateSuspended {
		klog.Warningf("kernel: resume(%s): not suspended (state=%s)", t, t.state)
		return
	}
	t.state = StateReady
	k.sched.Resume(t)
	k.requestReschedule(t.rescheduleTarget())
}

// Yield picks a different ready thread and dispatches to it, or keeps
// running if no other thread is ready (spec.md §4.3 yield()).
func (t *Thread) Yield() {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	// t is about to become READY; make it visible to the scheduler so
	// choose_another can consider (and skip) it, then pick up again later.
	k.sched.Insert(t)
	next := k.sched.ChooseAnother(t.cpu, t)
	if next == nil {
		// Nothing else runnable: stay RUNNING. Undo the Insert above since
		// a RUNNING thread must not also sit in the ready queue.
		k.sched.Remove(t)
		next = t
	}
	k.dispatch(t, next, true)
}

// Exit removes the calling thread from the scheduler, records status,
// marks it FINISHING, wakes any joiner, and dispatches to the next ready
// thread (spec.md §4.3 exit(status)). Exit never returns.
func (t *Thread) Exit(status int) {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	k.exitLocked(t, status)
	next := k.sched.Choose(t.cpu)
	if next == nil {
		next = k.idleFor(t.cpu)
	}
	k.dispatch(t, next, true)
	// Unreachable: a FINISHING thread is never dispatched again.
	panic("kernel: exited thread resumed")
}

func (k *Kernel) exitLocked(t *Thread, status int) {
	if t.state == StateFinishing {
		panic("kernel: double exit")
	}
	k.sched.Remove(t)
	t.writeExitStatus(status)
	t.state = StateFinishing
	k.threadCount--
	if k.policy.Dynamic() {
		t.criterion = k.policy.Notify(t.criterion, sched.EventFinish)
	}
	if j := t.joining; j != nil {
		t.joining = nil
		j.state = StateReady
		k.sched.Resume(j)
		k.requestReschedule(j.rescheduleTarget())
	}
}

// SetPriority installs a new base Criterion for the thread (spec.md §6
// Thread::priority(new_priority)).
func (t *Thread) SetPriority(priority int) {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	t.criterion = k.policy.New(priority, t.home)
	k.rerankWherever(t)
}

// Join blocks the calling thread until target reaches FINISHING, then
// returns the integer status target passed to Exit (spec.md §4.3 join(),
// §8 property 4). Join panics if caller==target or target already has a
// joiner (spec.md §7 programming-contract violations).
func (caller *Thread) Join(target *Thread) int {
	k := caller.k
	k.lock.Lock()
	if caller == target {
		k.lock.Unlock()
		panic("kernel: thread cannot join itself")
	}
	if target.state == StateFinishing {
		status := target.readExitStatus()
		k.lock.Unlock()
		return status
	}
	if target.joining != nil {
		k.lock.Unlock()
		panic("kernel: target already has a joiner")
	}
	target.joining = caller
	caller.state = StateSuspended
	k.sched.Suspend(caller)
	next := k.sched.Choose(caller.cpu)
	if next == nil {
		next = k.idleFor(caller.cpu)
	}
	k.dispatch(caller, next, true)
	// Resumed: target has finished (Exit woke us via k.exitLocked). dispatch
	// re-acquires k.lock before returning, so it is already held here.
	status := target.readExitStatus()
	k.lock.Unlock()
	return status
}

// Sleep detaches the calling thread from the scheduler, marks it WAITING
// on q, and dispatches (spec.md §4.4 sleep(Q)). The caller must already
// hold the kernel's global lock; Sleep does not lock itself.
func (t *Thread) Sleep(q *WaitQueue) {
	k := t.k
	k.sched.Suspend(t)
	t.state = StateWaiting
	t.waiting = q
	q.q.Insert(t)
	next := k.sched.Choose(t.cpu)
	if next == nil {
		next = k.idleFor(t.cpu)
	}
	k.dispatch(t, next, true)
}

// Wakeup removes q's head, makes it READY, and re-attaches it to the
// scheduler, requesting a reschedule if preemptive (spec.md §4.4
// wakeup(Q)). The caller must already hold the kernel's global lock.
func (t *Thread) Wakeup(q *WaitQueue) {
	if q.Empty() {
		return
	}
	k := t.k
	it := q.q.Min()
	head := it.(*Thread)
	q.q.Remove(head)
	head.waiting = nil
	head.state = StateReady
	k.sched.Resume(head)
	k.requestReschedule(head.rescheduleTarget())
}

// WakeupAll drains q, marking every thread READY and re-inserting each
// into the scheduler without switching between them (spec.md §4.4
// wakeup_all(Q)). The caller must already hold the kernel's global lock.
func (t *Thread) WakeupAll(q *WaitQueue) {
	items := q.q.DrainFIFO()
	if len(items) == 0 {
		return
	}
	k := t.k
	targets := make(map[cpu.CoreID]struct{}, len(items))
	for _, it := range items {
		w := it.(*Thread)
		w.waiting = nil
		w.state = StateReady
		k.sched.Resume(w)
		targets[w.rescheduleTarget()] = struct{}{}
	}
	for cpuID := range targets {
		k.requestReschedule(cpuID)
	}
}

// Reschedule re-evaluates who should run on this thread's own CPU right
// now and dispatches away if someone more urgent is ready (spec.md §4.6
// reschedule(), called by the idle loop after waking from a halt).
func (t *Thread) Reschedule() {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	k.localReschedule(t.cpu)
}

// rescheduleTarget returns the CPU a reschedule should be aimed at for
// this thread: its fixed home CPU under partitioned distribution, or a
// round-robin pick under global distribution (spec.md §4.3/§4.4).
func (t *Thread) rescheduleTarget() cpu.CoreID {
	if t.k.partitioned {
		return cpu.CoreID(t.home)
	}
	return t.k.pickGlobalTarget()
}
