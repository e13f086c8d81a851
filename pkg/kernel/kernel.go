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

// Package kernel implements the thread kernel core: thread creation,
// scheduling, context switching, suspend/resume/join/destroy, and the
// priority-inheritance/ceiling protocol, running across one or more
// simulated CPUs (spec.md, all sections).
package kernel

import (
	"fmt"
	"sync"
	"time"

	"github.com/arthurwinck/epos-kernel/pkg/cpu"
	"github.com/arthurwinck/epos-kernel/pkg/ic"
	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

// Config selects a Kernel's scheduling discipline, CPU topology, and
// priority-inversion protocol at construction time (spec.md §6).
type Config struct {
	// Cores is the number of simulated CPUs. Must be >= 1.
	Cores int
	// Partitioned selects per-CPU ready queues; false selects one ready
	// queue shared by every CPU (spec.md §2.3/§6).
	Partitioned bool
	// Preemptive enables timer/IPI-driven reschedule requests. When
	// false, a running thread keeps the CPU until it voluntarily yields,
	// sleeps, suspends, or exits (spec.md §4.6).
	Preemptive bool
	// Protocol selects the priority-inheritance/ceiling discipline
	// applied by Thread.Prioritize/Deprioritize (spec.md §4.5).
	Protocol Protocol
	// Policy is the scheduling discipline. Defaults to sched.FCFS{} when
	// nil.
	Policy sched.Policy
	// Quantum is the preemption timer period for Timed() policies.
	// Defaults to 10ms when zero.
	Quantum time.Duration
	// OnShutdown, if set, is invoked once the last non-idle thread on
	// any CPU has exited and the boot CPU's idle loop decides to power off
	// (spec.md §4.7). The reboot argument is always false; reboot is not
	// modeled.
	OnShutdown func(reboot bool)
}

// Kernel is the thread kernel core of spec.md §1: the lock, the
// scheduler, the per-CPU state, and every thread it has ever created.
type Kernel struct {
	lock sync.Mutex

	policy      sched.Policy
	partitioned bool
	preemptive  bool
	protocol    Protocol
	quantum     time.Duration

	cores int
	sched *Scheduler
	ic    *ic.Controller
	cpus  []*cpu.Local
	idle  []*Thread

	threadCount int
	threads     []*Thread // every thread ever created, for Stats; never pruned
	nextID      uint64
	nextCPU     int32

	booted     bool
	onShutdown func(reboot bool)
	timers     []*time.Timer
	idleCh     chan struct{}
}

// New constructs a Kernel from cfg but does not start it; call Boot to
// bring up the boot thread and, for cores>1, the application processors
// (spec.md §4.8 init()).
func New(cfg Config) *Kernel {
	if cfg.Cores < 1 {
		panic("kernel: Cores must be >= 1")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = sched.FCFS{}
	}
	quantum := cfg.Quantum
	if quantum == 0 {
		quantum = 10 * time.Millisecond
	}
	k := &Kernel{
		policy:      policy,
		partitioned: cfg.Partitioned,
		preemptive:  cfg.Preemptive,
		protocol:    cfg.Protocol,
		quantum:     quantum,
		cores:       cfg.Cores,
		ic:          ic.NewController(),
		cpus:        make([]*cpu.Local, cfg.Cores),
		idle:        make([]*Thread, cfg.Cores),
		onShutdown:  cfg.OnShutdown,
		timers:      make([]*time.Timer, cfg.Cores),
		idleCh:      make(chan struct{}),
	}
	k.sched = newScheduler(cfg.Cores, cfg.Partitioned)
	for i := 0; i < cfg.Cores; i++ {
		k.cpus[i] = cpu.NewLocal(cpu.CoreID(i))
	}
	return k
}

// Boot creates the boot thread from entry and runs it on the calling
// goroutine, which becomes the boot CPU's execution context (spec.md
// §4.8). It also creates one idle thread per CPU and, for cores>1, spawns
// a driver goroutine per application processor. Boot never returns: once
// entry returns, the boot thread exits and the calling goroutine stays
// parked inside that Exit.
func (k *Kernel) Boot(entry Entry, stackSize int, priority int) {
	k.lock.Lock()
	for c := 0; c < k.cores; c++ {
		k.idle[c] = k.newThreadLocked(idleEntry, minStackSize, cpu.CoreID(c), true, k.policy.Idle(c))
		k.spawnGoroutine(k.idle[c])
	}
	boot := k.newThreadLocked(entry, stackSize, cpu.BSP, false, k.policy.New(priority, 0))
	k.sched.Remove(boot)
	boot.state = StateRunning
	k.sched.chosen[cpu.BSP] = boot
	k.booted = true
	for c := 1; c < k.cores; c++ {
		go k.bringUpAP(cpu.CoreID(c))
	}
	k.lock.Unlock()

	// The calling goroutine IS the boot thread's execution context from
	// this point on; unlike every other thread it needs no Park/resume
	// handshake; it is already running.
	status := entry(boot)
	boot.Exit(status)
}

// bringUpAP drives one application processor's very first dispatch: it
// wakes that CPU's idle thread and then returns, handing control of the
// simulated core over to whichever goroutine the idle thread's own run
// loop keeps dispatching into from here on.
func (k *Kernel) bringUpAP(c cpu.CoreID) {
	k.lock.Lock()
	idle := k.idle[c]
	k.sched.chosen[c] = idle
	k.lock.Unlock()
	cpu.SwitchContext(nil, idle.ctx)
}

// spawnGoroutine starts the goroutine that will drive t once it is first
// dispatched (spec.md §4.1 thread creation).
func (k *Kernel) spawnGoroutine(t *Thread) {
	go func() {
		t.ctx.Park()
		status := t.entry(t)
		t.Exit(status)
	}()
}

// NewThread creates a thread in READY state, home-queued on home, and
// returns it (spec.md §4.1 Thread constructor). Unlike Boot's internal
// boot thread, every thread created through NewThread starts on its own
// goroutine, parked until first dispatched.
func (k *Kernel) NewThread(entry Entry, stackSize int, priority int, home cpu.CoreID) *Thread {
	k.lock.Lock()
	t := k.newThreadLocked(entry, stackSize, home, false, k.policy.New(priority, int(home)))
	k.lock.Unlock()
	k.spawnGoroutine(t)
	k.lock.Lock()
	k.requestReschedule(t.rescheduleTarget())
	k.lock.Unlock()
	return t
}

// newThreadLocked is the shared prologue/epilogue for every thread this
// kernel creates, including the boot and idle threads (spec.md §4.1):
// allocate id, stack and context, account for it in threadCount, and
// attach it to the ready queue unless it is the distinguished idle
// thread for its CPU (idle threads are never inserted; the scheduler
// falls back to them explicitly via idleFor).
func (k *Kernel) newThreadLocked(entry Entry, stackSize int, home cpu.CoreID, idle bool, rank sched.Criterion) *Thread {
	if stackSize < minStackSize {
		stackSize = minStackSize
	}
	k.nextID++
	t := &Thread{
		k:         k,
		id:        k.nextID,
		name:      fmt.Sprintf("thread-%d", k.nextID),
		state:     StateReady,
		criterion: rank,
		ctx:       cpu.NewContext(),
		stack:     make([]byte, stackSize),
		entry:     entry,
		home:      int(home),
		cpu:       home,
		idle:      idle,
	}
	k.threadCount++
	k.threads = append(k.threads, t)
	if k.policy.Dynamic() {
		t.criterion = k.policy.Notify(t.criterion, sched.EventCreate)
	}
	if !idle {
		k.sched.Insert(t)
	}
	return t
}

// idleFor returns the idle thread for c, used whenever the scheduler has
// nothing else ready (spec.md §4.6 step 2 fallback).
func (k *Kernel) idleFor(c cpu.CoreID) *Thread {
	return k.idle[c]
}

// Self returns the thread currently RUNNING on c, or nil before Boot has
// run or before c has been given its first thread (spec.md §4.8 running()).
func (k *Kernel) Self(c cpu.CoreID) *Thread {
	k.lock.Lock()
	defer k.lock.Unlock()
	if !k.booted {
		return nil
	}
	return k.sched.Chosen(c)
}

// Destroy forcibly terminates t regardless of its current state (spec.md
// §4.2 destroy()): a RUNNING thread gets Exit(-1)'s bookkeeping (removed
// from the scheduler, status -1, FINISHING, joiner woken) but its
// goroutine is not stopped, and a later Exit from it panics as a double
// exit; any other state is simply detached and marked
// FINISHING, waking t's joiner if one is attached (spec.md §4.2 "If a
// joiner exists, resume it").
func (k *Kernel) Destroy(t *Thread) {
	k.lock.Lock()
	defer k.lock.Unlock()
	if t.state == StateFinishing {
		return
	}
	if t == k.sched.Chosen(t.cpu) {
		k.exitLocked(t, -1)
		return
	}
	switch t.state {
	case StateReady:
		k.sched.Remove(t)
	case StateWaiting:
		if t.waiting != nil {
			t.waiting.q.Remove(t)
			t.waiting = nil
		}
	}
	t.state = StateFinishing
	t.writeExitStatus(-1)
	k.threadCount--
	if j := t.joining; j != nil {
		t.joining = nil
		j.state = StateReady
		k.sched.Resume(j)
		k.requestReschedule(j.rescheduleTarget())
	}
}

// dispatch is the kernel's central state-machine step (spec.md §4.6
// dispatch(prev, next)): optionally charge the preemption timer, notify
// the policy of the switch if it is dynamic, flip prev back to READY,
// mark next RUNNING, and perform the simulated context switch. The
// caller must hold k.lock; dispatch releases it across the switch and
// reacquires it before returning (spec.md §5 invariant 7, §9).
func (k *Kernel) dispatch(prev, next *Thread, charge bool) {
	if next == nil {
		panic("kernel: dispatch to nil thread")
	}
	if charge && k.preemptive && k.policy.Timed() {
		k.restartTimer(next.cpu)
	}
	if prev == next {
		return
	}
	if k.policy.Dynamic() {
		if prev != nil {
			prev.criterion = k.policy.Notify(prev.criterion, sched.EventCharge)
			prev.criterion = k.policy.Notify(prev.criterion, sched.EventLeave)
		}
		k.sched.RerankAll(k.policy)
		next.criterion = k.policy.Notify(next.criterion, sched.EventAward)
		next.criterion = k.policy.Notify(next.criterion, sched.EventEnter)
	}
	if prev != nil && prev.state == StateRunning {
		prev.state = StateReady
	}
	next.state = StateRunning
	k.sched.chosen[next.cpu] = next

	var prevCtx *cpu.Context
	if prev != nil {
		prevCtx = prev.ctx
	}
	nextCtx := next.ctx

	k.lock.Unlock()
	cpu.SwitchContext(prevCtx, nextCtx)
	k.lock.Lock()
}

// restartTimer (re)schedules the preemption quantum for cpu c, signaling
// the interrupt controller when it fires (spec.md §4.6, the "timer
// interrupt drives preemption" path). See DESIGN.md for why this can only
// reach a busy goroutine cooperatively, through Thread.Tick.
func (k *Kernel) restartTimer(c cpu.CoreID) {
	if k.timers[c] != nil {
		k.timers[c].Stop()
	}
	k.timers[c] = time.AfterFunc(k.quantum, func() {
		k.ic.Signal(c)
	})
}

// localReschedule re-evaluates who should run on c right now and
// dispatches to them if it differs from whoever is already running
// (spec.md §4.6 reschedule(), uniprocessor/self case).
func (k *Kernel) localReschedule(c cpu.CoreID) {
	prev := k.sched.Chosen(c)
	head, _ := k.sched.readyQueueFor(c).Min().(*Thread)
	if head == nil {
		return
	}
	running := prev != nil && !prev.idle && prev.state == StateRunning
	if running && !head.criterion.Less(prev.criterion) {
		return
	}
	next := k.sched.Choose(c)
	if running {
		k.sched.Insert(prev)
	}
	k.dispatch(prev, next, true)
}

// requestReschedule asks for c's ready set to be re-evaluated (spec.md
// §4.6 reschedule(cpu)). Non-preemptive kernels never act on this: the
// running thread keeps the CPU until it cooperates. In a uniprocessor
// kernel the request can be serviced inline; in SMP it is always routed
// through the interrupt controller, even when c is the caller's own CPU,
// so that a thread never dispatches out from under itself by mistake
// while still holding references into its own stack frame.
func (k *Kernel) requestReschedule(c cpu.CoreID) {
	if !k.preemptive {
		return
	}
	if k.cores == 1 {
		k.localReschedule(cpu.BSP)
		return
	}
	k.ic.Signal(c)
}

// pickGlobalTarget returns the next CPU a globally-distributed thread
// should be associated with for reschedule-signaling purposes, rotating
// round robin across every core (spec.md §6, global distribution mode).
func (k *Kernel) pickGlobalTarget() cpu.CoreID {
	c := k.nextCPU
	k.nextCPU = (k.nextCPU + 1) % int32(k.cores)
	return cpu.CoreID(c)
}

// shutdown runs once the boot CPU's idle thread decides every thread but
// the per-CPU idle threads has exited (spec.md §4.7).
func (k *Kernel) shutdown() {
	if k.onShutdown != nil {
		k.onShutdown(false)
	}
	close(k.idleCh)
}

// Idle returns a channel that closes once the boot CPU's idle loop has run
// the system shutdown (spec.md §4.7, §8 property 8), adapted from
// runsc/cmd/wait.go's "block until the thing I'm watching finishes" shape:
// a caller blocks on it the way that command blocks on container.Wait()
// instead of busy-polling Stats().
func (k *Kernel) Idle() <-chan struct{} {
	return k.idleCh
}

// Stats is a snapshot of kernel-wide bookkeeping, exposed for
// diagnostics and tests (SPEC_FULL.md supplemented features).
type Stats struct {
	ThreadCount int
	ByState     map[State]int
	ReadyDepth  []int
}

// Stats reports the kernel's current thread counts and ready-queue
// depths.
func (k *Kernel) Stats() Stats {
	k.lock.Lock()
	defer k.lock.Unlock()
	s := Stats{
		ThreadCount: k.threadCount,
		ByState:     make(map[State]int, 5),
		ReadyDepth:  make([]int, k.cores),
	}
	for c := 0; c < k.cores; c++ {
		s.ReadyDepth[c] = k.sched.readyQueueFor(cpu.CoreID(c)).Len()
	}
	for _, t := range k.threads {
		s.ByState[t.state]++
	}
	return s
}
