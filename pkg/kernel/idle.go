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

import "github.com/arthurwinck/epos-kernel/pkg/cpu"

// idleEntry is the Entry run by the one idle thread every CPU gets at
// Boot (spec.md §4.7 idle()). It halts the CPU whenever nothing else is
// ready, waking on the next interrupt controller signal, until the only
// threads left anywhere are the idle threads themselves — at which point
// the boot CPU's idle thread shuts the kernel down and every other CPU's
// idle thread halts forever.
func idleEntry(t *Thread) int {
	k := t.k
	for {
		k.lock.Lock()
		live := k.threadCount
		cores := k.cores
		k.lock.Unlock()
		if live <= cores {
			break
		}
		t.IntEnable()
		k.ic.Consume(t.cpu) // drop a stale signal from before this halt
		k.cpus[t.cpu].Halt(k.ic.WakeChan(t.cpu))
		t.Reschedule()
		if !k.preemptive {
			t.Yield()
		}
	}
	if t.cpu == cpu.BSP {
		k.shutdown()
		return 0
	}
	for {
		t.IntEnable()
		k.cpus[t.cpu].Halt(k.ic.WakeChan(t.cpu))
	}
}
