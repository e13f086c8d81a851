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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"github.com/arthurwinck/epos-kernel/internal/klog"
	"github.com/arthurwinck/epos-kernel/pkg/cpu"
	"github.com/arthurwinck/epos-kernel/pkg/kernel"
	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

// demoCmd boots a small kernel and runs a handful of worker threads that
// the boot thread joins, exercising creation, scheduling, and join in one
// pass.
type demoCmd struct {
	cores       int
	partitioned bool
	preemptive  bool
	roundRobin  bool
	debug       bool
}

func (*demoCmd) Name() string { return "demo" }
func (*demoCmd) Synopsis() string {
	return "boot a kernel with a few worker threads and report how they ran"
}
func (*demoCmd) Usage() string {
	return "demo [flags]\n"
}

func (d *demoCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&d.cores, "cores", 1, "number of simulated CPUs")
	f.BoolVar(&d.partitioned, "partitioned", false, "use per-CPU ready queues instead of one shared queue")
	f.BoolVar(&d.preemptive, "preemptive", false, "enable timer/IPI-driven preemption")
	f.BoolVar(&d.roundRobin, "round-robin", false, "use the dynamic round-robin policy instead of FCFS")
	f.BoolVar(&d.debug, "debug", false, "enable debug-level logging")
}

func (d *demoCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	klog.SetLevel(d.debug)

	var policy sched.Policy
	if d.roundRobin {
		policy = sched.NewRoundRobin()
	}

	k := kernel.New(kernel.Config{
		Cores:       d.cores,
		Partitioned: d.partitioned,
		Preemptive:  d.preemptive,
		Policy:      policy,
		Quantum:     5 * time.Millisecond,
	})

	const workers = 4
	results := make([]int, workers)

	boot := func(t *kernel.Thread) int {
		children := make([]*kernel.Thread, workers)
		for i := 0; i < workers; i++ {
			i := i
			children[i] = k.NewThread(func(wt *kernel.Thread) int {
				klog.Infof("ekernel: worker %s running on cpu %d", wt.Name(), wt.CPU())
				return i * 10
			}, 0, workers-i, cpu.CoreID(i%d.cores))
		}
		for i, c := range children {
			results[i] = t.Join(c)
		}
		klog.Infof("ekernel: all workers joined, results=%v", results)
		return 0
	}

	go k.Boot(boot, 0, 0)
	<-k.Idle()

	fmt.Println("results:", results)
	stats := k.Stats()
	fmt.Printf("final stats: threads=%d by-state=%v ready-depth=%v\n",
		stats.ThreadCount, stats.ByState, stats.ReadyDepth)
	return subcommands.ExitSuccess
}
