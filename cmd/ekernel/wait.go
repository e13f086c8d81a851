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
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/arthurwinck/epos-kernel/internal/klog"
	"github.com/arthurwinck/epos-kernel/pkg/kernel"
	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

// waitCmd boots a kernel running a single busy thread for a fixed duration
// and blocks on Kernel.Idle() until the boot CPU's idle loop shuts the
// system down, then reports the final stats as JSON — adapted from
// runsc/cmd/wait.go's "block on c.Wait(), then json.NewEncoder the result"
// shape, with container.Wait() replaced by Kernel.Idle().
type waitCmd struct {
	cores    int
	work     time.Duration
	roundRobin bool
}

func (*waitCmd) Name() string     { return "wait" }
func (*waitCmd) Synopsis() string { return "boot a kernel, wait for shutdown, report stats as JSON" }
func (*waitCmd) Usage() string    { return "wait [flags]\n" }

func (w *waitCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&w.cores, "cores", 1, "number of simulated CPUs")
	f.DurationVar(&w.work, "work", 20*time.Millisecond, "how long the lone worker thread runs before exiting")
	f.BoolVar(&w.roundRobin, "round-robin", false, "use the dynamic round-robin policy instead of FCFS")
}

type waitResult struct {
	ThreadCount int         `json:"threadCount"`
	ByState     map[string]int `json:"byState"`
	ReadyDepth  []int       `json:"readyDepth"`
}

func (w *waitCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var policy sched.Policy
	if w.roundRobin {
		policy = sched.NewRoundRobin()
	}

	k := kernel.New(kernel.Config{
		Cores:  w.cores,
		Policy: policy,
	})

	boot := func(bt *kernel.Thread) int {
		worker := k.NewThread(func(*kernel.Thread) int {
			time.Sleep(w.work)
			return 0
		}, 0, 0, bt.CPU())
		return bt.Join(worker)
	}

	go k.Boot(boot, 0, 0)
	<-k.Idle()

	stats := k.Stats()
	result := waitResult{
		ThreadCount: stats.ThreadCount,
		ByState:     make(map[string]int, len(stats.ByState)),
		ReadyDepth:  stats.ReadyDepth,
	}
	for state, n := range stats.ByState {
		result.ByState[state.String()] = n
	}
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		klog.Warningf("ekernel: marshaling wait result: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
