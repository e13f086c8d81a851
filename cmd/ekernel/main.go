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

// Binary ekernel is a demo/ops CLI for the thread kernel core: it boots a
// kernel with a scripted set of threads and reports what happened,
// exercising the same Thread/Kernel surface a real caller would use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/arthurwinck/epos-kernel/pkg/cpu"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(demoCmd), "")
	subcommands.Register(new(coresCmd), "")
	subcommands.Register(new(waitCmd), "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// coresCmd reports how many cores the host makes available to this
// process. The -cores flags of demo and wait do not use it; they default
// to 1.
type coresCmd struct{}

func (*coresCmd) Name() string     { return "cores" }
func (*coresCmd) Synopsis() string { return "print how many host cores are available to ekernel" }
func (*coresCmd) Usage() string    { return "cores\n" }
func (*coresCmd) SetFlags(*flag.FlagSet) {}

func (*coresCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println(cpu.DetectCores())
	return subcommands.ExitSuccess
}
