// Copyright 2025 The Ignite Authors.
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

// ignitectl inspects kernel images and hand-off blocks offline, so a
// kernel's boot contract can be checked without a firmware round trip.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&elfCommand{}, "")
	subcommands.Register(&handoffBuildCommand{}, "")
	subcommands.Register(&handoffDumpCommand{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// fatalf prints an error and exits, like runsc's util.Fatalf.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ignitectl: "+format+"\n", args...)
	os.Exit(1)
}
