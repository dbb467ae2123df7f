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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"

	"github.com/Redstone-OS/ignite/pkg/boot"
)

// handoffDescription is the TOML form of a hand-off block, used to
// produce golden hand-off images for kernel-side contract tests.
type handoffDescription struct {
	Framebuffer struct {
		Addr   uint64 `toml:"addr"`
		Size   uint64 `toml:"size"`
		Width  uint32 `toml:"width"`
		Height uint32 `toml:"height"`
		Stride uint32 `toml:"stride"`
		Format uint32 `toml:"format"`
	} `toml:"framebuffer"`
	MemoryMap struct {
		Addr uint64 `toml:"addr"`
		Len  uint64 `toml:"len"`
	} `toml:"memory_map"`
	ACPIRSDP uint64 `toml:"acpi_rsdp"`
	Kernel   struct {
		Base uint64 `toml:"base"`
		Size uint64 `toml:"size"`
	} `toml:"kernel"`
	Module struct {
		Base uint64 `toml:"base"`
		Size uint64 `toml:"size"`
	} `toml:"module"`
}

// handoffBuildCommand implements subcommands.Command for
// "handoff-build".
type handoffBuildCommand struct {
	output string
}

// Name implements subcommands.Command.
func (*handoffBuildCommand) Name() string {
	return "handoff-build"
}

// Synopsis implements subcommands.Command.
func (*handoffBuildCommand) Synopsis() string {
	return "builds a hand-off block image from a TOML description"
}

// Usage implements subcommands.Command.
func (*handoffBuildCommand) Usage() string {
	return `handoff-build [flags] <description.toml>`
}

// SetFlags implements subcommands.Command.
func (c *handoffBuildCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "handoff.bin", "target file for the encoded block.")
}

// Execute implements subcommands.Command.Execute.
func (c *handoffBuildCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	var desc handoffDescription
	if _, err := toml.DecodeFile(f.Arg(0), &desc); err != nil {
		fatalf("parsing description: %v", err)
	}

	block := &boot.HandoffBlock{
		Magic:   boot.HandoffMagic,
		Version: boot.HandoffVersion,
		Framebuffer: boot.FramebufferInfo{
			Addr:   desc.Framebuffer.Addr,
			Size:   desc.Framebuffer.Size,
			Width:  desc.Framebuffer.Width,
			Height: desc.Framebuffer.Height,
			Stride: desc.Framebuffer.Stride,
			Format: desc.Framebuffer.Format,
		},
		MemoryMapAddr: desc.MemoryMap.Addr,
		MemoryMapLen:  desc.MemoryMap.Len,
		ACPIRSDP:      desc.ACPIRSDP,
		KernelBase:    desc.Kernel.Base,
		KernelSize:    desc.Kernel.Size,
		ModuleBase:    desc.Module.Base,
		ModuleSize:    desc.Module.Size,
	}
	b := make([]byte, boot.HandoffSize)
	if err := block.EncodeTo(b); err != nil {
		fatalf("encoding block: %v", err)
	}
	if err := os.WriteFile(c.output, b, 0644); err != nil {
		fatalf("writing %s: %v", c.output, err)
	}
	return subcommands.ExitSuccess
}

// handoffDumpCommand implements subcommands.Command for "handoff-dump".
type handoffDumpCommand struct{}

// Name implements subcommands.Command.
func (*handoffDumpCommand) Name() string {
	return "handoff-dump"
}

// Synopsis implements subcommands.Command.
func (*handoffDumpCommand) Synopsis() string {
	return "decodes and prints a hand-off block image"
}

// Usage implements subcommands.Command.
func (*handoffDumpCommand) Usage() string {
	return `handoff-dump <handoff.bin>`
}

// SetFlags implements subcommands.Command.
func (*handoffDumpCommand) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*handoffDumpCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	b, err := os.ReadFile(f.Arg(0))
	if err != nil {
		fatalf("reading block: %v", err)
	}
	h, err := boot.DecodeHandoff(b)
	if err != nil {
		fatalf("decoding block: %v", err)
	}
	fmt.Printf("magic:       %#x\n", h.Magic)
	fmt.Printf("version:     %d\n", h.Version)
	fmt.Printf("framebuffer: addr %#x size %#x %dx%d stride %d format %d\n",
		h.Framebuffer.Addr, h.Framebuffer.Size,
		h.Framebuffer.Width, h.Framebuffer.Height,
		h.Framebuffer.Stride, h.Framebuffer.Format)
	fmt.Printf("memory map:  addr %#x len %#x\n", h.MemoryMapAddr, h.MemoryMapLen)
	fmt.Printf("acpi rsdp:   %#x\n", h.ACPIRSDP)
	fmt.Printf("kernel:      base %#x size %#x\n", h.KernelBase, h.KernelSize)
	fmt.Printf("module:      base %#x size %#x\n", h.ModuleBase, h.ModuleSize)
	return subcommands.ExitSuccess
}
