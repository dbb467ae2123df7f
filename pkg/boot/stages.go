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

package boot

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Redstone-OS/ignite/pkg/elfimage"
	"github.com/Redstone-OS/ignite/pkg/memory"
	"github.com/Redstone-OS/ignite/pkg/pagetables"
)

// The boot pipeline is a strictly ordered sequence with no backward
// transitions:
//
//	identity map -> load kernel -> reserve scratch -> hand-off write
//
// Violating this order faults only after the CR3 switch, when no
// diagnostic output may be possible, so each stage's method is defined
// only on the previous stage's output type: the wrong order does not
// compile. There is no undo; any failure aborts the whole attempt.

// Environment collects the per-attempt collaborators a protocol runs
// against.
type Environment struct {
	// Tables is the page-table set that becomes the kernel's address
	// space.
	Tables *pagetables.PageTables

	// Frames supplies physical memory.
	Frames memory.FrameSource

	// Framebuffer describes the graphics aperture; nil defaults the
	// hand-off descriptor to zero.
	Framebuffer FramebufferSource

	// MemoryMap drives the identity-map ceiling; nil falls back to
	// memory.DefaultIdentityCeiling.
	MemoryMap *memory.Map
}

// Module is one auxiliary file (an initramfs, typically) already read
// into a buffer by the filesystem collaborator.
type Module struct {
	Name string
	Data []byte
}

// Request is one boot attempt's inputs.
type Request struct {
	// Kernel is the candidate kernel image.
	Kernel []byte

	// Cmdline is passed through to protocols that consume one.
	Cmdline string

	// Modules are placed into fresh physical pages; the first one's
	// location is recorded in the hand-off block.
	Modules []Module

	// MemoryMapAddr and MemoryMapLen locate the platform-owned raw
	// memory-map buffer, passed through to the kernel unmodified.
	MemoryMapAddr uint64
	MemoryMapLen  uint64

	// ACPIRSDP is the ACPI root pointer, zero when unknown.
	ACPIRSDP uint64
}

// LaunchParams is everything the final jump needs: produced once,
// consumed exactly once, no recovery afterward.
type LaunchParams struct {
	// Entry is the physical entry point.
	Entry memory.PhysAddr

	// PageTableRoot is loaded into CR3 immediately before the jump.
	PageTableRoot memory.PhysAddr

	// Stack is the initial stack pointer, or zero when the kernel
	// manages its own stack.
	Stack uint64

	// HandoffAddr is the physical address of the hand-off block,
	// loaded into RDI per the native contract.
	HandoffAddr memory.PhysAddr

	// AuxRAX and AuxRBX carry protocol-specific register values for
	// conventions that mimic foreign protocols (a magic value and a
	// secondary info pointer). Zero for the native protocol.
	AuxRAX uint64
	AuxRBX uint64
}

// Pipeline is the entry stage.
type Pipeline struct {
	env *Environment
}

// NewPipeline starts a boot attempt against env.
func NewPipeline(env *Environment) *Pipeline {
	return &Pipeline{env: env}
}

// IdentityMap builds the identity mapping and advances the attempt.
// The ceiling is the discovered memory-map maximum when a map is
// available; the fixed fallback constant is used only without one and
// never caps a larger discovered maximum.
func (p *Pipeline) IdentityMap() (*IdentityMapped, error) {
	max := memory.DefaultIdentityCeiling
	if m := p.env.MemoryMap; m != nil {
		if discovered := m.MaxPhysical(); discovered > 0 {
			max = discovered
		}
	}
	if err := p.env.Tables.IdentityMapRange(max); err != nil {
		return nil, fmt.Errorf("identity map to %#x: %w", max, err)
	}
	logrus.WithField("ceiling", fmt.Sprintf("%#x", max)).Debug("identity map built")
	return &IdentityMapped{env: p.env}, nil
}

// IdentityMapped is the attempt after the identity map is in place.
type IdentityMapped struct {
	env *Environment
}

// LoadKernel loads the parsed image into fresh physical pages and maps
// it at its linked virtual address.
func (m *IdentityMapped) LoadKernel(img *elfimage.Image, src []byte) (*KernelLoaded, error) {
	kernel, err := img.Load(src, m.env.Frames)
	if err != nil {
		return nil, err
	}
	minVaddr, _ := img.AddressRange()
	pages := memory.PagesFor(kernel.Size)
	if err := m.env.Tables.MapFixedPages(kernel.Base, minVaddr, pages); err != nil {
		return nil, fmt.Errorf("mapping kernel at %#x: %w", minVaddr, err)
	}
	return &KernelLoaded{env: m.env, Kernel: kernel}, nil
}

// KernelLoaded is the attempt after the kernel image is placed and
// mapped.
type KernelLoaded struct {
	env *Environment

	// Kernel is immutable from here on.
	Kernel *elfimage.LoadedKernel
}

// ReserveScratch reserves the kernel's transient-mapping slot. Fixed
// to run after LoadKernel so that table frames consumed while loading
// cannot collide with the scratch chain's frames.
func (k *KernelLoaded) ReserveScratch() (*ScratchReady, error) {
	tablePhys, err := k.env.Tables.ReserveScratchSlot()
	if err != nil {
		return nil, fmt.Errorf("reserving scratch slot: %w", err)
	}
	logrus.WithField("table", fmt.Sprintf("%#x", tablePhys)).Debug("scratch slot reserved")
	return &ScratchReady{env: k.env, Kernel: k.Kernel}, nil
}

// ScratchReady is the attempt with the full address space prepared.
type ScratchReady struct {
	env    *Environment
	Kernel *elfimage.LoadedKernel
}

// Handoff allocates the hand-off page, populates the block, writes it
// once, and returns the launch parameters. The block is immutable from
// the write onward.
func (s *ScratchReady) Handoff(req *Request) (*LaunchParams, error) {
	var moduleBase memory.PhysAddr
	var moduleSize uint64
	if len(req.Modules) > 0 {
		mod := req.Modules[0]
		base, err := placeBuffer(s.env.Frames, mod.Data)
		if err != nil {
			return nil, fmt.Errorf("placing module %q: %w", mod.Name, err)
		}
		moduleBase, moduleSize = base, uint64(len(mod.Data))
	}

	fb := FramebufferInfo{}
	if s.env.Framebuffer != nil {
		fb = s.env.Framebuffer.Describe()
	}

	block := &HandoffBlock{
		Magic:         HandoffMagic,
		Version:       HandoffVersion,
		Framebuffer:   fb,
		MemoryMapAddr: req.MemoryMapAddr,
		MemoryMapLen:  req.MemoryMapLen,
		ACPIRSDP:      req.ACPIRSDP,
		KernelBase:    uint64(s.Kernel.Base),
		KernelSize:    s.Kernel.Size,
		ModuleBase:    uint64(moduleBase),
		ModuleSize:    moduleSize,
	}

	blockAddr, err := s.env.Frames.AllocateZeroed(1)
	if err != nil {
		return nil, fmt.Errorf("allocating hand-off page: %w", err)
	}
	view, err := s.env.Frames.Slice(blockAddr, HandoffSize)
	if err != nil {
		return nil, fmt.Errorf("mapping hand-off page: %w", err)
	}
	if err := block.EncodeTo(view); err != nil {
		return nil, err
	}

	return &LaunchParams{
		Entry:         s.Kernel.Entry,
		PageTableRoot: s.env.Tables.RootAddress(),
		HandoffAddr:   blockAddr,
	}, nil
}

// placeBuffer copies b into fresh physical pages and returns the base.
func placeBuffer(frames memory.FrameSource, b []byte) (memory.PhysAddr, error) {
	pages := memory.PagesFor(uint64(len(b)))
	if pages == 0 {
		pages = 1
	}
	base, err := frames.AllocateZeroed(pages)
	if err != nil {
		return 0, err
	}
	view, err := frames.Slice(base, len(b))
	if err != nil {
		return 0, err
	}
	copy(view, b)
	return base, nil
}
