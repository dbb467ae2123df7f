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

package pagetables

import (
	"fmt"

	"github.com/Redstone-OS/ignite/pkg/memory"
)

// Allocator provides table pages and the translation between table
// objects and the physical addresses written into parent entries.
//
// Each table page is owned by the PageTables that allocated it and is
// reachable only through this allocator, so a table cannot outlive or
// alias the frame source backing it.
type Allocator struct {
	frames  memory.FrameSource
	byPhys  map[memory.PhysAddr]*PTEs
	byTable map[*PTEs]memory.PhysAddr
}

// NewAllocator returns an Allocator drawing table frames from frames.
func NewAllocator(frames memory.FrameSource) *Allocator {
	return &Allocator{
		frames:  frames,
		byPhys:  make(map[memory.PhysAddr]*PTEs),
		byTable: make(map[*PTEs]memory.PhysAddr),
	}
}

// NewPTEs returns a fresh zero-filled table page backed by one frame
// from the source.
func (a *Allocator) NewPTEs() (*PTEs, error) {
	phys, err := a.frames.AllocateZeroed(1)
	if err != nil {
		return nil, fmt.Errorf("allocating table page: %w", err)
	}
	ptes := new(PTEs)
	a.byPhys[phys] = ptes
	a.byTable[ptes] = phys
	return ptes, nil
}

// PhysicalFor returns the physical address for a table previously
// returned by NewPTEs.
func (a *Allocator) PhysicalFor(ptes *PTEs) memory.PhysAddr {
	return a.byTable[ptes]
}

// LookupPTEs resolves a physical address recorded in a parent entry
// back to its table.
func (a *Allocator) LookupPTEs(physical memory.PhysAddr) *PTEs {
	return a.byPhys[physical]
}

// Pages returns the number of table pages handed out so far.
func (a *Allocator) Pages() int {
	return len(a.byTable)
}
