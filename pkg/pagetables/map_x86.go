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

const (
	pteShift = 12
	pmdShift = 21
	pudShift = 30
	pgdShift = 39

	entriesPerPage = 512
	indexMask      = entriesPerPage - 1
)

// ScratchSlotVirt is the fixed virtual address the kernel uses for
// transient single-page mappings during its early initialization: the
// last page of the first 2 MiB. The address is part of the hand-off
// contract and must match the kernel's early-paging code.
const ScratchSlotVirt uint64 = 0x1ff000

func pgdIndex(virt uint64) int { return int(virt>>pgdShift) & indexMask }
func pudIndex(virt uint64) int { return int(virt>>pudShift) & indexMask }
func pmdIndex(virt uint64) int { return int(virt>>pmdShift) & indexMask }
func pteIndex(virt uint64) int { return int(virt>>pteShift) & indexMask }

// childTable returns the table pointed to by entry, allocating and
// linking a zeroed one when the entry is clear.
//
// Precondition: entry is not a huge mapping.
func (p *PageTables) childTable(entry *PTE) (*PTEs, error) {
	if entry.Valid() {
		return p.Allocator.LookupPTEs(entry.Address()), nil
	}
	ptes, err := p.Allocator.NewPTEs()
	if err != nil {
		return nil, err
	}
	entry.setPageTable(p.Allocator.PhysicalFor(ptes))
	return ptes, nil
}

// pmdFor returns the second-from-bottom table covering virt, creating
// intermediate levels on demand.
func (p *PageTables) pmdFor(virt uint64) (*PTEs, error) {
	pud, err := p.childTable(&p.root[pgdIndex(virt)])
	if err != nil {
		return nil, err
	}
	return p.childTable(&pud[pudIndex(virt)])
}

// pteTableFor returns the innermost table covering virt, splitting a
// covering huge mapping so that the whole chain is granular.
func (p *PageTables) pteTableFor(virt uint64) (*PTEs, error) {
	pmd, err := p.pmdFor(virt)
	if err != nil {
		return nil, err
	}
	entry := &pmd[pmdIndex(virt)]
	if entry.IsSuper() {
		return p.splitHugeEntry(entry)
	}
	return p.childTable(entry)
}

// splitHugeEntry replaces a 2 MiB mapping with a table of 512 4 KiB
// leaves covering exactly the same physical range, preserving the
// entry's options and relocating the PAT bit to its leaf position.
//
// The replacement table is allocated before the parent entry is
// touched, so a failed allocation leaves the original huge mapping
// completely intact. All 512 leaves are filled before the parent is
// redirected; a partial table is never visible.
func (p *PageTables) splitHugeEntry(entry *PTE) (*PTEs, error) {
	ptes, err := p.Allocator.NewPTEs()
	if err != nil {
		return nil, fmt.Errorf("splitting huge mapping: %w", err)
	}
	opts := entry.SuperOpts()
	base := entry.SuperAddress()
	for i := range ptes {
		ptes[i].Set(base+memory.PhysAddr(i*memory.PageSize), opts)
	}
	entry.setPageTable(p.Allocator.PhysicalFor(ptes))
	return ptes, nil
}

// IdentityMapRange maps physical address zero up to the huge-page
// aligned ceiling of max, virtual equal to physical, present and
// writable, using 2 MiB mappings.
//
// The bootloader and the early kernel keep running at their physical
// addresses immediately after the CR3 switch; without this mapping the
// very next instruction fetch faults. Must precede kernel loading: the
// loader zeroes and copies through the identity map.
func (p *PageTables) IdentityMapRange(max memory.PhysAddr) error {
	return p.MapHugeRange(0, 0, memory.AlignUp(uint64(max), memory.HugePageSize))
}

// MapHugeRange maps length bytes from phys at virt using 2 MiB
// mappings. Both bases must be 2 MiB aligned; length is rounded up.
// Used for the identity map and for high framebuffer apertures.
//
// Precondition: the target range holds no prior mappings.
func (p *PageTables) MapHugeRange(phys memory.PhysAddr, virt uint64, length uint64) error {
	if uint64(phys)&(memory.HugePageSize-1) != 0 || virt&(memory.HugePageSize-1) != 0 {
		return ErrUnalignedAddress
	}
	end := memory.AlignUp(length, memory.HugePageSize)
	for off := uint64(0); off < end; off += memory.HugePageSize {
		pmd, err := p.pmdFor(virt + off)
		if err != nil {
			return err
		}
		pmd[pmdIndex(virt+off)].SetSuper(phys+memory.PhysAddr(off), MapOpts{Writable: true})
	}
	return nil
}

// MapFixedPages maps count 4 KiB pages from phys at virt, present and
// writable, creating every missing intermediate level on demand. Both
// bases must be 4 KiB aligned. Used to place the kernel image at its
// linked virtual address.
func (p *PageTables) MapFixedPages(phys memory.PhysAddr, virt uint64, count int) error {
	if !memory.IsPageAligned(uint64(phys)) || !memory.IsPageAligned(virt) {
		return ErrUnalignedAddress
	}
	for i := 0; i < count; i++ {
		v := virt + uint64(i*memory.PageSize)
		pt, err := p.pteTableFor(v)
		if err != nil {
			return err
		}
		pt[pteIndex(v)].Set(phys+memory.PhysAddr(i*memory.PageSize), MapOpts{Writable: true})
	}
	return nil
}

// ReserveScratchSlot guarantees that ScratchSlotVirt resolves through
// a granular table chain, splitting any huge mapping that covers it,
// and that the innermost table's own page is identity-mapped at 4 KiB
// granularity: the kernel dereferences that table through the identity
// map to install its transient mappings. Returns the physical address
// of the innermost table.
//
// Must run after IdentityMapRange and after the kernel image has been
// loaded; the orchestrator's stage types enforce that order.
func (p *PageTables) ReserveScratchSlot() (memory.PhysAddr, error) {
	pt, err := p.pteTableFor(ScratchSlotVirt)
	if err != nil {
		return 0, err
	}
	tablePhys := p.Allocator.PhysicalFor(pt)

	inner, err := p.pteTableFor(uint64(tablePhys))
	if err != nil {
		return 0, err
	}
	leaf := &inner[pteIndex(uint64(tablePhys))]
	if !leaf.Valid() {
		// The table frame sits above the identity-mapped ceiling;
		// install its identity leaf directly.
		leaf.Set(tablePhys, MapOpts{Writable: true})
	}
	return tablePhys, nil
}

// Lookup translates virt through the tables. It returns the backing
// physical address, the mapping options, and whether a mapping exists.
func (p *PageTables) Lookup(virt uint64) (memory.PhysAddr, MapOpts, bool) {
	entry := &p.root[pgdIndex(virt)]
	if !entry.Valid() {
		return 0, MapOpts{}, false
	}
	pud := p.Allocator.LookupPTEs(entry.Address())
	entry = &pud[pudIndex(virt)]
	if !entry.Valid() {
		return 0, MapOpts{}, false
	}
	pmd := p.Allocator.LookupPTEs(entry.Address())
	entry = &pmd[pmdIndex(virt)]
	if !entry.Valid() {
		return 0, MapOpts{}, false
	}
	if entry.IsSuper() {
		off := memory.PhysAddr(virt & (memory.HugePageSize - 1))
		return entry.SuperAddress() + off, entry.SuperOpts(), true
	}
	pt := p.Allocator.LookupPTEs(entry.Address())
	entry = &pt[pteIndex(virt)]
	if !entry.Valid() {
		return 0, MapOpts{}, false
	}
	off := memory.PhysAddr(virt & memory.PageMask)
	return entry.Address() + off, entry.Opts(), true
}
