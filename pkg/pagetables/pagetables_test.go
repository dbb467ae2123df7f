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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Redstone-OS/ignite/pkg/memory"
)

func newTables(t *testing.T) (*PageTables, *memory.SimFrameSource) {
	t.Helper()
	frames := memory.NewSimFrameSource()
	p, err := New(NewAllocator(frames))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, frames
}

// checkLookup asserts that virt resolves to phys.
func checkLookup(t *testing.T, p *PageTables, virt uint64, phys memory.PhysAddr) {
	t.Helper()
	got, _, ok := p.Lookup(virt)
	if !ok {
		t.Fatalf("Lookup(%#x): not mapped", virt)
	}
	if got != phys {
		t.Fatalf("Lookup(%#x) = %#x, want %#x", virt, got, phys)
	}
}

func TestLookupUnmapped(t *testing.T) {
	p, _ := newTables(t)
	for _, virt := range []uint64{0, 0x1000, 0x200000, 1 << 39} {
		if _, _, ok := p.Lookup(virt); ok {
			t.Errorf("Lookup(%#x) found a mapping in empty tables", virt)
		}
	}
}

func TestAllocatorRoundTrip(t *testing.T) {
	_, frames := newTables(t)
	a := NewAllocator(frames)
	ptes, err := a.NewPTEs()
	if err != nil {
		t.Fatalf("NewPTEs failed: %v", err)
	}
	phys := a.PhysicalFor(ptes)
	if phys == 0 {
		t.Fatal("PhysicalFor returned zero")
	}
	if got := a.LookupPTEs(phys); got != ptes {
		t.Errorf("LookupPTEs(%#x) = %p, want %p", phys, got, ptes)
	}
	if got := a.Pages(); got != 1 {
		t.Errorf("Pages() = %d, want 1", got)
	}
}

func TestIdentityMap(t *testing.T) {
	p, _ := newTables(t)
	const ceiling = 1 << 30
	if err := p.IdentityMapRange(ceiling); err != nil {
		t.Fatalf("IdentityMapRange failed: %v", err)
	}

	for _, virt := range []uint64{0, 0x1000, 0x12345678, ceiling - 1} {
		phys, opts, ok := p.Lookup(virt)
		if !ok {
			t.Fatalf("Lookup(%#x): not mapped", virt)
		}
		if phys != memory.PhysAddr(virt) {
			t.Errorf("Lookup(%#x) = %#x, want identity", virt, phys)
		}
		if !opts.Writable {
			t.Errorf("Lookup(%#x): not writable", virt)
		}
	}
	if _, _, ok := p.Lookup(ceiling); ok {
		t.Errorf("Lookup(%#x) mapped above the ceiling", uint64(ceiling))
	}

	// The identity map uses huge mappings, not page-by-page tables.
	pmd, err := p.pmdFor(0)
	if err != nil {
		t.Fatalf("pmdFor failed: %v", err)
	}
	if !pmd[0].IsSuper() {
		t.Error("identity mapping at 0 is not a huge entry")
	}
	// 1 GiB of huge mappings: root, one pud, one pmd.
	if got := p.Allocator.Pages(); got != 3 {
		t.Errorf("table pages = %d, want 3", got)
	}
}

func TestIdentityMapRoundsUp(t *testing.T) {
	p, _ := newTables(t)
	if err := p.IdentityMapRange(memory.HugePageSize + 1); err != nil {
		t.Fatalf("IdentityMapRange failed: %v", err)
	}
	checkLookup(t, p, 2*memory.HugePageSize-1, 2*memory.HugePageSize-1)
	if _, _, ok := p.Lookup(2 * memory.HugePageSize); ok {
		t.Error("mapping extends past the rounded ceiling")
	}
}

func TestMapHugeRangeAlignment(t *testing.T) {
	for _, tc := range []struct {
		name string
		phys memory.PhysAddr
		virt uint64
	}{
		{"unaligned phys", 0x1000, 0},
		{"unaligned virt", 0, 0x1000},
		{"page aligned only", memory.PageSize, memory.PageSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTables(t)
			err := p.MapHugeRange(tc.phys, tc.virt, memory.HugePageSize)
			if !errors.Is(err, ErrUnalignedAddress) {
				t.Fatalf("MapHugeRange(%#x, %#x) = %v, want ErrUnalignedAddress", tc.phys, tc.virt, err)
			}
			// Rejected before any table mutation.
			if got := p.Allocator.Pages(); got != 1 {
				t.Errorf("table pages = %d, want 1 (root only)", got)
			}
		})
	}
}

func TestMapFixedPagesAlignment(t *testing.T) {
	for _, tc := range []struct {
		name string
		phys memory.PhysAddr
		virt uint64
	}{
		{"unaligned phys", 0x200100, 0x100000},
		{"unaligned virt", 0x200000, 0x100200},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTables(t)
			err := p.MapFixedPages(tc.phys, tc.virt, 1)
			if !errors.Is(err, ErrUnalignedAddress) {
				t.Fatalf("MapFixedPages(%#x, %#x) = %v, want ErrUnalignedAddress", tc.phys, tc.virt, err)
			}
			if got := p.Allocator.Pages(); got != 1 {
				t.Errorf("table pages = %d, want 1 (root only)", got)
			}
		})
	}
}

func TestMapFixedPages(t *testing.T) {
	p, _ := newTables(t)
	const (
		phys  = memory.PhysAddr(0x800000)
		virt  = uint64(0x100000)
		count = 8
	)
	if err := p.MapFixedPages(phys, virt, count); err != nil {
		t.Fatalf("MapFixedPages failed: %v", err)
	}
	for i := 0; i < count; i++ {
		checkLookup(t, p, virt+uint64(i*memory.PageSize), phys+memory.PhysAddr(i*memory.PageSize))
	}
	if _, _, ok := p.Lookup(virt + count*memory.PageSize); ok {
		t.Error("mapping extends past the requested pages")
	}
}

func TestSplitHugeEntry(t *testing.T) {
	p, _ := newTables(t)
	const (
		virt = uint64(1 << 30)
		base = memory.PhysAddr(0xab400000)
	)
	opts := MapOpts{
		Writable:     true,
		CacheDisable: true,
		Accessed:     true,
		Dirty:        true,
		Global:       true,
		NoExec:       true,
		PAT:          true,
	}
	pmd, err := p.pmdFor(virt)
	if err != nil {
		t.Fatalf("pmdFor failed: %v", err)
	}
	entry := &pmd[pmdIndex(virt)]
	entry.SetSuper(base, opts)

	// The huge form holds the PAT bit at bit 12, clear of the address.
	if uint64(*entry)&superPAT == 0 {
		t.Fatal("huge entry PAT bit not at bit 12")
	}
	if entry.SuperAddress() != base {
		t.Fatalf("SuperAddress() = %#x, want %#x", entry.SuperAddress(), base)
	}

	pt, err := p.pteTableFor(virt)
	if err != nil {
		t.Fatalf("pteTableFor failed: %v", err)
	}

	// The parent now links the leaf table.
	if !entry.Valid() || entry.IsSuper() {
		t.Fatal("parent entry is not a table link after the split")
	}
	if got := p.Allocator.LookupPTEs(entry.Address()); got != pt {
		t.Fatal("parent entry does not point at the returned table")
	}

	// All 512 leaves cover the same physical range with the same
	// options, the PAT bit relocated to its leaf position.
	for i := range pt {
		leaf := &pt[i]
		if !leaf.Valid() {
			t.Fatalf("leaf %d not present", i)
		}
		if want := base + memory.PhysAddr(i*memory.PageSize); leaf.Address() != want {
			t.Fatalf("leaf %d address = %#x, want %#x", i, leaf.Address(), want)
		}
		if diff := cmp.Diff(opts, leaf.Opts()); diff != "" {
			t.Fatalf("leaf %d options mismatch (-want +got):\n%s", i, diff)
		}
	}
	if uint64(pt[0])&pat == 0 {
		t.Error("leaf PAT bit not at bit 7")
	}
	if uint64(pt[0])&superPAT != 0 {
		t.Error("leaf carries a stray bit 12")
	}
}

func TestSplitAtomicity(t *testing.T) {
	p, frames := newTables(t)
	if err := p.IdentityMapRange(4 * memory.HugePageSize); err != nil {
		t.Fatalf("IdentityMapRange failed: %v", err)
	}
	before := p.Allocator.Pages()

	// The next table allocation fails mid-split.
	frames.FailAfter = 0
	err := p.MapFixedPages(0x800000, 0x100000, 1)
	if !errors.Is(err, memory.ErrAllocationFailed) {
		t.Fatalf("MapFixedPages = %v, want ErrAllocationFailed", err)
	}

	// The original huge mapping is untouched: the replacement table is
	// allocated before the parent entry is modified.
	pmd, lookupErr := p.pmdFor(0x100000)
	if lookupErr != nil {
		t.Fatalf("pmdFor failed: %v", lookupErr)
	}
	if !pmd[pmdIndex(0x100000)].IsSuper() {
		t.Fatal("huge entry modified by a failed split")
	}
	checkLookup(t, p, 0x100000, 0x100000)
	if got := p.Allocator.Pages(); got != before {
		t.Errorf("table pages = %d after failed split, want %d", got, before)
	}
}

func TestMapFixedPagesSplitsIdentity(t *testing.T) {
	p, _ := newTables(t)
	if err := p.IdentityMapRange(4 * memory.HugePageSize); err != nil {
		t.Fatalf("IdentityMapRange failed: %v", err)
	}
	const (
		kernelPhys = memory.PhysAddr(0x900000)
		kernelVirt = uint64(0x100000)
	)
	if err := p.MapFixedPages(kernelPhys, kernelVirt, 4); err != nil {
		t.Fatalf("MapFixedPages failed: %v", err)
	}

	// The kernel pages point at their new frames.
	checkLookup(t, p, kernelVirt, kernelPhys)
	checkLookup(t, p, kernelVirt+3*memory.PageSize, kernelPhys+3*memory.PhysAddr(memory.PageSize))

	// The rest of the split 2 MiB region still resolves identically.
	checkLookup(t, p, kernelVirt-memory.PageSize, memory.PhysAddr(kernelVirt-memory.PageSize))
	checkLookup(t, p, kernelVirt+4*memory.PageSize, memory.PhysAddr(kernelVirt+4*memory.PageSize))

	// Neighboring huge regions were not split.
	pmd, err := p.pmdFor(2 * memory.HugePageSize)
	if err != nil {
		t.Fatalf("pmdFor failed: %v", err)
	}
	if !pmd[pmdIndex(2*memory.HugePageSize)].IsSuper() {
		t.Error("untouched region lost its huge mapping")
	}
}

func TestReserveScratchSlot(t *testing.T) {
	// Two ceilings: below the simulated frame base, so the innermost
	// table's identity leaf must be installed from scratch, and above
	// it, so the leaf appears via an identity split.
	for _, tc := range []struct {
		name    string
		ceiling memory.PhysAddr
	}{
		{"table frame above ceiling", 4 * memory.HugePageSize},
		{"table frame under identity map", memory.PhysAddr(memory.SimBase) + 16*memory.HugePageSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTables(t)
			if err := p.IdentityMapRange(tc.ceiling); err != nil {
				t.Fatalf("IdentityMapRange failed: %v", err)
			}
			tablePhys, err := p.ReserveScratchSlot()
			if err != nil {
				t.Fatalf("ReserveScratchSlot failed: %v", err)
			}
			if tablePhys == 0 {
				t.Fatal("ReserveScratchSlot returned a zero table address")
			}

			// The slot resolves through a granular chain.
			pmd, err := p.pmdFor(ScratchSlotVirt)
			if err != nil {
				t.Fatalf("pmdFor failed: %v", err)
			}
			entry := &pmd[pmdIndex(ScratchSlotVirt)]
			if !entry.Valid() || entry.IsSuper() {
				t.Fatal("scratch slot chain is not granular")
			}
			if got := p.Allocator.PhysicalFor(p.Allocator.LookupPTEs(entry.Address())); got != tablePhys {
				t.Errorf("innermost table at %#x, want %#x", got, tablePhys)
			}

			// The slot itself still resolves identically: splitting
			// preserved the identity contents.
			checkLookup(t, p, ScratchSlotVirt, memory.PhysAddr(ScratchSlotVirt))

			// The kernel reaches the table through the identity map.
			checkLookup(t, p, uint64(tablePhys), tablePhys)
		})
	}
}
