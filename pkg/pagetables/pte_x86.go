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

import "github.com/Redstone-OS/ignite/pkg/memory"

// Bits in page table entries.
//
// Bit 7 is overloaded: on a 4 KiB leaf it is the page-attribute-table
// bit, on a second-from-bottom-level entry it marks a 2 MiB huge
// mapping and the PAT bit moves to bit 12. The accessors below are
// therefore explicit about which kind of entry they read or write;
// converting a huge mapping to leaves relocates the bit, never copies
// it in place.
const (
	present      = 1 << 0
	writable     = 1 << 1
	user         = 1 << 2
	writeThrough = 1 << 3
	cacheDisable = 1 << 4
	accessed     = 1 << 5
	dirty        = 1 << 6
	super        = 1 << 7
	pat          = 1 << 7
	global       = 1 << 8
	superPAT     = 1 << 12

	executeDisable = 1 << 63

	addressMask = 0x000ffffffffff000
)

// PTE is a page table entry.
type PTE uint64

// PTEs is a single table page: 512 entries.
type PTEs [entriesPerPage]PTE

// MapOpts are the access and cache options preserved across a mapping.
type MapOpts struct {
	Writable     bool
	User         bool
	WriteThrough bool
	CacheDisable bool
	Accessed     bool
	Dirty        bool
	Global       bool
	NoExec       bool
	PAT          bool
}

// Valid returns true iff this entry is present.
func (p *PTE) Valid() bool {
	return uint64(*p)&present != 0
}

// IsSuper returns true iff this entry is a huge mapping. Only
// meaningful on entries at the second-from-bottom level; on a leaf the
// same bit is the PAT bit.
func (p *PTE) IsSuper() bool {
	return uint64(*p)&(present|super) == present|super
}

// Clear zeroes this entry.
func (p *PTE) Clear() {
	*p = 0
}

// Address extracts the physical address of a leaf or table entry.
// Only meaningful if Valid returns true.
func (p *PTE) Address() memory.PhysAddr {
	return memory.PhysAddr(uint64(*p) & addressMask)
}

// SuperAddress extracts the physical base of a huge entry, where bit
// 12 is the PAT bit rather than address.
func (p *PTE) SuperAddress() memory.PhysAddr {
	return memory.PhysAddr(uint64(*p) & addressMask &^ superPAT)
}

// Opts extracts the options of a leaf entry.
func (p *PTE) Opts() MapOpts {
	o := p.commonOpts()
	o.PAT = uint64(*p)&pat != 0
	return o
}

// SuperOpts extracts the options of a huge entry, reading the PAT bit
// from its huge-entry position.
func (p *PTE) SuperOpts() MapOpts {
	o := p.commonOpts()
	o.PAT = uint64(*p)&superPAT != 0
	return o
}

func (p *PTE) commonOpts() MapOpts {
	v := uint64(*p)
	return MapOpts{
		Writable:     v&writable != 0,
		User:         v&user != 0,
		WriteThrough: v&writeThrough != 0,
		CacheDisable: v&cacheDisable != 0,
		Accessed:     v&accessed != 0,
		Dirty:        v&dirty != 0,
		Global:       v&global != 0,
		NoExec:       v&executeDisable != 0,
	}
}

// bits encodes the option flags shared by both entry kinds.
func (o MapOpts) bits() uint64 {
	v := uint64(present)
	if o.Writable {
		v |= writable
	}
	if o.User {
		v |= user
	}
	if o.WriteThrough {
		v |= writeThrough
	}
	if o.CacheDisable {
		v |= cacheDisable
	}
	if o.Accessed {
		v |= accessed
	}
	if o.Dirty {
		v |= dirty
	}
	if o.Global {
		v |= global
	}
	if o.NoExec {
		v |= executeDisable
	}
	return v
}

// Set installs a 4 KiB leaf mapping.
func (p *PTE) Set(addr memory.PhysAddr, opts MapOpts) {
	v := uint64(addr)&addressMask | opts.bits()
	if opts.PAT {
		v |= pat
	}
	*p = PTE(v)
}

// SetSuper installs a 2 MiB huge mapping.
func (p *PTE) SetSuper(addr memory.PhysAddr, opts MapOpts) {
	v := uint64(addr)&addressMask&^superPAT | opts.bits() | super
	if opts.PAT {
		v |= superPAT
	}
	*p = PTE(v)
}

// setPageTable points this entry at a child table. Intermediate
// entries are always present and writable; access control lives on the
// leaves.
func (p *PTE) setPageTable(addr memory.PhysAddr) {
	*p = PTE(uint64(addr)&addressMask | present | writable)
}
