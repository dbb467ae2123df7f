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

// Package pagetables builds the 4-level x86_64 address space the
// kernel starts in.
//
// The bootloader executes out of the very memory being mapped, so the
// package guarantees that no operation ever leaves a gap: every public
// call either fully succeeds or fails with the tables exactly as they
// were. A half-built hierarchy cannot be the target of a CR3 switch.
//
// All mutation happens on the single orchestrating call stack; there
// is no locking and nothing here suspends or retries.
package pagetables

import (
	"errors"
	"fmt"

	"github.com/Redstone-OS/ignite/pkg/memory"
)

// ErrUnalignedAddress indicates a base address that is not a multiple
// of the required page size.
var ErrUnalignedAddress = errors.New("base address not page aligned")

// PageTables is a set of page tables rooted in a single physical page.
//
// The root is created once, mutated throughout the boot, and never
// freed: it becomes the kernel's active table after the caller loads
// it into CR3.
type PageTables struct {
	// Allocator is used to allocate table pages.
	Allocator *Allocator

	// root is the top-level table.
	root *PTEs

	// rootPhysical is the cached physical address of the root.
	rootPhysical memory.PhysAddr
}

// New returns a PageTables with a freshly allocated, zero-filled root.
func New(a *Allocator) (*PageTables, error) {
	root, err := a.NewPTEs()
	if err != nil {
		return nil, fmt.Errorf("allocating root table: %w", err)
	}
	return &PageTables{
		Allocator:    a,
		root:         root,
		rootPhysical: a.PhysicalFor(root),
	}, nil
}

// RootAddress returns the physical address of the root table, the
// value the caller loads into CR3 at the hand-off.
func (p *PageTables) RootAddress() memory.PhysAddr {
	return p.rootPhysical
}
