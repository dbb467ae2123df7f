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

// Package memory models the bootloader's view of physical memory: the
// firmware frame source, the post-teardown runtime allocator, and the
// sanitized memory map handed to the kernel.
//
// Physical memory is never touched through bare pointer casts. Every
// access goes through a byte view obtained from the FrameSource that
// produced the region, so a page table or kernel image cannot outlive
// or alias the allocator backing it.
package memory

import "errors"

// PhysAddr is a physical address.
type PhysAddr uint64

// Page geometry.
const (
	// PageSize is the granularity of all frame allocations.
	PageSize = 4096

	// PageMask selects the offset within a page.
	PageMask = PageSize - 1

	// HugePageSize is the span of a single 2 MiB mapping.
	HugePageSize = 2 << 20

	// DefaultIdentityCeiling is the identity-map ceiling assumed when
	// no memory map is available. When a map is present the actual
	// discovered maximum is used instead; the constant is only a
	// fallback and never caps a larger discovered maximum.
	DefaultIdentityCeiling PhysAddr = 8 << 30
)

var (
	// ErrAllocationFailed indicates the frame source is exhausted.
	ErrAllocationFailed = errors.New("frame allocation failed")

	// ErrOutOfRange indicates a view request outside any allocated region.
	ErrOutOfRange = errors.New("physical address out of allocated range")

	// ErrServicesTornDown indicates an allocation attempt on a
	// firmware allocator handle after ExitBootServices consumed it.
	ErrServicesTornDown = errors.New("boot services already torn down")
)

// FrameSource supplies zeroed, page-aligned physical memory.
//
// Implementations must return fully zero-filled regions or an explicit
// error, never partially zeroed memory. Regions returned by successive
// calls never overlap; callers perform no collision detection.
type FrameSource interface {
	// AllocateZeroed returns the base of count fresh zeroed pages.
	AllocateZeroed(count int) (PhysAddr, error)

	// Slice returns a byte view of [addr, addr+length). The view is
	// only valid for memory previously returned by AllocateZeroed on
	// this source and aliases the underlying physical bytes.
	Slice(addr PhysAddr, length int) ([]byte, error)
}

// PagesFor returns the number of pages covering size bytes.
func PagesFor(size uint64) int {
	return int((size + PageMask) / PageSize)
}

// IsPageAligned reports whether addr is a multiple of PageSize.
func IsPageAligned(addr uint64) bool {
	return addr&PageMask == 0
}

// AlignUp rounds addr up to a multiple of align. align must be a power
// of two.
func AlignUp(addr uint64, align uint64) uint64 {
	return (addr + align - 1) &^ (align - 1)
}

// AlignDown rounds addr down to a multiple of align. align must be a
// power of two.
func AlignDown(addr uint64, align uint64) uint64 {
	return addr &^ (align - 1)
}
