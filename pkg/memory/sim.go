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

package memory

import "sort"

// simRegion is one contiguous allocation made by a SimFrameSource.
type simRegion struct {
	base PhysAddr
	data []byte
}

// SimFrameSource is a hosted FrameSource backing physical pages with
// ordinary Go buffers and synthetic physical addresses. It stands in
// for the firmware page allocator in tests and in the ignitectl tool.
type SimFrameSource struct {
	// FailAfter, when non-negative, makes AllocateZeroed fail once
	// that many further allocations have succeeded. Used to exercise
	// the no-partial-state guarantees of callers.
	FailAfter int

	next      PhysAddr
	regions   []simRegion
	allocated int
}

// SimBase is the first synthetic physical address handed out. It sits
// inside the low identity-mapped region, like UEFI LoaderData pages.
const SimBase PhysAddr = 8 << 20

// NewSimFrameSource returns an empty simulated frame source.
func NewSimFrameSource() *SimFrameSource {
	return &SimFrameSource{
		FailAfter: -1,
		next:      SimBase,
	}
}

// Allocations returns the number of successful AllocateZeroed calls.
func (s *SimFrameSource) Allocations() int {
	return s.allocated
}

// AllocateZeroed implements FrameSource.AllocateZeroed.
func (s *SimFrameSource) AllocateZeroed(count int) (PhysAddr, error) {
	if count <= 0 {
		return 0, ErrAllocationFailed
	}
	if s.FailAfter == 0 {
		return 0, ErrAllocationFailed
	}
	if s.FailAfter > 0 {
		s.FailAfter--
	}
	base := s.next
	data := make([]byte, count*PageSize)
	s.regions = append(s.regions, simRegion{base: base, data: data})
	s.next += PhysAddr(count * PageSize)
	s.allocated++
	return base, nil
}

// Slice implements FrameSource.Slice.
func (s *SimFrameSource) Slice(addr PhysAddr, length int) ([]byte, error) {
	if length < 0 {
		return nil, ErrOutOfRange
	}
	// Regions are appended in address order; find the first region
	// ending above addr.
	i := sort.Search(len(s.regions), func(i int) bool {
		r := s.regions[i]
		return addr < r.base+PhysAddr(len(r.data))
	})
	if i == len(s.regions) {
		return nil, ErrOutOfRange
	}
	r := s.regions[i]
	if addr < r.base || addr+PhysAddr(length) > r.base+PhysAddr(len(r.data)) {
		return nil, ErrOutOfRange
	}
	off := int(addr - r.base)
	return r.data[off : off+length], nil
}
