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

// BootServicesAllocator is the firmware-era allocation handle. It is
// valid only until ExitBootServices is called; after that, every
// allocation through it fails with ErrServicesTornDown and the
// RuntimeAllocator returned from the teardown is the sole source of
// fresh pages.
//
// The two allocator eras are mutually exclusive process-wide states.
// Holding the teardown on the handle itself, and handing back a new
// handle for the new era, keeps "allocate after teardown" a checked
// error on every path instead of silent firmware corruption.
type BootServicesAllocator struct {
	frames   FrameSource
	tornDown bool
}

// NewBootServicesAllocator wraps the firmware frame source in an
// era-checked handle.
func NewBootServicesAllocator(frames FrameSource) *BootServicesAllocator {
	return &BootServicesAllocator{frames: frames}
}

// AllocateZeroed implements FrameSource.AllocateZeroed.
func (a *BootServicesAllocator) AllocateZeroed(count int) (PhysAddr, error) {
	if a.tornDown {
		return 0, ErrServicesTornDown
	}
	return a.frames.AllocateZeroed(count)
}

// Slice implements FrameSource.Slice. Views remain valid after
// teardown: the memory still exists, only the allocation service is
// gone.
func (a *BootServicesAllocator) Slice(addr PhysAddr, length int) ([]byte, error) {
	return a.frames.Slice(addr, length)
}

// ExitBootServices consumes the handle and returns the post-teardown
// allocator, a linear allocator over heapPages pages reserved from the
// firmware immediately before the teardown. The handle is permanently
// invalidated even if the heap reservation fails.
func (a *BootServicesAllocator) ExitBootServices(heapPages int) (*RuntimeAllocator, error) {
	if a.tornDown {
		return nil, ErrServicesTornDown
	}
	base, err := a.frames.AllocateZeroed(heapPages)
	a.tornDown = true
	if err != nil {
		return nil, err
	}
	return &RuntimeAllocator{
		frames: a.frames,
		base:   base,
		next:   base,
		end:    base + PhysAddr(heapPages*PageSize),
	}, nil
}

// RuntimeAllocator is the post-teardown bump allocator. It hands out
// pages from a region reserved before the services teardown and never
// calls back into the firmware.
type RuntimeAllocator struct {
	frames FrameSource
	base   PhysAddr
	next   PhysAddr
	end    PhysAddr
}

// AllocateZeroed implements FrameSource.AllocateZeroed. The heap was
// zero-filled at reservation time and pages are never reused, so no
// re-zeroing is needed.
func (r *RuntimeAllocator) AllocateZeroed(count int) (PhysAddr, error) {
	size := PhysAddr(count * PageSize)
	if count <= 0 || r.next+size > r.end {
		return 0, ErrAllocationFailed
	}
	base := r.next
	r.next += size
	return base, nil
}

// Slice implements FrameSource.Slice.
func (r *RuntimeAllocator) Slice(addr PhysAddr, length int) ([]byte, error) {
	return r.frames.Slice(addr, length)
}

// Remaining returns the number of unallocated pages left in the heap.
func (r *RuntimeAllocator) Remaining() int {
	return int(r.end-r.next) / PageSize
}
