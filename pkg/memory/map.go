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

// RegionKind classifies a physical memory region. The firmware's
// dozens of memory types are collapsed to the categories the kernel
// actually cares about.
type RegionKind uint32

const (
	// RegionUsable is free RAM.
	RegionUsable RegionKind = iota + 1

	// RegionBootloader is in use by the bootloader; the kernel
	// reclaims it once it no longer needs anything the bootloader
	// placed there.
	RegionBootloader

	// RegionKernel holds the kernel image or loaded modules.
	RegionKernel

	// RegionReserved is firmware or hardware reserved. Never touch.
	RegionReserved

	// RegionBadMemory was flagged defective by POST.
	RegionBadMemory
)

// Region is one contiguous physical memory range. Start and page count
// rather than byte bounds: the bootloader operates at 4 KiB
// granularity throughout.
type Region struct {
	Base  PhysAddr
	Pages int
	Kind  RegionKind
}

// End returns the exclusive end address of the region.
func (r Region) End() PhysAddr {
	return r.Base + PhysAddr(r.Pages*PageSize)
}

// Map is the sanitized physical memory map supplied by the platform
// layer. The raw firmware buffer it was derived from is passed through
// to the kernel separately; this form only drives bootloader policy.
type Map struct {
	Regions []Region
}

// MaxPhysical returns the page-aligned ceiling of the highest address
// described by the map, or zero for an empty map. This is the
// identity-map ceiling policy input: the discovered maximum always
// wins over the fixed fallback constant.
func (m *Map) MaxPhysical() PhysAddr {
	var max PhysAddr
	for _, r := range m.Regions {
		if end := r.End(); end > max {
			max = end
		}
	}
	return PhysAddr(AlignUp(uint64(max), PageSize))
}
