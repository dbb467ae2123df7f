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

package elfimage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Redstone-OS/ignite/pkg/memory"
)

// LoadedKernel describes a kernel image placed in physical memory.
// Produced once per boot attempt and never mutated afterward.
type LoadedKernel struct {
	// Base is the physical address of the first byte of the image.
	Base memory.PhysAddr

	// Size is the span of the image in bytes, including
	// zero-initialized data.
	Size uint64

	// Entry is the entry point translated into physical address
	// space: Base plus the entry's offset within the linked span.
	Entry memory.PhysAddr
}

// Load copies the image's loadable segments from src into a freshly
// allocated physical region.
//
// The whole span is allocated in one request and arrives zero-filled,
// which covers every byte a segment's file does not provide: for a
// segment with memsz > filesz the loader never writes past filesz.
// A segment whose file region would read beyond src fails with
// ErrSegmentBounds before anything is copied out of bounds.
func (i *Image) Load(src []byte, frames memory.FrameSource) (*LoadedKernel, error) {
	min, max := i.AddressRange()
	span := max - min
	pages := memory.PagesFor(span)

	base, err := frames.AllocateZeroed(pages)
	if err != nil {
		return nil, fmt.Errorf("allocating %d pages for kernel: %w", pages, err)
	}
	view, err := frames.Slice(base, pages*memory.PageSize)
	if err != nil {
		return nil, fmt.Errorf("mapping kernel region: %w", err)
	}

	for _, s := range i.segs {
		if s.filesz == 0 {
			continue
		}
		end := s.off + s.filesz
		if end < s.off || end > uint64(len(src)) {
			return nil, fmt.Errorf("%w: offset %#x size %#x in %#x-byte image",
				ErrSegmentBounds, s.off, s.filesz, len(src))
		}
		copy(view[s.vaddr-min:], src[s.off:end])
	}

	kernel := &LoadedKernel{
		Base:  base,
		Size:  span,
		Entry: base + memory.PhysAddr(i.entry-min),
	}
	logrus.WithFields(logrus.Fields{
		"base":  fmt.Sprintf("%#x", kernel.Base),
		"size":  fmt.Sprintf("%#x", kernel.Size),
		"entry": fmt.Sprintf("%#x", kernel.Entry),
	}).Info("kernel image loaded")
	return kernel, nil
}
