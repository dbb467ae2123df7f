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

// Package elfimage parses and loads ELF64 kernel images.
//
// The loader places an image at whatever physical base the frame
// source grants, not at the image's linked address: what matters is
// the span of its loadable segments in the linked address space, and
// the entry point translated by its offset within that span.
package elfimage

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

// Image validation failures. Each mismatch is a distinct error so the
// caller can report exactly what is wrong with a candidate kernel.
var (
	// ErrTruncated indicates a buffer too small to hold an ELF header.
	ErrTruncated = errors.New("image truncated")

	// ErrBadMagic indicates a missing \x7fELF signature.
	ErrBadMagic = errors.New("bad ELF magic")

	// ErrNot64Bit indicates an ELF class other than ELFCLASS64.
	ErrNot64Bit = errors.New("not a 64-bit image")

	// ErrNotLittleEndian indicates big-endian data encoding.
	ErrNotLittleEndian = errors.New("not little-endian")

	// ErrWrongMachine indicates a machine type other than x86_64.
	ErrWrongMachine = errors.New("wrong machine type")

	// ErrNoEntryPoint indicates a zero entry point.
	ErrNoEntryPoint = errors.New("zero entry point")

	// ErrNoLoadableSegments indicates an image with no PT_LOAD
	// segment.
	ErrNoLoadableSegments = errors.New("no loadable segments")

	// ErrSegmentBounds indicates a segment whose file region reads
	// past the end of the source buffer.
	ErrSegmentBounds = errors.New("segment exceeds image bounds")
)

// segment is one loadable program header.
type segment struct {
	vaddr  uint64
	memsz  uint64
	off    uint64
	filesz uint64
}

// Image is a parsed and validated ELF64 kernel image. It records only
// what loading needs; the source bytes are not retained.
type Image struct {
	entry uint64
	segs  []segment
}

// elfMagic is the four-byte ELF signature.
var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Parse validates b as an ELF64 little-endian x86_64 executable and
// returns its parsed form. Nothing is mutated; the returned Image is
// independent of b.
func Parse(b []byte) (*Image, error) {
	if len(b) < elf.EI_NIDENT {
		return nil, ErrTruncated
	}
	// Validate the identification bytes by hand: debug/elf folds all
	// of these into a single parse error, and the caller needs to
	// know which contract the image broke.
	if !bytes.Equal(b[:4], elfMagic) {
		return nil, ErrBadMagic
	}
	if elf.Class(b[elf.EI_CLASS]) != elf.ELFCLASS64 {
		return nil, ErrNot64Bit
	}
	if elf.Data(b[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return nil, ErrNotLittleEndian
	}

	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parsing ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_X86_64 {
		return nil, ErrWrongMachine
	}
	if f.Entry == 0 {
		return nil, ErrNoEntryPoint
	}

	img := &Image{entry: f.Entry}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		img.segs = append(img.segs, segment{
			vaddr:  prog.Vaddr,
			memsz:  prog.Memsz,
			off:    prog.Off,
			filesz: prog.Filesz,
		})
	}
	if len(img.segs) == 0 {
		return nil, ErrNoLoadableSegments
	}
	return img, nil
}

// Entry returns the image's linked virtual entry point.
func (i *Image) Entry() uint64 {
	return i.entry
}

// AddressRange returns the minimum and maximum virtual addresses
// occupied by the image's loadable segments in its own linked address
// space. The span, not the absolute addresses, determines how much
// physical memory the image needs.
func (i *Image) AddressRange() (min, max uint64) {
	min = ^uint64(0)
	for _, s := range i.segs {
		if s.vaddr < min {
			min = s.vaddr
		}
		if end := s.vaddr + s.memsz; end > max {
			max = end
		}
	}
	return min, max
}
