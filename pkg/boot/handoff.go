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

package boot

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// The hand-off block is the ABI between bootloader and kernel: a
// fixed-layout little-endian record written once into a fresh physical
// page immediately before the jump. Any change to field order or width
// must bump HandoffVersion; the kernel rejects a mismatched version
// rather than guess.
const (
	// HandoffMagic is "REDSTONE" read as a little-endian u64.
	HandoffMagic uint64 = 0x454e4f5453444552

	// HandoffVersion is the current layout version.
	HandoffVersion uint32 = 1

	// HandoffSize is the encoded size of the block in bytes.
	HandoffSize = 100
)

// Field offsets within the encoded block. The layout is packed; the
// kernel-side reader uses the same table.
const (
	offMagic        = 0
	offVersion      = 8
	offFBAddr       = 12
	offFBSize       = 20
	offFBWidth      = 28
	offFBHeight     = 32
	offFBStride     = 36
	offFBFormat     = 40
	offMemoryMap    = 44
	offMemoryMapLen = 52
	offACPIRSDP     = 60
	offKernelBase   = 68
	offKernelSize   = 76
	offModuleBase   = 84
	offModuleSize   = 92
)

var (
	// ErrHandoffShort indicates a buffer smaller than HandoffSize.
	ErrHandoffShort = errors.New("hand-off buffer too short")

	// ErrHandoffMagic indicates a block without the magic signature.
	ErrHandoffMagic = errors.New("bad hand-off magic")

	// ErrHandoffVersion indicates a block with an unsupported layout
	// version.
	ErrHandoffVersion = errors.New("unsupported hand-off version")
)

// FramebufferInfo describes the graphics aperture handed to the
// kernel. A zero value means no framebuffer is available.
type FramebufferInfo struct {
	Addr   uint64
	Size   uint64
	Width  uint32
	Height uint32
	Stride uint32
	Format uint32
}

// FramebufferSource is the platform collaborator that describes the
// active framebuffer. Implementations typically wrap the firmware
// graphics output protocol.
type FramebufferSource interface {
	Describe() FramebufferInfo
}

// HandoffBlock is the decoded form of the bootloader-to-kernel record.
// Created by the orchestrator, written once, read-only from then on;
// ownership transfers to the kernel at the jump.
type HandoffBlock struct {
	Magic   uint64
	Version uint32

	Framebuffer FramebufferInfo

	MemoryMapAddr uint64
	MemoryMapLen  uint64

	ACPIRSDP uint64

	KernelBase uint64
	KernelSize uint64

	ModuleBase uint64
	ModuleSize uint64
}

// EncodeTo writes the block into b, which must hold at least
// HandoffSize bytes.
func (h *HandoffBlock) EncodeTo(b []byte) error {
	if len(b) < HandoffSize {
		return ErrHandoffShort
	}
	le := binary.LittleEndian
	le.PutUint64(b[offMagic:], h.Magic)
	le.PutUint32(b[offVersion:], h.Version)
	le.PutUint64(b[offFBAddr:], h.Framebuffer.Addr)
	le.PutUint64(b[offFBSize:], h.Framebuffer.Size)
	le.PutUint32(b[offFBWidth:], h.Framebuffer.Width)
	le.PutUint32(b[offFBHeight:], h.Framebuffer.Height)
	le.PutUint32(b[offFBStride:], h.Framebuffer.Stride)
	le.PutUint32(b[offFBFormat:], h.Framebuffer.Format)
	le.PutUint64(b[offMemoryMap:], h.MemoryMapAddr)
	le.PutUint64(b[offMemoryMapLen:], h.MemoryMapLen)
	le.PutUint64(b[offACPIRSDP:], h.ACPIRSDP)
	le.PutUint64(b[offKernelBase:], h.KernelBase)
	le.PutUint64(b[offKernelSize:], h.KernelSize)
	le.PutUint64(b[offModuleBase:], h.ModuleBase)
	le.PutUint64(b[offModuleSize:], h.ModuleSize)
	return nil
}

// DecodeHandoff parses an encoded block, rejecting a missing magic or
// a version this layout does not describe.
func DecodeHandoff(b []byte) (*HandoffBlock, error) {
	if len(b) < HandoffSize {
		return nil, ErrHandoffShort
	}
	le := binary.LittleEndian
	h := &HandoffBlock{
		Magic:   le.Uint64(b[offMagic:]),
		Version: le.Uint32(b[offVersion:]),
		Framebuffer: FramebufferInfo{
			Addr:   le.Uint64(b[offFBAddr:]),
			Size:   le.Uint64(b[offFBSize:]),
			Width:  le.Uint32(b[offFBWidth:]),
			Height: le.Uint32(b[offFBHeight:]),
			Stride: le.Uint32(b[offFBStride:]),
			Format: le.Uint32(b[offFBFormat:]),
		},
		MemoryMapAddr: le.Uint64(b[offMemoryMap:]),
		MemoryMapLen:  le.Uint64(b[offMemoryMapLen:]),
		ACPIRSDP:      le.Uint64(b[offACPIRSDP:]),
		KernelBase:    le.Uint64(b[offKernelBase:]),
		KernelSize:    le.Uint64(b[offKernelSize:]),
		ModuleBase:    le.Uint64(b[offModuleBase:]),
		ModuleSize:    le.Uint64(b[offModuleSize:]),
	}
	if h.Magic != HandoffMagic {
		return nil, ErrHandoffMagic
	}
	if h.Version != HandoffVersion {
		return nil, fmt.Errorf("%w: %d", ErrHandoffVersion, h.Version)
	}
	return h, nil
}
