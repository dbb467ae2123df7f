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
	"fmt"
)

// Foreign protocol recognizers. Each claims its image format but
// declines to run it: completing these conventions is out of scope,
// and recognizing-but-refusing keeps "wrong protocol" distinguishable
// from "unknown image" for the entry-selection logic.

// Linux boot protocol constants (Documentation/x86/boot.rst).
const (
	linuxHeaderMagic  = 0x53726448 // "HdrS"
	linuxHeaderOffset = 0x202
)

// LinuxProtocol recognizes bzImage kernels.
type LinuxProtocol struct{}

// Name implements Protocol.Name.
func (*LinuxProtocol) Name() string {
	return "linux"
}

// Claims implements Protocol.Claims.
func (*LinuxProtocol) Claims(image []byte) bool {
	if len(image) < linuxHeaderOffset+4 {
		return false
	}
	return binary.LittleEndian.Uint32(image[linuxHeaderOffset:]) == linuxHeaderMagic
}

// Run implements Protocol.Run.
func (p *LinuxProtocol) Run(*Environment, *Request) (*LaunchParams, error) {
	return nil, fmt.Errorf("%w: %s", ErrProtocolUnsupported, p.Name())
}

// Multiboot v1 constants. A compliant loader enters the kernel with
// EAX holding multibootBootloaderMagic and EBX pointing at the info
// record; LaunchParams carries those in AuxRAX/AuxRBX when this
// protocol is completed.
const (
	multibootHeaderMagic     = 0x1badb002
	multibootBootloaderMagic = 0x2badb002

	// The header must sit 4-byte aligned within the first 8192 bytes.
	multibootSearchLimit = 8192
)

// MultibootProtocol recognizes Multiboot v1 kernels.
type MultibootProtocol struct{}

// Name implements Protocol.Name.
func (*MultibootProtocol) Name() string {
	return "multiboot"
}

// Claims implements Protocol.Claims.
func (*MultibootProtocol) Claims(image []byte) bool {
	return hasMultibootHeader(image)
}

// Run implements Protocol.Run.
func (p *MultibootProtocol) Run(*Environment, *Request) (*LaunchParams, error) {
	return nil, fmt.Errorf("%w: %s", ErrProtocolUnsupported, p.Name())
}

// hasMultibootHeader scans the search window for the header magic.
func hasMultibootHeader(image []byte) bool {
	limit := len(image)
	if limit > multibootSearchLimit {
		limit = multibootSearchLimit
	}
	for off := 0; off+4 <= limit; off += 4 {
		if binary.LittleEndian.Uint32(image[off:]) == multibootHeaderMagic {
			return true
		}
	}
	return false
}

// ChainloadProtocol recognizes PE images (other EFI executables).
type ChainloadProtocol struct{}

// Name implements Protocol.Name.
func (*ChainloadProtocol) Name() string {
	return "chainload"
}

// Claims implements Protocol.Claims. A bzImage built with an EFI stub
// is also a PE image; the embedded boot header decides, keeping the
// claim predicates disjoint.
func (*ChainloadProtocol) Claims(image []byte) bool {
	if len(image) < 2 || image[0] != 'M' || image[1] != 'Z' {
		return false
	}
	return !(&LinuxProtocol{}).Claims(image)
}

// Run implements Protocol.Run.
func (p *ChainloadProtocol) Run(*Environment, *Request) (*LaunchParams, error) {
	return nil, fmt.Errorf("%w: %s", ErrProtocolUnsupported, p.Name())
}
