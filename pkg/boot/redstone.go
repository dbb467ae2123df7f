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
	"github.com/Redstone-OS/ignite/pkg/elfimage"
)

// RedstoneProtocol is the native protocol: an ELF64 kernel, the
// hand-off block in RDI, stack managed by the kernel.
type RedstoneProtocol struct{}

// Name implements Protocol.Name.
func (*RedstoneProtocol) Name() string {
	return "redstone"
}

// Claims implements Protocol.Claims: any ELF image that no foreign
// convention claimed first.
func (*RedstoneProtocol) Claims(image []byte) bool {
	if len(image) < 4 {
		return false
	}
	if !isELF(image) {
		return false
	}
	// Multiboot kernels are also ELF; their embedded header decides.
	return !hasMultibootHeader(image)
}

// Run implements Protocol.Run.
func (*RedstoneProtocol) Run(env *Environment, req *Request) (*LaunchParams, error) {
	img, err := elfimage.Parse(req.Kernel)
	if err != nil {
		return nil, err
	}
	mapped, err := NewPipeline(env).IdentityMap()
	if err != nil {
		return nil, err
	}
	loaded, err := mapped.LoadKernel(img, req.Kernel)
	if err != nil {
		return nil, err
	}
	ready, err := loaded.ReserveScratch()
	if err != nil {
		return nil, err
	}
	return ready.Handoff(req)
}

// isELF reports the \x7fELF signature.
func isELF(image []byte) bool {
	return len(image) >= 4 &&
		image[0] == 0x7f && image[1] == 'E' && image[2] == 'L' && image[3] == 'F'
}
