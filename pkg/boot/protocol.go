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

// Package boot sequences the page-table manager and the ELF loader
// into a ready-to-jump kernel, and owns the hand-off ABI.
package boot

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrProtocolUnknown indicates that no supported protocol claims
	// the candidate image. A configuration error, not a crash.
	ErrProtocolUnknown = errors.New("no boot protocol recognizes the image")

	// ErrProtocolAmbiguous indicates that more than one protocol
	// claimed the image; the claim predicates are expected to be
	// disjoint.
	ErrProtocolAmbiguous = errors.New("multiple boot protocols claim the image")

	// ErrProtocolUnsupported indicates a recognized but unimplemented
	// foreign protocol.
	ErrProtocolUnsupported = errors.New("boot protocol not implemented")
)

// Protocol is one supported boot convention. The set is closed and
// architecturally fixed; see Protocols.
type Protocol interface {
	// Name identifies the protocol in logs and errors.
	Name() string

	// Claims inspects the first bytes of the candidate image and
	// reports whether this protocol handles it. Claim predicates are
	// disjoint across the set.
	Claims(image []byte) bool

	// Run executes the full boot sequence for a claimed image.
	Run(env *Environment, req *Request) (*LaunchParams, error)
}

// Protocols returns the supported protocol set in claim order. The
// set is fixed: a new convention is a code change here, not a plug-in.
func Protocols() []Protocol {
	return []Protocol{
		&LinuxProtocol{},
		&MultibootProtocol{},
		&ChainloadProtocol{},
		&RedstoneProtocol{},
	}
}

// Boot is the single entry point the selection/recovery logic calls
// per attempt. Exactly one protocol must claim the image; the first
// failure anywhere in the sequence aborts the attempt and is reported
// verbatim. Retry policy lives with the caller.
func Boot(env *Environment, req *Request) (*LaunchParams, error) {
	var claimed Protocol
	for _, p := range Protocols() {
		if !p.Claims(req.Kernel) {
			continue
		}
		if claimed != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrProtocolAmbiguous, claimed.Name(), p.Name())
		}
		claimed = p
	}
	if claimed == nil {
		return nil, ErrProtocolUnknown
	}
	logrus.WithField("protocol", claimed.Name()).Info("booting kernel")
	params, err := claimed.Run(env, req)
	if err != nil {
		logrus.WithError(err).WithField("protocol", claimed.Name()).Error("boot attempt failed")
		return nil, err
	}
	return params, nil
}
