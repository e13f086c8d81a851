// Copyright 2024 The gVisor Authors.
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

package kernel

// Protocol selects the priority-inversion mitigation applied by
// Thread.Prioritize/Deprioritize (spec.md §4.5).
type Protocol int

const (
	// ProtocolNone disables priority inheritance/ceiling entirely.
	ProtocolNone Protocol = iota
	// ProtocolInherit raises a holder's rank to the waiter's rank.
	ProtocolInherit
	// ProtocolCeiling raises a holder's rank to the policy's ceiling
	// sentinel.
	ProtocolCeiling
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "NONE"
	case ProtocolInherit:
		return "INHERIT"
	case ProtocolCeiling:
		return "CEILING"
	default:
		return "UNKNOWN"
	}
}
