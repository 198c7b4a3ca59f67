// Copyright 2026 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package params centralizes the protocol-level size and gas constants the
// execution engine is built around, the same way go-ethereum keeps chain
// parameters out of the packages that consume them.
package params

// Linear-memory region size limits enforced by vm.ReadRegion and friends.
const (
	MaxStorageKeySize   = 128 * 1024
	MaxStorageValueSize = 128 * 1024
	MaxAddressSize      = 20
	MaxAmountSize       = 32
	MaxCodeSize         = 1024 * 1024
	MaxStringSize       = 4 * 1024
	MaxArgsSize         = 10 * 1024
	MaxReturnValueSize  = 64 * 1024
)

// MaxMemoryPages bounds a guest instance's linear memory, matching the
// 100-page (6.25 MiB) ceiling the engine enforces at instantiation time.
const MaxMemoryPages = 100

// Baseline gas costs charged independently of any per-opcode metering.
const (
	BaseCallCost       = 100_000
	BaseDeployCost     = 3_000_000
	BasePromiseCost    = 100_000
	BaseBytesToHexCost = 10_000
)

// GasPerSecond approximates how much gas a frame could spend per second of
// wall-clock compute. It derives the deadline that backstops a guest loop
// which never crosses a host-import gas-charging boundary (REDESIGN FLAGS
// #1): such a loop is caught by running out of time rather than points.
const GasPerSecond = 50_000_000
