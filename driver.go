// Copyright 2026 The OmniProg Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

// Package memprog provides a uniform operation contract over three
// storage-device protocols: parallel-bus NAND flash, serial-command
// (SPI-style) NOR flash, and addressed EEPROM over a two-wire bus.
//
// Each protocol is implemented by a driver sub-package (nand, spiflash,
// eeprom) behind the Driver interface defined here. A Session selects
// one driver as the active technology and forwards the uniform
// operations (identify, read, write, erase, read-status) to it.
package memprog

import "context"

// Technology identifies one of the supported memory protocols.
type Technology int

const (
	// TechNone means no technology has been selected yet.
	TechNone Technology = iota
	// TechNAND is parallel-bus NAND flash.
	TechNAND
	// TechSPIFlash is serial-command NOR flash.
	TechSPIFlash
	// TechEEPROM is addressed EEPROM on a two-wire bus.
	TechEEPROM
)

// String returns a human-readable technology name.
func (t Technology) String() string {
	switch t {
	case TechNone:
		return "none"
	case TechNAND:
		return "nand"
	case TechSPIFlash:
		return "spi-flash"
	case TechEEPROM:
		return "i2c-eeprom"
	default:
		return "unknown"
	}
}

// EraseScope selects the erase granularity for EraseMemory.
type EraseScope int

const (
	// EraseSector erases the smallest erase unit containing the address.
	EraseSector EraseScope = iota
	// EraseBlock erases the block containing the address.
	EraseBlock
	// EraseChip erases the entire device. No address is consumed.
	EraseChip
)

// String returns a human-readable scope name.
func (s EraseScope) String() string {
	switch s {
	case EraseSector:
		return "sector"
	case EraseBlock:
		return "block"
	case EraseChip:
		return "chip"
	default:
		return "unknown"
	}
}

// Driver is the capability set every memory technology implements.
// Concrete drivers live in the nand, spiflash and eeprom packages.
//
// Drivers are NOT safe for concurrent use. The physical bus is owned
// exclusively by whichever driver is currently active; serialize access
// through a Session or external synchronization.
type Driver interface {
	// Identify reads the device identity (ID bytes or a bus scan,
	// depending on the technology).
	Identify(ctx context.Context) (*DeviceIdentity, error)

	// ReadBytes reads count bytes starting at addr.
	ReadBytes(ctx context.Context, addr uint32, count int) ([]byte, error)

	// WriteBytes programs data starting at addr. Drivers either reject
	// spans crossing their program granularity or split them into
	// granularity-respecting sub-writes; see the driver packages.
	WriteBytes(ctx context.Context, addr uint32, data []byte) error

	// Erase erases at the given scope. The address selects the erase
	// unit for sector and block scope and is ignored for chip scope.
	Erase(ctx context.Context, scope EraseScope, addr uint32) error

	// ReadStatus reads and decodes the technology's status information.
	ReadStatus(ctx context.Context) (Status, error)

	// Technology reports which protocol this driver speaks.
	Technology() Technology

	// Close releases the underlying bus.
	Close() error
}

// Resettable is implemented by drivers that require a protocol reset
// when they become the active technology (NAND).
type Resettable interface {
	Reset(ctx context.Context) error
}

// BusAddresser is implemented by drivers whose target device is chosen
// by a bus address held as session state (EEPROM).
type BusAddresser interface {
	// SetBusAddress changes the target address. Out-of-range values are
	// rejected and the previous address remains in effect.
	SetBusAddress(addr byte) error
	// BusAddress returns the currently targeted address.
	BusAddress() byte
}

// StateResetter is implemented by drivers holding technology-local
// session state that must clear when the technology is deselected.
type StateResetter interface {
	ResetState()
}
