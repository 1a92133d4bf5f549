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

package memprog

import "fmt"

// Status is the decoded status of the active technology. Concrete types
// are NANDStatus, SPIFlashStatus and EEPROMStatus.
type Status interface {
	fmt.Stringer
	Technology() Technology
}

// NANDStatus is the decoded NAND status register.
//
// Bit layout: bit 0 = program/erase failed, bit 6 = ready, bit 7 =
// write protection disabled (high means writable).
type NANDStatus struct {
	Raw            byte
	Failed         bool
	Ready          bool
	WriteProtected bool
}

// DecodeNANDStatus maps a raw NAND status byte to named fields.
func DecodeNANDStatus(raw byte) NANDStatus {
	return NANDStatus{
		Raw:            raw,
		Failed:         raw&0x01 != 0,
		Ready:          raw&0x40 != 0,
		WriteProtected: raw&0x80 != 0,
	}
}

// Technology returns TechNAND.
func (NANDStatus) Technology() Technology { return TechNAND }

func (s NANDStatus) String() string {
	state := "busy"
	if s.Ready {
		state = "ready"
	}
	return fmt.Sprintf("nand status 0x%02X: failed=%v %s write-protected=%v",
		s.Raw, s.Failed, state, s.WriteProtected)
}

// SPIFlashStatus is the decoded NOR flash status register (SR1).
//
// Bit layout: bit 0 = write in progress (WIP), bit 1 = write enable
// latch (WEL), bits 2-5 = block protect nibble, bit 7 = status register
// write disable.
type SPIFlashStatus struct {
	Raw              byte
	WriteInProgress  bool
	WriteEnableLatch bool
	BlockProtect     byte
	SRWriteDisabled  bool
}

// DecodeSPIFlashStatus maps a raw NOR status byte to named fields.
func DecodeSPIFlashStatus(raw byte) SPIFlashStatus {
	return SPIFlashStatus{
		Raw:              raw,
		WriteInProgress:  raw&0x01 != 0,
		WriteEnableLatch: raw&0x02 != 0,
		BlockProtect:     (raw >> 2) & 0x0F,
		SRWriteDisabled:  raw&0x80 != 0,
	}
}

// Technology returns TechSPIFlash.
func (SPIFlashStatus) Technology() Technology { return TechSPIFlash }

func (s SPIFlashStatus) String() string {
	return fmt.Sprintf("spi-flash status 0x%02X: wip=%v wel=%v block-protect=%04b sr-locked=%v",
		s.Raw, s.WriteInProgress, s.WriteEnableLatch, s.BlockProtect, s.SRWriteDisabled)
}

// EEPROMStatus reports device presence for addressed EEPROMs, which
// carry no status register. Presence and readiness are inferred from
// bus acknowledgment: a device mid write cycle does not acknowledge.
type EEPROMStatus struct {
	Present bool
	Ready   bool
}

// Technology returns TechEEPROM.
func (EEPROMStatus) Technology() Technology { return TechEEPROM }

func (s EEPROMStatus) String() string {
	return fmt.Sprintf("eeprom status: present=%v ready=%v", s.Present, s.Ready)
}
