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

import (
	"fmt"
	"strings"
)

// BusScanEntry is one responding address found by an EEPROM bus scan.
type BusScanEntry struct {
	Addr byte
	// LikelyEEPROM is set for responders in the conventional EEPROM
	// address window 0x50-0x57.
	LikelyEEPROM bool
}

// DeviceIdentity is the result of an identify operation. Raw holds the
// ID bytes in the order they were clocked off the bus (5 for NAND, 3
// for NOR flash); BusScan holds the responding addresses for EEPROM.
// Identities are produced fresh per call and never retained.
type DeviceIdentity struct {
	Tech         Technology
	Raw          []byte
	Manufacturer string
	Model        string
	BusScan      []BusScanEntry
}

// String renders the identity for display.
func (id *DeviceIdentity) String() string {
	if id.Tech == TechEEPROM {
		if len(id.BusScan) == 0 {
			return "no devices found on bus"
		}
		var sb strings.Builder
		for i, e := range id.BusScan {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "0x%02X", e.Addr)
			if e.LikelyEEPROM {
				sb.WriteString(" (likely EEPROM)")
			}
		}
		return sb.String()
	}

	hex := make([]string, len(id.Raw))
	for i, b := range id.Raw {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	s := strings.Join(hex, " ")
	if id.Manufacturer != "" {
		s += ": " + id.Manufacturer
		if id.Model != "" {
			s += " " + id.Model
		}
	}
	return s
}

// JEDEC manufacturer codes seen on common NOR flash parts.
var jedecManufacturers = map[byte]string{
	0x01: "Spansion/Cypress",
	0x20: "Micron/ST",
	0xBF: "SST",
	0xC2: "Macronix",
	0xEF: "Winbond",
}

// Winbond W25Q family density codes (device byte 1 = 0x40).
var winbondW25QModels = map[byte]string{
	0x14: "W25Q80 (8Mbit)",
	0x15: "W25Q16 (16Mbit)",
	0x16: "W25Q32 (32Mbit)",
	0x17: "W25Q64 (64Mbit)",
	0x18: "W25Q128 (128Mbit)",
}

// DecodeJEDECIdentity resolves a 3-byte JEDEC read-ID response
// (manufacturer, device-high, device-low) to a vendor name and, for the
// densities we know, a named part. Unmatched vendors and densities
// resolve to explicit "unknown" strings rather than empty fields.
func DecodeJEDECIdentity(manufacturer, device1, device2 byte) *DeviceIdentity {
	id := &DeviceIdentity{
		Tech: TechSPIFlash,
		Raw:  []byte{manufacturer, device1, device2},
	}

	vendor, ok := jedecManufacturers[manufacturer]
	if !ok {
		id.Manufacturer = "Unknown manufacturer"
		return id
	}
	id.Manufacturer = vendor

	if manufacturer != 0xEF {
		return id
	}

	// Winbond parts carry an exact density table for the W25Q family.
	if device1 != 0x40 {
		id.Model = "Unknown model"
		return id
	}
	if model, ok := winbondW25QModels[device2]; ok {
		id.Model = model
	} else {
		id.Model = "Unknown W25Q series"
	}
	return id
}
