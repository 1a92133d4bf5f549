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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeJEDECIdentity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		id               [3]byte
		wantManufacturer string
		wantModel        string
	}{
		{
			name:             "winbond w25q80",
			id:               [3]byte{0xEF, 0x40, 0x14},
			wantManufacturer: "Winbond",
			wantModel:        "W25Q80 (8Mbit)",
		},
		{
			name:             "winbond w25q128",
			id:               [3]byte{0xEF, 0x40, 0x18},
			wantManufacturer: "Winbond",
			wantModel:        "W25Q128 (128Mbit)",
		},
		{
			name:             "winbond unknown density",
			id:               [3]byte{0xEF, 0x40, 0x99},
			wantManufacturer: "Winbond",
			wantModel:        "Unknown W25Q series",
		},
		{
			name:             "winbond non-w25q family",
			id:               [3]byte{0xEF, 0x30, 0x14},
			wantManufacturer: "Winbond",
			wantModel:        "Unknown model",
		},
		{
			name:             "macronix",
			id:               [3]byte{0xC2, 0x20, 0x16},
			wantManufacturer: "Macronix",
			wantModel:        "",
		},
		{
			name:             "unknown vendor",
			id:               [3]byte{0x55, 0x40, 0x14},
			wantManufacturer: "Unknown manufacturer",
			wantModel:        "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id := DecodeJEDECIdentity(tt.id[0], tt.id[1], tt.id[2])
			assert.Equal(t, TechSPIFlash, id.Tech)
			assert.Equal(t, tt.id[:], id.Raw)
			assert.Equal(t, tt.wantManufacturer, id.Manufacturer)
			assert.Equal(t, tt.wantModel, id.Model)
		})
	}
}

func TestDeviceIdentityString(t *testing.T) {
	t.Parallel()

	id := DecodeJEDECIdentity(0xEF, 0x40, 0x14)
	assert.Equal(t, "EF 40 14: Winbond W25Q80 (8Mbit)", id.String())

	scan := &DeviceIdentity{
		Tech: TechEEPROM,
		BusScan: []BusScanEntry{
			{Addr: 0x50, LikelyEEPROM: true},
			{Addr: 0x68},
		},
	}
	assert.Equal(t, "0x50 (likely EEPROM), 0x68", scan.String())

	empty := &DeviceIdentity{Tech: TechEEPROM}
	assert.Equal(t, "no devices found on bus", empty.String())
}
