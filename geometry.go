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

// Geometry describes the static addressing granularities of a memory
// technology. A zero field means the technology has no unit of that
// kind.
type Geometry struct {
	// PageSize is the atomic program granularity in bytes.
	PageSize uint32
	// SectorSize is the smallest erase unit in bytes.
	SectorSize uint32
	// BlockSize is the large erase unit in bytes.
	BlockSize uint32
}

// Static geometries per technology. Small-page NAND and 8-byte-page
// EEPROMs are assumed; these are protocol defaults, not probed from
// the device.
var (
	NANDGeometry     = Geometry{PageSize: 512, BlockSize: 16 * 1024}
	SPIFlashGeometry = Geometry{PageSize: 256, SectorSize: 4 * 1024, BlockSize: 64 * 1024}
	EEPROMGeometry   = Geometry{PageSize: 8}
)

// PageOf splits a flat address into page index and in-page offset.
func (g Geometry) PageOf(addr uint32) (page, offset uint32) {
	return addr / g.PageSize, addr % g.PageSize
}

// BlockOf returns the index of the block containing addr.
func (g Geometry) BlockOf(addr uint32) uint32 {
	return addr / g.BlockSize
}
