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

package hwsim

import (
	"fmt"

	"periph.io/x/conn/v3"
)

const (
	norPageSize   = 256
	norSectorSize = 4 * 1024
	norBlockSize  = 64 * 1024
)

// ProgramOp records one page-program transaction seen by the chip.
type ProgramOp struct {
	Addr uint32
	Data []byte
}

// EraseOp records one erase transaction seen by the chip.
type EraseOp struct {
	Cmd  byte
	Addr uint32
}

// SPIFlash simulates a serial NOR flash behind conn.Conn. Every Tx is
// one chip-select cycle: the first written byte selects the command,
// response bytes are filled into the read half in place.
type SPIFlash struct {
	// Mem is the array, initially all 0xFF.
	Mem []byte
	// ID is returned by the JEDEC read-identity command.
	ID [3]byte
	// BusyPolls is how many status reads report write-in-progress
	// after each program or erase.
	BusyPolls int
	// HangBusy keeps the write-in-progress bit set forever.
	HangBusy bool
	// ProgramLog records every page program in arrival order.
	ProgramLog []ProgramOp
	// EraseLog records every erase in arrival order.
	EraseLog []EraseOp

	wel  bool
	busy int
}

// NewSPIFlash creates a simulated NOR chip of the given size.
func NewSPIFlash(size int) *SPIFlash {
	f := &SPIFlash{
		Mem:       make([]byte, size),
		ID:        [3]byte{0xEF, 0x40, 0x14}, // W25Q80
		BusyPolls: 2,
	}
	for i := range f.Mem {
		f.Mem[i] = 0xFF
	}
	return f
}

// String identifies the simulator for error reporting.
func (f *SPIFlash) String() string {
	return fmt.Sprintf("hwsim-nor(%dKiB)", len(f.Mem)/1024)
}

// Duplex reports full duplex, like a real SPI connection.
func (*SPIFlash) Duplex() conn.Duplex { return conn.Full }

func addr24of(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Tx executes one chip-select cycle.
func (f *SPIFlash) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	switch w[0] {
	case 0x9F: // JEDEC identity
		for i := 0; i < 3 && 1+i < len(r); i++ {
			r[1+i] = f.ID[i]
		}
	case 0x06: // write enable
		f.wel = true
	case 0x04: // write disable
		f.wel = false
	case 0x05: // read status register 1
		var s byte
		if f.HangBusy {
			s |= 0x01
		} else if f.busy > 0 {
			s |= 0x01
			f.busy--
		}
		if f.wel {
			s |= 0x02
		}
		if len(r) > 1 {
			r[1] = s
		}
	case 0x0B: // fast read: 3 address bytes + 1 dummy
		if len(w) < 5 {
			break
		}
		addr := addr24of(w[1:4])
		for i := 5; i < len(r); i++ {
			pos := addr + uint32(i-5)
			if pos < uint32(len(f.Mem)) {
				r[i] = f.Mem[pos]
			} else {
				r[i] = 0xFF
			}
		}
	case 0x02: // page program
		if !f.wel || len(w) < 4 {
			break
		}
		addr := addr24of(w[1:4])
		data := append([]byte(nil), w[4:]...)
		f.ProgramLog = append(f.ProgramLog, ProgramOp{Addr: addr, Data: data})
		for i, b := range data {
			pos := addr + uint32(i)
			if pos < uint32(len(f.Mem)) {
				// program can only clear bits
				f.Mem[pos] &= b
			}
		}
		f.wel = false
		f.busy = f.BusyPolls
	case 0x20, 0xD8, 0xC7: // sector, block, chip erase
		if !f.wel {
			break
		}
		var addr uint32
		if w[0] != 0xC7 && len(w) >= 4 {
			addr = addr24of(w[1:4])
		}
		f.EraseLog = append(f.EraseLog, EraseOp{Cmd: w[0], Addr: addr})
		start, span := 0, len(f.Mem)
		switch w[0] {
		case 0x20:
			start, span = int(addr)&^(norSectorSize-1), norSectorSize
		case 0xD8:
			start, span = int(addr)&^(norBlockSize-1), norBlockSize
		}
		for i := start; i < start+span && i < len(f.Mem); i++ {
			f.Mem[i] = 0xFF
		}
		f.wel = false
		f.busy = f.BusyPolls
	}
	return nil
}

// Ensure SPIFlash implements conn.Conn
var _ conn.Conn = (*SPIFlash)(nil)
