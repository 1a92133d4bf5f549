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

// Package hwsim provides simulated memory chips behind the real bus
// interfaces, so the protocol drivers can be exercised without
// hardware: a pin-level NAND chip, a NOR flash on a conn.Conn, and an
// EEPROM bus. The simulators model datasheet sequencing, not timing.
package hwsim

import (
	"fmt"

	"github.com/OmniProgProject/go-memprog/nand"
)

const (
	nandPageSize  = 512
	nandBlockSize = 16 * 1024
)

// readMode tracks what the next data-bus read clocks out.
type readMode int

const (
	readNothing readMode = iota
	readStatusReg
	readIdentity
	readPageData
)

// NANDChip simulates a small-page NAND flash at the pin level. It
// implements nand.Bus: command bytes arrive with CLE asserted, address
// bytes with ALE asserted, everything else is page data.
type NANDChip struct {
	// Mem is the raw array, initially all 0xFF.
	Mem []byte
	// ID is clocked out after the read-identity sequence.
	ID [5]byte
	// FailNextProgram sets the status fail bit on the next program or
	// erase commit.
	FailNextProgram bool
	// HangBusy keeps the ready/busy line busy forever.
	HangBusy bool
	// CommandLog records every command byte latched.
	CommandLog []byte
	// LastEraseAddr records the address phase of the last erase, in
	// the order the bytes were latched.
	LastEraseAddr []byte
	// LastEraseBlock is the block index decoded from the last erase,
	// or -1.
	LastEraseBlock int

	cle      bool
	ale      bool
	selected bool
	lastCmd  byte
	addrBuf  []byte
	pageBuf  []byte
	ptr      uint32
	idIdx    int
	mode     readMode
	failBit  bool
	busy     int
}

// NewNANDChip creates a simulated chip holding blocks erase blocks.
func NewNANDChip(blocks int) *NANDChip {
	c := &NANDChip{
		Mem:            make([]byte, blocks*nandBlockSize),
		ID:             [5]byte{0xEC, 0x76, 0x5A, 0x3F, 0xC0},
		LastEraseBlock: -1,
	}
	for i := range c.Mem {
		c.Mem[i] = 0xFF
	}
	return c
}

// SetCLE asserts or releases the command latch.
func (c *NANDChip) SetCLE(asserted bool) error {
	c.cle = asserted
	return nil
}

// SetALE asserts or releases the address latch.
func (c *NANDChip) SetALE(asserted bool) error {
	c.ale = asserted
	return nil
}

// SetCE selects or deselects the chip.
func (c *NANDChip) SetCE(selected bool) error {
	c.selected = selected
	return nil
}

// WriteByte routes one bus byte to the command, address or data path
// per the latch lines.
func (c *NANDChip) WriteByte(b byte) error {
	if !c.selected {
		return nil // ignored with chip-enable released
	}
	switch {
	case c.cle:
		c.command(b)
	case c.ale:
		c.addrBuf = append(c.addrBuf, b)
	default:
		if c.lastCmd == 0x80 {
			c.pageBuf = append(c.pageBuf, b)
		}
	}
	return nil
}

func (c *NANDChip) command(cmd byte) {
	c.CommandLog = append(c.CommandLog, cmd)
	switch cmd {
	case 0xFF: // reset
		c.lastCmd = 0
		c.addrBuf = nil
		c.pageBuf = nil
		c.mode = readNothing
		c.busy = 1
	case 0x90: // read identity
		c.lastCmd = cmd
		c.addrBuf = nil
		c.idIdx = 0
		c.mode = readIdentity
	case 0x70: // read status
		c.mode = readStatusReg
	case 0x00: // read setup
		c.lastCmd = cmd
		c.addrBuf = nil
	case 0x30: // read confirm
		c.ptr = c.pageAddress()
		c.mode = readPageData
		c.busy = 1
	case 0x80: // program setup
		c.lastCmd = cmd
		c.addrBuf = nil
		c.pageBuf = nil
	case 0x10: // program confirm
		c.commitProgram()
	case 0x60: // erase setup
		c.lastCmd = cmd
		c.addrBuf = nil
	case 0xD0: // erase confirm
		c.commitErase()
	}
}

// pageAddress decodes the 5-byte address phase: column low/high, then
// three page bytes low to high.
func (c *NANDChip) pageAddress() uint32 {
	if len(c.addrBuf) < 5 {
		return 0
	}
	column := uint32(c.addrBuf[0]) | uint32(c.addrBuf[1])<<8
	page := uint32(c.addrBuf[2]) | uint32(c.addrBuf[3])<<8 | uint32(c.addrBuf[4])<<16
	return page*nandPageSize + column
}

func (c *NANDChip) commitProgram() {
	addr := c.pageAddress()
	if c.FailNextProgram {
		c.failBit = true
		c.FailNextProgram = false
	} else {
		c.failBit = false
		for i, b := range c.pageBuf {
			pos := addr + uint32(i)
			if pos < uint32(len(c.Mem)) {
				// program can only clear bits
				c.Mem[pos] &= b
			}
		}
	}
	c.pageBuf = nil
	c.busy = 1
}

func (c *NANDChip) commitErase() {
	c.LastEraseAddr = append([]byte(nil), c.addrBuf...)
	if len(c.addrBuf) < 3 {
		return
	}
	block := int(c.addrBuf[0]) | int(c.addrBuf[1])<<8 | int(c.addrBuf[2])<<16
	c.LastEraseBlock = block
	if c.FailNextProgram {
		c.failBit = true
		c.FailNextProgram = false
	} else {
		c.failBit = false
		start := block * nandBlockSize
		for i := start; i < start+nandBlockSize && i < len(c.Mem); i++ {
			c.Mem[i] = 0xFF
		}
	}
	c.busy = 1
}

// ReadByte clocks out the next byte for the current read mode.
func (c *NANDChip) ReadByte() (byte, error) {
	if !c.selected {
		return 0xFF, nil // floating bus
	}
	switch c.mode {
	case readStatusReg:
		return c.statusByte(), nil
	case readIdentity:
		b := c.ID[c.idIdx%len(c.ID)]
		c.idIdx++
		return b, nil
	case readPageData:
		if c.ptr >= uint32(len(c.Mem)) {
			return 0xFF, nil
		}
		b := c.Mem[c.ptr]
		c.ptr++
		return b, nil
	default:
		return 0xFF, nil
	}
}

func (c *NANDChip) statusByte() byte {
	var s byte
	if c.failBit {
		s |= 0x01
	}
	if c.busy == 0 && !c.HangBusy {
		s |= 0x40 // ready
	}
	return s
}

// Ready samples the simulated ready/busy line. Each poll of a busy
// chip consumes one busy tick, so operations finish after a few polls.
func (c *NANDChip) Ready() (bool, error) {
	if c.HangBusy {
		return false, nil
	}
	if c.busy > 0 {
		c.busy--
		return false, nil
	}
	return true, nil
}

// String identifies the simulator for error reporting.
func (c *NANDChip) String() string {
	return fmt.Sprintf("hwsim-nand(%dKiB)", len(c.Mem)/1024)
}

// Close is a no-op.
func (*NANDChip) Close() error { return nil }

// Ensure NANDChip implements nand.Bus
var _ nand.Bus = (*NANDChip)(nil)
