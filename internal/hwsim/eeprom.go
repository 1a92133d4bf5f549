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

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// EEPROMWrite records one data-carrying write transaction: the pointer
// it landed at and the payload after the address phase.
type EEPROMWrite struct {
	Addr uint32
	Data []byte
}

// EEPROM simulates one addressed serial EEPROM: an internal pointer
// set by the address phase of a write, auto-incrementing reads, and a
// write log for inspecting transaction boundaries.
type EEPROM struct {
	// Mem is the array, initially all 0xFF.
	Mem []byte
	// AddrBytes is the address phase width the device expects (1 or 2).
	AddrBytes int
	// WriteLog records every data-carrying write transaction.
	WriteLog []EEPROMWrite

	pointer uint32
}

// NewEEPROM creates a device of the given size expecting addrBytes
// pointer bytes.
func NewEEPROM(size, addrBytes int) *EEPROM {
	e := &EEPROM{
		Mem:       make([]byte, size),
		AddrBytes: addrBytes,
	}
	for i := range e.Mem {
		e.Mem[i] = 0xFF
	}
	return e
}

func (e *EEPROM) write(w []byte) {
	if len(w) < e.AddrBytes {
		// partial address phase: acknowledged, pointer untouched
		return
	}
	var ptr uint32
	for _, b := range w[:e.AddrBytes] {
		ptr = ptr<<8 | uint32(b)
	}
	e.pointer = ptr
	data := w[e.AddrBytes:]
	if len(data) == 0 {
		return
	}
	e.WriteLog = append(e.WriteLog, EEPROMWrite{Addr: ptr, Data: append([]byte(nil), data...)})
	for _, b := range data {
		if e.pointer < uint32(len(e.Mem)) {
			e.Mem[e.pointer] = b
		}
		e.pointer++
	}
}

func (e *EEPROM) read(r []byte) {
	for i := range r {
		if e.pointer < uint32(len(e.Mem)) {
			r[i] = e.Mem[e.pointer]
		} else {
			r[i] = 0xFF
		}
		e.pointer++
	}
}

// I2CBus simulates a two-wire bus with EEPROMs at fixed addresses.
// Transactions to empty addresses fail like an unacknowledged start.
type I2CBus struct {
	devices map[uint16]*EEPROM
	speed   physic.Frequency
}

// NewI2CBus creates an empty simulated bus.
func NewI2CBus() *I2CBus {
	return &I2CBus{devices: make(map[uint16]*EEPROM)}
}

// Add attaches a device at the given 7-bit address.
func (b *I2CBus) Add(addr byte, dev *EEPROM) {
	b.devices[uint16(addr)] = dev
}

// String identifies the simulator for error reporting.
func (*I2CBus) String() string { return "hwsim-i2c" }

// SetSpeed records the requested clock.
func (b *I2CBus) SetSpeed(f physic.Frequency) error {
	b.speed = f
	return nil
}

// Tx runs one write-then-read transaction against the addressed device.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	dev, ok := b.devices[addr]
	if !ok {
		return fmt.Errorf("i2c: no device at 0x%02X", addr)
	}
	if len(w) > 0 {
		dev.write(w)
	}
	if len(r) > 0 {
		dev.read(r)
	}
	return nil
}

// Ensure I2CBus implements i2c.Bus
var _ i2c.Bus = (*I2CBus)(nil)
