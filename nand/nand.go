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

// Package nand drives parallel-bus NAND flash: command/address/data
// sequencing over the latch lines with ready/busy polling. Small-page
// geometry (512-byte pages, 16 KiB blocks) is assumed.
package nand

import (
	"context"
	"errors"
	"fmt"
	"time"

	memprog "github.com/OmniProgProject/go-memprog"
)

// NAND command set (ONFI legacy small-page opcodes).
const (
	cmdReadID         = 0x90
	cmdReadStatus     = 0x70
	cmdRead           = 0x00
	cmdReadConfirm    = 0x30
	cmdProgram        = 0x80
	cmdProgramConfirm = 0x10
	cmdErase          = 0x60
	cmdEraseConfirm   = 0xD0
	cmdReset          = 0xFF
)

// idLength is the number of identity bytes clocked after read-ID.
const idLength = 5

// DefaultReadyTimeout bounds every ready/busy wait.
const DefaultReadyTimeout = 1000 * time.Millisecond

// readyPollInterval paces the ready/busy line polls.
const readyPollInterval = 50 * time.Microsecond

// Driver sequences NAND protocol operations over a Bus.
//
// Driver is NOT safe for concurrent use; the bus is exclusively owned
// while an operation is in flight.
type Driver struct {
	bus          Bus
	geom         memprog.Geometry
	readyTimeout time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithReadyTimeout overrides the bound on ready/busy waits.
func WithReadyTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.readyTimeout = d }
}

// New creates a NAND driver on the given bus.
func New(bus Bus, opts ...Option) *Driver {
	d := &Driver{
		bus:          bus,
		geom:         memprog.NANDGeometry,
		readyTimeout: DefaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Technology returns TechNAND.
func (*Driver) Technology() memprog.Technology { return memprog.TechNAND }

// Geometry returns the page/block granularities in effect.
func (d *Driver) Geometry() memprog.Geometry { return d.geom }

// Close releases the bus.
func (d *Driver) Close() error {
	return d.bus.Close()
}

// sleepCtx performs a context-aware sleep.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeCommand latches one command byte.
func (d *Driver) writeCommand(cmd byte) error {
	if err := d.bus.SetCLE(true); err != nil {
		return err
	}
	if err := d.bus.WriteByte(cmd); err != nil {
		return err
	}
	return d.bus.SetCLE(false)
}

// writeAddress latches the address phase bytes in order.
func (d *Driver) writeAddress(addr ...byte) error {
	if err := d.bus.SetALE(true); err != nil {
		return err
	}
	for _, b := range addr {
		if err := d.bus.WriteByte(b); err != nil {
			return err
		}
	}
	return d.bus.SetALE(false)
}

// waitReady polls the ready/busy line until the device is idle. The
// wait is bounded by the configured timeout; expiry yields ErrTimeout
// and the operation is reported as possibly incomplete.
func (d *Driver) waitReady(ctx context.Context, op string) error {
	deadline := time.Now().Add(d.readyTimeout)
	for {
		ready, err := d.bus.Ready()
		if err != nil {
			return memprog.NewBusReadError(op, d.bus.String(), err)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return memprog.NewTimeoutError(op, d.bus.String())
		}
		if err := sleepCtx(ctx, readyPollInterval); err != nil {
			return err
		}
	}
}

// Reset issues the protocol reset that must precede any other operation
// after the technology is selected. A ready-wait timeout here is a soft
// failure: it is logged and the caller may proceed.
func (d *Driver) Reset(ctx context.Context) error {
	if err := d.bus.SetCE(true); err != nil {
		return memprog.NewBusWriteError("reset", d.bus.String(), err)
	}
	defer func() { _ = d.bus.SetCE(false) }()

	if err := d.writeCommand(cmdReset); err != nil {
		return memprog.NewBusWriteError("reset", d.bus.String(), err)
	}
	if err := d.waitReady(ctx, "reset"); err != nil {
		if errors.Is(err, memprog.ErrTimeout) {
			memprog.Debugf("nand reset: ready-wait timeout, proceeding")
			return nil
		}
		return err
	}
	return nil
}

// Identify clocks the 5 identity bytes (manufacturer, device, then
// three extension bytes). No presence validation is performed: with no
// chip on the bus the returned bytes are undefined.
func (d *Driver) Identify(ctx context.Context) (*memprog.DeviceIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.bus.SetCE(true); err != nil {
		return nil, memprog.NewBusWriteError("identify", d.bus.String(), err)
	}
	defer func() { _ = d.bus.SetCE(false) }()

	if err := d.writeCommand(cmdReadID); err != nil {
		return nil, memprog.NewBusWriteError("identify", d.bus.String(), err)
	}
	if err := d.writeAddress(0x00); err != nil {
		return nil, memprog.NewBusWriteError("identify", d.bus.String(), err)
	}

	raw := make([]byte, idLength)
	for i := range raw {
		b, err := d.bus.ReadByte()
		if err != nil {
			return nil, memprog.NewBusReadError("identify", d.bus.String(), err)
		}
		raw[i] = b
	}
	return &memprog.DeviceIdentity{Tech: memprog.TechNAND, Raw: raw}, nil
}

// addressPhase returns the 5 address bytes for a page access: column
// low, column high, then three page bytes low to high. The column high
// byte is sent even for page sizes of 256 or less, for protocol
// generality.
func (d *Driver) addressPhase(page, column uint32) []byte {
	return []byte{
		byte(column),
		byte(column >> 8),
		byte(page),
		byte(page >> 8),
		byte(page >> 16),
	}
}

// ReadBytes reads count bytes starting at addr, clocking them
// sequentially out of the page buffer after the read-confirm command.
func (d *Driver) ReadBytes(ctx context.Context, addr uint32, count int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, column := d.geom.PageOf(addr)

	if err := d.bus.SetCE(true); err != nil {
		return nil, memprog.NewBusWriteError("read", d.bus.String(), err)
	}
	defer func() { _ = d.bus.SetCE(false) }()

	if err := d.writeCommand(cmdRead); err != nil {
		return nil, memprog.NewBusWriteError("read", d.bus.String(), err)
	}
	if err := d.writeAddress(d.addressPhase(page, column)...); err != nil {
		return nil, memprog.NewBusWriteError("read", d.bus.String(), err)
	}
	if err := d.writeCommand(cmdReadConfirm); err != nil {
		return nil, memprog.NewBusWriteError("read", d.bus.String(), err)
	}
	if err := d.waitReady(ctx, "read"); err != nil {
		return nil, err
	}

	data := make([]byte, count)
	for i := range data {
		b, err := d.bus.ReadByte()
		if err != nil {
			return nil, memprog.NewBusReadError("read", d.bus.String(), err)
		}
		data[i] = b
	}
	return data, nil
}

// WriteBytes programs data starting at addr. The span must fit within
// a single 512-byte page; no cross-page chaining is attempted and a
// crossing span fails with ErrBoundaryViolation before any bus
// traffic. Success is judged from bit 0 of the post-program status.
func (d *Driver) WriteBytes(ctx context.Context, addr uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	page, column := d.geom.PageOf(addr)
	if column+uint32(len(data)) > d.geom.PageSize {
		return memprog.NewBoundaryViolationError("program", d.bus.String())
	}

	if err := d.bus.SetCE(true); err != nil {
		return memprog.NewBusWriteError("program", d.bus.String(), err)
	}
	defer func() { _ = d.bus.SetCE(false) }()

	if err := d.writeCommand(cmdProgram); err != nil {
		return memprog.NewBusWriteError("program", d.bus.String(), err)
	}
	if err := d.writeAddress(d.addressPhase(page, column)...); err != nil {
		return memprog.NewBusWriteError("program", d.bus.String(), err)
	}
	for _, b := range data {
		if err := d.bus.WriteByte(b); err != nil {
			return memprog.NewBusWriteError("program", d.bus.String(), err)
		}
	}
	if err := d.writeCommand(cmdProgramConfirm); err != nil {
		return memprog.NewBusWriteError("program", d.bus.String(), err)
	}
	if err := d.waitReady(ctx, "program"); err != nil {
		return err
	}

	status, err := d.readStatusByte()
	if err != nil {
		return err
	}
	if status&0x01 != 0 {
		return memprog.NewOperationFailedError("program", d.bus.String())
	}
	return nil
}

// Erase erases the 16 KiB block containing addr. Sector scope is
// treated as block scope: NAND has no smaller erase unit. Chip scope
// is not implemented by this driver.
func (d *Driver) Erase(ctx context.Context, scope memprog.EraseScope, addr uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if scope == memprog.EraseChip {
		return memprog.NewDriverError("erase", d.bus.String(),
			fmt.Errorf("chip erase not supported on NAND: %w", memprog.ErrInvalidParameter),
			memprog.ErrorTypePermanent)
	}
	block := d.geom.BlockOf(addr)

	if err := d.bus.SetCE(true); err != nil {
		return memprog.NewBusWriteError("erase", d.bus.String(), err)
	}
	defer func() { _ = d.bus.SetCE(false) }()

	if err := d.writeCommand(cmdErase); err != nil {
		return memprog.NewBusWriteError("erase", d.bus.String(), err)
	}
	// Erase takes a 3-byte row address phase carrying the block index.
	if err := d.writeAddress(byte(block), byte(block>>8), byte(block>>16)); err != nil {
		return memprog.NewBusWriteError("erase", d.bus.String(), err)
	}
	if err := d.writeCommand(cmdEraseConfirm); err != nil {
		return memprog.NewBusWriteError("erase", d.bus.String(), err)
	}
	if err := d.waitReady(ctx, "erase"); err != nil {
		return err
	}

	status, err := d.readStatusByte()
	if err != nil {
		return err
	}
	if status&0x01 != 0 {
		return memprog.NewOperationFailedError("erase", d.bus.String())
	}
	return nil
}

// readStatusByte issues read-status and clocks one byte. The chip must
// already be selected.
func (d *Driver) readStatusByte() (byte, error) {
	if err := d.writeCommand(cmdReadStatus); err != nil {
		return 0, memprog.NewBusWriteError("read-status", d.bus.String(), err)
	}
	b, err := d.bus.ReadByte()
	if err != nil {
		return 0, memprog.NewBusReadError("read-status", d.bus.String(), err)
	}
	return b, nil
}

// ReadStatus reads and decodes the status register.
func (d *Driver) ReadStatus(ctx context.Context) (memprog.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.bus.SetCE(true); err != nil {
		return nil, memprog.NewBusWriteError("read-status", d.bus.String(), err)
	}
	defer func() { _ = d.bus.SetCE(false) }()

	b, err := d.readStatusByte()
	if err != nil {
		return nil, err
	}
	return memprog.DecodeNANDStatus(b), nil
}

// Ensure Driver implements the capability set
var (
	_ memprog.Driver     = (*Driver)(nil)
	_ memprog.Resettable = (*Driver)(nil)
)
