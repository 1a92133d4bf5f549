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

// Package spiflash drives serial-command NOR flash over a chip-select
// gated transfer channel: JEDEC identification, fast reads, page-split
// programming and sector/block/chip erase with bounded busy polling.
package spiflash

import (
	"context"
	"fmt"
	"time"

	memprog "github.com/OmniProgProject/go-memprog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Serial NOR command set.
const (
	cmdWriteEnable   = 0x06
	cmdWriteDisable  = 0x04
	cmdReadStatus    = 0x05
	cmdWriteStatus   = 0x01
	cmdReadData      = 0x03
	cmdFastRead      = 0x0B
	cmdPageProgram   = 0x02
	cmdSectorErase   = 0x20
	cmdBlockErase32K = 0x52
	cmdBlockErase64K = 0xD8
	cmdChipErase     = 0xC7
	cmdReadJEDECID   = 0x9F
)

// Default SPI settings.
const (
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0
)

// Default bounds on write-in-progress polling. The poll stays
// synchronous (the caller blocks until the device is ready) but is no
// longer unbounded: expiry yields ErrTimeout.
const (
	DefaultProgramTimeout = 3 * time.Second
	DefaultEraseTimeout   = 120 * time.Second
)

// wipPollInterval paces status-register polls during busy waits.
const wipPollInterval = time.Millisecond

// progressInterval is how often the progress callback fires during an
// erase busy-wait.
const progressInterval = 500 * time.Millisecond

// ProgressFunc is called periodically while an erase is in flight.
type ProgressFunc func(elapsed time.Duration)

// Driver sequences NOR flash commands over any conn.Conn. Each Tx call
// is one chip-select cycle.
//
// Driver is NOT safe for concurrent use.
type Driver struct {
	conn           conn.Conn
	port           spi.PortCloser // nil when built from an existing conn
	name           string
	geom           memprog.Geometry
	programTimeout time.Duration
	eraseTimeout   time.Duration
	progress       ProgressFunc
}

// Option configures a Driver.
type Option func(*Driver)

// WithProgramTimeout bounds the busy poll after a page program.
func WithProgramTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.programTimeout = d }
}

// WithEraseTimeout bounds the busy poll after an erase.
func WithEraseTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.eraseTimeout = d }
}

// WithProgress sets the callback fired every 500 ms during an erase
// busy-wait. The default logs a debug marker.
func WithProgress(fn ProgressFunc) Option {
	return func(drv *Driver) { drv.progress = fn }
}

// New creates a driver over an existing connection.
func New(c conn.Conn, opts ...Option) *Driver {
	d := &Driver{
		conn:           c,
		name:           c.String(),
		geom:           memprog.SPIFlashGeometry,
		programTimeout: DefaultProgramTimeout,
		eraseTimeout:   DefaultEraseTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.progress == nil {
		d.progress = func(elapsed time.Duration) {
			memprog.Debugf("spi-flash erase in progress (%s)", elapsed.Round(progressInterval))
		}
	}
	return d
}

// Open initializes the periph host, opens the named SPI port (e.g.
// "/dev/spidev0.0") and returns a driver on it.
func Open(portName string, opts ...Option) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}
	c, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	d := New(c, opts...)
	d.port = port
	d.name = portName
	return d, nil
}

// Technology returns TechSPIFlash.
func (*Driver) Technology() memprog.Technology { return memprog.TechSPIFlash }

// Geometry returns the page/sector/block granularities in effect.
func (d *Driver) Geometry() memprog.Geometry { return d.geom }

// Close releases the SPI port if this driver opened it.
func (d *Driver) Close() error {
	if d.port != nil {
		if err := d.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
		d.port = nil
	}
	return nil
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

// tx runs one full-duplex chip-select cycle over buf: command bytes
// out, response bytes landing in place behind them.
func (d *Driver) tx(op string, buf []byte) error {
	if err := d.conn.Tx(buf, buf); err != nil {
		return memprog.NewBusWriteError(op, d.name, err)
	}
	return nil
}

// addr24 appends a 24-bit address, MSB first.
func addr24(buf []byte, addr uint32) []byte {
	return append(buf, byte(addr>>16), byte(addr>>8), byte(addr))
}

// Identify issues the JEDEC read-ID command and resolves the three
// returned bytes (manufacturer, device-high, device-low) against the
// vendor tables.
func (d *Driver) Identify(ctx context.Context) (*memprog.DeviceIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := []byte{cmdReadJEDECID, 0, 0, 0}
	if err := d.tx("identify", buf); err != nil {
		return nil, err
	}
	return memprog.DecodeJEDECIdentity(buf[1], buf[2], buf[3]), nil
}

// ReadBytes issues a fast read: command, 3-byte address, one dummy
// byte, then count data bytes.
func (d *Driver) ReadBytes(ctx context.Context, addr uint32, count int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 5+count)
	buf = append(buf, cmdFastRead)
	buf = addr24(buf, addr)
	buf = append(buf, 0) // dummy byte for fast read
	buf = buf[:5+count]
	if err := d.tx("read", buf); err != nil {
		return nil, err
	}
	return buf[5:], nil
}

// WriteBytes programs data starting at addr. A span crossing the
// 256-byte page boundary is split into exactly two page programs; the
// payload must therefore not exceed two pages' worth from the starting
// offset, a carried design limitation of this driver rather than a
// general multi-page writer.
func (d *Driver) WriteBytes(ctx context.Context, addr uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	offset := addr % d.geom.PageSize
	if offset+uint32(len(data)) > 2*d.geom.PageSize {
		return memprog.NewDriverError("program", d.name,
			fmt.Errorf("payload spans more than two pages: %w", memprog.ErrInvalidParameter),
			memprog.ErrorTypePermanent)
	}
	if offset+uint32(len(data)) <= d.geom.PageSize {
		return d.writePage(ctx, addr, data)
	}

	first := d.geom.PageSize - offset
	memprog.Debugf("spi-flash program crosses page boundary, splitting at +%d", first)
	if err := d.writePage(ctx, addr, data[:first]); err != nil {
		return err
	}
	return d.writePage(ctx, addr+first, data[first:])
}

// writePage runs one write-enable + page-program cycle and blocks
// until the write-in-progress bit clears.
func (d *Driver) writePage(ctx context.Context, addr uint32, data []byte) error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	buf := make([]byte, 0, 4+len(data))
	buf = append(buf, cmdPageProgram)
	buf = addr24(buf, addr)
	buf = append(buf, data...)
	if err := d.tx("program", buf); err != nil {
		return err
	}
	return d.waitWriteDone(ctx, "program", d.programTimeout, nil)
}

// Erase issues the erase command for the given scope (4 KiB sector,
// 64 KiB block, or whole chip with no address phase) and blocks until
// the write-in-progress bit clears, firing the progress callback every
// 500 ms.
func (d *Driver) Erase(ctx context.Context, scope memprog.EraseScope, addr uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.writeEnable(); err != nil {
		return err
	}

	var buf []byte
	switch scope {
	case memprog.EraseSector:
		buf = addr24([]byte{cmdSectorErase}, addr)
	case memprog.EraseBlock:
		buf = addr24([]byte{cmdBlockErase64K}, addr)
	case memprog.EraseChip:
		buf = []byte{cmdChipErase}
	default:
		return fmt.Errorf("erase scope %d: %w", scope, memprog.ErrInvalidParameter)
	}
	if err := d.tx("erase", buf); err != nil {
		return err
	}
	return d.waitWriteDone(ctx, "erase", d.eraseTimeout, d.progress)
}

// writeEnable pulses the write-enable latch.
func (d *Driver) writeEnable() error {
	return d.tx("write-enable", []byte{cmdWriteEnable})
}

// readStatusByte reads the status register once.
func (d *Driver) readStatusByte(op string) (byte, error) {
	buf := []byte{cmdReadStatus, 0}
	if err := d.tx(op, buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// waitWriteDone polls the write-in-progress bit until clear. The wait
// is bounded: expiry yields ErrTimeout while preserving the
// synchronous block-until-ready contract.
func (d *Driver) waitWriteDone(ctx context.Context, op string, timeout time.Duration, progress ProgressFunc) error {
	start := time.Now()
	deadline := start.Add(timeout)
	nextProgress := start.Add(progressInterval)

	for {
		status, err := d.readStatusByte(op)
		if err != nil {
			return err
		}
		if status&0x01 == 0 {
			return nil
		}
		now := time.Now()
		if now.After(deadline) {
			return memprog.NewTimeoutError(op, d.name)
		}
		if progress != nil && now.After(nextProgress) {
			progress(now.Sub(start))
			nextProgress = now.Add(progressInterval)
		}
		if err := sleepCtx(ctx, wipPollInterval); err != nil {
			return err
		}
	}
}

// ReadStatus reads and decodes status register 1.
func (d *Driver) ReadStatus(ctx context.Context) (memprog.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := d.readStatusByte("read-status")
	if err != nil {
		return nil, err
	}
	return memprog.DecodeSPIFlashStatus(b), nil
}

// Ensure Driver implements the capability set
var _ memprog.Driver = (*Driver)(nil)
