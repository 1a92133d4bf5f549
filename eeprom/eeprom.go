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

// Package eeprom drives addressed EEPROMs on a two-wire bus: pointer
// writes followed by sequential reads, page-wrap-safe chunked writes
// with a fixed settle time, and bus presence scanning.
package eeprom

import (
	"context"
	"fmt"
	"time"

	memprog "github.com/OmniProgProject/go-memprog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the conventional EEPROM bus address.
	DefaultAddress = 0x50

	// MinAddress and MaxAddress bound the valid 7-bit target range.
	MinAddress = 0x08
	MaxAddress = 0x77

	// Standard-mode bus clock.
	busSpeed = 100 * physic.KiloHertz

	// readChunkSize caps each pointer-write + sequential-read cycle.
	readChunkSize = 16
)

// AddrWidth selects how the address phase width is chosen.
type AddrWidth int

const (
	// AddrAuto picks a 1-byte phase for addresses up to 255 and a
	// 2-byte (MSB-first) phase above, decided per call from the address
	// value. This matches devices only by accident of address range;
	// fix the width for a known part.
	AddrAuto AddrWidth = iota
	// Addr8Bit always sends a 1-byte address phase.
	Addr8Bit
	// Addr16Bit always sends a 2-byte MSB-first address phase.
	Addr16Bit
)

// Config holds the per-device knobs. Erase fill windows are defaults,
// not probed capacity; override them for a known part.
type Config struct {
	// PageSize is the write page granularity in bytes.
	PageSize uint32
	// WriteCycleTime is the fixed settle delay after each page write.
	WriteCycleTime time.Duration
	// AddrWidth selects the address phase width policy.
	AddrWidth AddrWidth
	// ChipEraseWindow is the span filled from address 0 by a chip
	// erase.
	ChipEraseWindow uint32
	// SectorEraseSize is the span filled by a sector erase.
	SectorEraseSize uint32
	// BlockEraseSize is the span filled by a block erase.
	BlockEraseSize uint32
}

// DefaultConfig returns the defaults for a small 8-byte-page part.
func DefaultConfig() Config {
	return Config{
		PageSize:        memprog.EEPROMGeometry.PageSize,
		WriteCycleTime:  5 * time.Millisecond,
		AddrWidth:       AddrAuto,
		ChipEraseWindow: 32 * 1024,
		SectorEraseSize: 256,
		BlockEraseSize:  4 * 1024,
	}
}

// Driver reads and writes one addressed EEPROM at a time. The target
// bus address is session state: it persists across operations until
// changed and resets to the default when the technology is deselected.
//
// Driver is NOT safe for concurrent use.
type Driver struct {
	bus    i2c.Bus
	closer i2c.BusCloser // nil when built from an existing bus
	name   string
	addr   byte
	cfg    Config
}

// Option configures a Driver.
type Option func(*Driver)

// WithConfig replaces the whole device configuration.
func WithConfig(cfg Config) Option {
	return func(d *Driver) { d.cfg = cfg }
}

// WithAddrWidth fixes the address phase width policy.
func WithAddrWidth(w AddrWidth) Option {
	return func(d *Driver) { d.cfg.AddrWidth = w }
}

// WithPageSize overrides the write page granularity.
func WithPageSize(size uint32) Option {
	return func(d *Driver) { d.cfg.PageSize = size }
}

// WithWriteCycleTime overrides the settle delay after each page write.
func WithWriteCycleTime(t time.Duration) Option {
	return func(d *Driver) { d.cfg.WriteCycleTime = t }
}

// WithEraseWindows overrides the chip/sector/block erase fill spans.
func WithEraseWindows(chip, sector, block uint32) Option {
	return func(d *Driver) {
		d.cfg.ChipEraseWindow = chip
		d.cfg.SectorEraseSize = sector
		d.cfg.BlockEraseSize = block
	}
}

// New creates a driver over an existing bus, targeting the default
// address.
func New(bus i2c.Bus, opts ...Option) *Driver {
	d := &Driver{
		bus:  bus,
		name: bus.String(),
		addr: DefaultAddress,
		cfg:  DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open initializes the periph host and opens the named bus (e.g.
// "/dev/i2c-1").
func Open(busName string, opts ...Option) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(busSpeed) // Ignore error, continue with default speed
	d := New(bus, opts...)
	d.closer = bus
	d.name = busName
	return d, nil
}

// Technology returns TechEEPROM.
func (*Driver) Technology() memprog.Technology { return memprog.TechEEPROM }

// Close releases the bus if this driver opened it.
func (d *Driver) Close() error {
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
		d.closer = nil
	}
	return nil
}

// SetBusAddress changes the target address. Values outside
// [0x08, 0x77] are rejected and the prior address remains in effect.
func (d *Driver) SetBusAddress(addr byte) error {
	if addr < MinAddress || addr > MaxAddress {
		return fmt.Errorf("bus address 0x%02X: %w", addr, memprog.ErrInvalidBusAddress)
	}
	d.addr = addr
	memprog.Debugf("eeprom target address set to 0x%02X", addr)
	return nil
}

// BusAddress returns the currently targeted address.
func (d *Driver) BusAddress() byte {
	return d.addr
}

// ResetState restores the default target address. Called when the
// technology is deselected.
func (d *Driver) ResetState() {
	d.addr = DefaultAddress
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

// probe checks whether addr acknowledges a 1-byte read.
func (d *Driver) probe(addr byte) bool {
	var b [1]byte
	return d.bus.Tx(uint16(addr), nil, b[:]) == nil
}

// addressPhase builds the pointer bytes for addr per the configured
// width policy.
func (d *Driver) addressPhase(addr uint32) []byte {
	wide := false
	switch d.cfg.AddrWidth {
	case Addr16Bit:
		wide = true
	case Addr8Bit:
		wide = false
	case AddrAuto:
		wide = addr > 0xFF
	}
	if wide {
		return []byte{byte(addr >> 8), byte(addr)}
	}
	return []byte{byte(addr)}
}

// ScanBus probes every 7-bit address in [0x08, 0x78). Responders in
// [0x50, 0x57] are flagged as likely EEPROMs.
func (d *Driver) ScanBus(ctx context.Context) ([]memprog.BusScanEntry, error) {
	var found []memprog.BusScanEntry
	for addr := byte(MinAddress); addr < MaxAddress+1; addr++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if !d.probe(addr) {
			continue
		}
		found = append(found, memprog.BusScanEntry{
			Addr:         addr,
			LikelyEEPROM: addr >= 0x50 && addr <= 0x57,
		})
	}
	return found, nil
}

// Identify runs a bus scan; addressed EEPROMs carry no ID register.
func (d *Driver) Identify(ctx context.Context) (*memprog.DeviceIdentity, error) {
	scan, err := d.ScanBus(ctx)
	if err != nil {
		return nil, err
	}
	return &memprog.DeviceIdentity{Tech: memprog.TechEEPROM, BusScan: scan}, nil
}

// ReadBytes reads count bytes starting at addr, in chunks of at most
// 16 bytes: each chunk writes the address phase alone to set the
// device's internal pointer, then issues a read of the chunk length.
func (d *Driver) ReadBytes(ctx context.Context, addr uint32, count int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.probe(d.addr) {
		return nil, memprog.NewBusAbsentError("read", d.target())
	}

	data := make([]byte, count)
	for off := 0; off < count; off += readChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(readChunkSize, count-off)
		cur := addr + uint32(off)

		if err := d.bus.Tx(uint16(d.addr), d.addressPhase(cur), nil); err != nil {
			return nil, memprog.NewBusWriteError("read", d.target(), err)
		}
		if err := d.bus.Tx(uint16(d.addr), nil, data[off:off+n]); err != nil {
			return nil, memprog.NewBusReadError("read", d.target(), err)
		}
	}
	return data, nil
}

// WriteBytes programs data starting at addr, transparently split so no
// single transaction crosses the page boundary: each chunk is capped
// at the remaining room in its page, sent as one address-phase + data
// transaction, and followed by the fixed write-cycle settle delay.
func (d *Driver) WriteBytes(ctx context.Context, addr uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.probe(d.addr) {
		return memprog.NewBusAbsentError("write", d.target())
	}

	written := uint32(0)
	remaining := uint32(len(data))
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := addr + written
		pageOffset := cur % d.cfg.PageSize
		n := min(d.cfg.PageSize-pageOffset, remaining)

		tx := append(d.addressPhase(cur), data[written:written+n]...)
		if err := d.bus.Tx(uint16(d.addr), tx, nil); err != nil {
			return memprog.NewBusWriteError("write", d.target(), err)
		}
		// Fixed settle time for the internal write cycle, not ack polling
		if err := sleepCtx(ctx, d.cfg.WriteCycleTime); err != nil {
			return err
		}

		written += n
		remaining -= n
	}
	return nil
}

// Erase fills a window with 0xFF through the page-chunked writer.
// Chip scope fills the configured window from address 0 regardless of
// actual device capacity; sector and block scopes fill their
// configured spans from addr.
func (d *Driver) Erase(ctx context.Context, scope memprog.EraseScope, addr uint32) error {
	var start, size uint32
	switch scope {
	case memprog.EraseChip:
		start, size = 0, d.cfg.ChipEraseWindow
	case memprog.EraseSector:
		start, size = addr, d.cfg.SectorEraseSize
	case memprog.EraseBlock:
		start, size = addr, d.cfg.BlockEraseSize
	default:
		return fmt.Errorf("erase scope %d: %w", scope, memprog.ErrInvalidParameter)
	}

	fill := make([]byte, d.cfg.PageSize)
	for i := range fill {
		fill[i] = 0xFF
	}
	for off := uint32(0); off < size; off += d.cfg.PageSize {
		n := min(d.cfg.PageSize, size-off)
		if err := d.WriteBytes(ctx, start+off, fill[:n]); err != nil {
			return err
		}
	}
	return nil
}

// ReadStatus reports presence and readiness from bus acknowledgment:
// a device mid write cycle does not acknowledge the pointer write.
func (d *Driver) ReadStatus(ctx context.Context) (memprog.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status := memprog.EEPROMStatus{Present: d.probe(d.addr)}
	if status.Present {
		status.Ready = d.bus.Tx(uint16(d.addr), []byte{0x00}, nil) == nil
	}
	return status, nil
}

// target renders "bus@addr" for error reporting.
func (d *Driver) target() string {
	return fmt.Sprintf("%s@0x%02X", d.name, d.addr)
}

// Ensure Driver implements the capability set plus session state hooks
var (
	_ memprog.Driver        = (*Driver)(nil)
	_ memprog.BusAddresser  = (*Driver)(nil)
	_ memprog.StateResetter = (*Driver)(nil)
)
