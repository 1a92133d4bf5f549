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

package nand

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Bus is the parallel NAND interface: three latch/select lines, an
// 8-bit shared data bus with write/read strobes, and the ready/busy
// line. All Set* methods take logical assertion, not electrical level;
// implementations map to the wiring.
//
// The byte primitives carry the timing contract: WriteByte atomically
// presents all 8 bits on the data bus and pulses write-enable for at
// least 1 microsecond; ReadByte asserts read-enable for at least
// 1 microsecond and samples the bus.
type Bus interface {
	// SetCLE asserts or releases the command-latch line.
	SetCLE(asserted bool) error
	// SetALE asserts or releases the address-latch line.
	SetALE(asserted bool) error
	// SetCE selects or deselects the chip.
	SetCE(selected bool) error
	// WriteByte drives one byte onto the data bus with a write strobe.
	WriteByte(b byte) error
	// ReadByte strobes read-enable and samples the data bus.
	ReadByte() (byte, error)
	// Ready samples the ready/busy line: true when idle.
	Ready() (bool, error)
	// String identifies the bus for error reporting.
	String() string
	// Close releases the bus.
	Close() error
}

// strobeWidth is the minimum write/read-enable pulse width.
const strobeWidth = time.Microsecond

// PinConfig names the GPIO lines a GPIOBus runs on, in gpioreg
// notation (e.g. "GPIO17"). Data lists the data bus pins, DQ0 first.
type PinConfig struct {
	CLE  string
	ALE  string
	WE   string
	RE   string
	CE   string
	RB   string
	Data [8]string
}

// GPIOBus drives a raw NAND chip through individual GPIO lines. It
// assumes the conventional wiring: CE, WE and RE are active low, CLE
// and ALE active high, and R/B is low while the device is busy.
type GPIOBus struct {
	cle  gpio.PinOut
	ale  gpio.PinOut
	we   gpio.PinOut
	re   gpio.PinOut
	ce   gpio.PinOut
	rb   gpio.PinIn
	data [8]gpio.PinIO
	name string
	// data pin direction tracking avoids redundant In/Out mode flips
	dataAsInput bool
}

// OpenGPIO initializes the periph host, resolves the named pins and
// puts every line into its idle state (chip deselected, strobes
// released, latches low).
func OpenGPIO(cfg PinConfig) (*GPIOBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	b := &GPIOBus{name: "gpio-nand"}

	pick := func(name, role string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no GPIO pin %q for %s line", name, role)
		}
		return p, nil
	}

	var err error
	if b.cle, err = pick(cfg.CLE, "CLE"); err != nil {
		return nil, err
	}
	if b.ale, err = pick(cfg.ALE, "ALE"); err != nil {
		return nil, err
	}
	if b.we, err = pick(cfg.WE, "WE"); err != nil {
		return nil, err
	}
	if b.re, err = pick(cfg.RE, "RE"); err != nil {
		return nil, err
	}
	if b.ce, err = pick(cfg.CE, "CE"); err != nil {
		return nil, err
	}
	rb, err := pick(cfg.RB, "R/B")
	if err != nil {
		return nil, err
	}
	b.rb = rb
	for i, name := range cfg.Data {
		if b.data[i], err = pick(name, fmt.Sprintf("DQ%d", i)); err != nil {
			return nil, err
		}
	}

	// Idle state: latches low, strobes and chip-enable released (high).
	for _, init := range []struct {
		pin   gpio.PinOut
		level gpio.Level
	}{
		{b.cle, gpio.Low},
		{b.ale, gpio.Low},
		{b.we, gpio.High},
		{b.re, gpio.High},
		{b.ce, gpio.High},
	} {
		if err := init.pin.Out(init.level); err != nil {
			return nil, fmt.Errorf("failed to initialize %s: %w", init.pin, err)
		}
	}
	// R/B is open drain on real parts; pull it up.
	if err := rb.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure R/B line: %w", err)
	}

	return b, nil
}

// SetCLE asserts (high) or releases the command-latch line.
func (b *GPIOBus) SetCLE(asserted bool) error {
	return b.cle.Out(gpio.Level(asserted))
}

// SetALE asserts (high) or releases the address-latch line.
func (b *GPIOBus) SetALE(asserted bool) error {
	return b.ale.Out(gpio.Level(asserted))
}

// SetCE selects (low) or deselects the chip.
func (b *GPIOBus) SetCE(selected bool) error {
	return b.ce.Out(gpio.Level(!selected))
}

func (b *GPIOBus) dataIn() error {
	if b.dataAsInput {
		return nil
	}
	for i, p := range b.data {
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			return fmt.Errorf("failed to turn DQ%d around: %w", i, err)
		}
	}
	b.dataAsInput = true
	return nil
}

// WriteByte presents b on DQ0..DQ7 and pulses write-enable.
func (g *GPIOBus) WriteByte(b byte) error {
	// Out() turns the pin around if it was an input
	g.dataAsInput = false
	for i, p := range g.data {
		if err := p.Out(gpio.Level(b&(1<<i) != 0)); err != nil {
			return fmt.Errorf("failed to drive DQ%d: %w", i, err)
		}
	}
	if err := g.we.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(strobeWidth)
	if err := g.we.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(strobeWidth)
	return nil
}

// ReadByte strobes read-enable and samples DQ0..DQ7.
func (g *GPIOBus) ReadByte() (byte, error) {
	if err := g.dataIn(); err != nil {
		return 0, err
	}
	if err := g.re.Out(gpio.Low); err != nil {
		return 0, err
	}
	time.Sleep(strobeWidth)
	var b byte
	for i, p := range g.data {
		if p.Read() == gpio.High {
			b |= 1 << i
		}
	}
	if err := g.re.Out(gpio.High); err != nil {
		return b, err
	}
	time.Sleep(strobeWidth)
	return b, nil
}

// Ready samples the ready/busy line.
func (b *GPIOBus) Ready() (bool, error) {
	return b.rb.Read() == gpio.High, nil
}

// String identifies the bus for error reporting.
func (b *GPIOBus) String() string {
	return b.name
}

// Close deselects the chip and halts the data pins.
func (b *GPIOBus) Close() error {
	if err := b.ce.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to deselect chip: %w", err)
	}
	for _, p := range b.data {
		_ = p.Halt()
	}
	return nil
}

// Ensure GPIOBus implements Bus
var _ Bus = (*GPIOBus)(nil)
