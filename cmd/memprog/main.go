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

// Command memprog is a front end for the programmer library: select a
// memory technology, then identify, read, write, erase or query status
// on the attached chip.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	memprog "github.com/OmniProgProject/go-memprog"
	"github.com/OmniProgProject/go-memprog/detection"
	"github.com/OmniProgProject/go-memprog/eeprom"
	"github.com/OmniProgProject/go-memprog/nand"
	"github.com/OmniProgProject/go-memprog/spiflash"
)

// readCap limits how much each read transaction requests; longer reads
// are issued as multiple transactions.
const readCap = 256

type config struct {
	tech     string
	op       string
	addr     uint32
	count    int
	data     []byte
	scope    memprog.EraseScope
	i2cBus   string
	spiPort  string
	i2cAddr  uint
	nandPins string
	debug    bool
}

// Package-level flag variables
var (
	flagTech     string
	flagOp       string
	flagAddr     string
	flagCount    int
	flagData     string
	flagScope    string
	flagI2CBus   string
	flagSPIPort  string
	flagI2CAddr  uint
	flagNANDPins string
	flagDebug    bool
)

func init() {
	flag.StringVar(&flagTech, "tech", "", "Memory technology: nand, spi-flash or i2c-eeprom")
	flag.StringVar(&flagOp, "op", "identify", "Operation: identify, read, write, erase, status or detect")
	flag.StringVar(&flagAddr, "addr", "0", "Start address (decimal or 0x-prefixed hex)")
	flag.IntVar(&flagCount, "count", readCap, "Number of bytes to read")
	flag.StringVar(&flagData, "data", "", "Hex-encoded payload for write")
	flag.StringVar(&flagScope, "scope", "sector", "Erase scope: sector, block or chip")
	flag.StringVar(&flagI2CBus, "i2c-bus", "/dev/i2c-1", "I2C bus for i2c-eeprom")
	flag.StringVar(&flagSPIPort, "spi-port", "/dev/spidev0.0", "SPI port for spi-flash")
	flag.UintVar(&flagI2CAddr, "i2c-addr", eeprom.DefaultAddress, "EEPROM bus address")
	flag.StringVar(&flagNANDPins, "nand-pins", "",
		"14 comma-separated GPIO names for nand: CLE,ALE,WE,RE,CE,RB,DQ0..DQ7")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() (*config, error) {
	cfg := &config{
		tech:     flagTech,
		op:       flagOp,
		count:    flagCount,
		i2cBus:   flagI2CBus,
		spiPort:  flagSPIPort,
		i2cAddr:  flagI2CAddr,
		nandPins: flagNANDPins,
		debug:    flagDebug,
	}

	addr, err := parseAddr(flagAddr)
	if err != nil {
		return nil, err
	}
	cfg.addr = addr

	if flagData != "" {
		data, err := parseData(flagData)
		if err != nil {
			return nil, err
		}
		cfg.data = data
	}

	scope, err := parseScope(flagScope)
	if err != nil {
		return nil, err
	}
	cfg.scope = scope

	if cfg.debug {
		memprog.SetDebugEnabled(true)
	}
	return cfg, nil
}

// parseAddr accepts decimal or 0x-prefixed hex.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

// parseData decodes a hex payload, tolerating spaces and 0x prefixes.
func parseData(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", "0x", "", "0X", "").Replace(s)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return data, nil
}

func parseScope(s string) (memprog.EraseScope, error) {
	switch strings.ToLower(s) {
	case "sector":
		return memprog.EraseSector, nil
	case "block":
		return memprog.EraseBlock, nil
	case "chip":
		return memprog.EraseChip, nil
	default:
		return 0, fmt.Errorf("unknown erase scope %q", s)
	}
}

func parseTech(s string) (memprog.Technology, error) {
	switch strings.ToLower(s) {
	case "nand":
		return memprog.TechNAND, nil
	case "spi-flash", "spi", "nor":
		return memprog.TechSPIFlash, nil
	case "i2c-eeprom", "eeprom", "i2c":
		return memprog.TechEEPROM, nil
	default:
		return memprog.TechNone, fmt.Errorf("unknown technology %q", s)
	}
}

// parsePins splits the 14-name pin list into a NAND pin configuration.
func parsePins(s string) (nand.PinConfig, error) {
	var cfg nand.PinConfig
	names := strings.Split(s, ",")
	if len(names) != 14 {
		return cfg, fmt.Errorf("expected 14 pin names, got %d", len(names))
	}
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
		if names[i] == "" {
			return cfg, fmt.Errorf("pin name %d is empty", i)
		}
	}
	cfg.CLE, cfg.ALE, cfg.WE, cfg.RE, cfg.CE, cfg.RB = names[0], names[1], names[2], names[3], names[4], names[5]
	copy(cfg.Data[:], names[6:])
	return cfg, nil
}

// openDriver builds the driver for the selected technology.
func openDriver(tech memprog.Technology, cfg *config) (memprog.Driver, error) {
	switch tech {
	case memprog.TechNAND:
		if cfg.nandPins == "" {
			return nil, fmt.Errorf("nand requires -nand-pins")
		}
		pins, err := parsePins(cfg.nandPins)
		if err != nil {
			return nil, err
		}
		bus, err := nand.OpenGPIO(pins)
		if err != nil {
			return nil, err
		}
		return nand.New(bus), nil
	case memprog.TechSPIFlash:
		return spiflash.Open(cfg.spiPort)
	case memprog.TechEEPROM:
		d, err := eeprom.Open(cfg.i2cBus)
		if err != nil {
			return nil, err
		}
		if err := d.SetBusAddress(byte(cfg.i2cAddr)); err != nil {
			_ = d.Close()
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("technology %s has no driver", tech)
	}
}

func run(ctx context.Context, cfg *config) error {
	if cfg.op == "detect" {
		return runDetect(ctx)
	}

	tech, err := parseTech(cfg.tech)
	if err != nil {
		return err
	}
	driver, err := openDriver(tech, cfg)
	if err != nil {
		return err
	}

	var drivers memprog.DriverSet
	switch tech {
	case memprog.TechNAND:
		drivers.NAND = driver
	case memprog.TechSPIFlash:
		drivers.SPIFlash = driver
	case memprog.TechEEPROM:
		drivers.EEPROM = driver
	}
	session := memprog.NewSession(drivers)
	defer func() { _ = session.Close() }()

	if err := session.SelectTechnology(ctx, tech); err != nil {
		return err
	}

	switch cfg.op {
	case "identify":
		id, err := session.ReadIdentity(ctx)
		if err != nil {
			return err
		}
		fmt.Println(id)
	case "read":
		data := make([]byte, 0, cfg.count)
		for len(data) < cfg.count {
			n := min(readCap, cfg.count-len(data))
			chunk, err := session.ReadMemory(ctx, cfg.addr+uint32(len(data)), n)
			if err != nil {
				return err
			}
			data = append(data, chunk...)
		}
		fmt.Print(memprog.Dump(cfg.addr, data))
	case "write":
		if len(cfg.data) == 0 {
			return fmt.Errorf("write requires -data")
		}
		if err := session.WriteMemory(ctx, cfg.addr, cfg.data); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes at 0x%04X\n", len(cfg.data), cfg.addr)
	case "erase":
		if err := session.EraseMemory(ctx, cfg.scope, cfg.addr); err != nil {
			return err
		}
		fmt.Printf("erase (%s) done\n", cfg.scope)
	case "status":
		status, err := session.ReadStatusRegister(ctx)
		if err != nil {
			return err
		}
		fmt.Println(status)
	default:
		return fmt.Errorf("unknown operation %q", cfg.op)
	}
	return nil
}

func runDetect(ctx context.Context) error {
	buses, err := detection.DetectAll(ctx)
	if err != nil {
		return err
	}
	for _, b := range buses {
		fmt.Println(b)
	}
	return nil
}

func main() {
	flag.Parse()

	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
