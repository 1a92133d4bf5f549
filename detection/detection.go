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

// Package detection enumerates the host buses each memory technology
// could run on: two-wire buses for EEPROMs, SPI ports for NOR flash,
// and raw GPIO banks for parallel NAND. Enumeration is passive; no
// device traffic is generated.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	memprog "github.com/OmniProgProject/go-memprog"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// BusInfo describes one candidate bus for a technology.
type BusInfo struct {
	// Tech is the memory technology this bus could carry.
	Tech memprog.Technology
	// Path is the name to pass to the matching driver's Open (e.g.
	// "/dev/i2c-1", "/dev/spidev0.0"). Empty for the GPIO bank.
	Path string
	// Name is a human-readable description.
	Name string
	// Aliases lists alternate names the registry accepts.
	Aliases []string
}

// String returns a human-readable representation of the bus.
func (b BusInfo) String() string {
	if b.Path == "" {
		return fmt.Sprintf("%s: %s", b.Tech, b.Name)
	}
	return fmt.Sprintf("%s: %s (%s)", b.Tech, b.Name, b.Path)
}

// Detector enumerates buses for one technology.
type Detector interface {
	// Detect lists candidate buses.
	Detect(ctx context.Context) ([]BusInfo, error)
	// Technology returns the technology this detector serves.
	Technology() memprog.Technology
}

// ErrNoBusesFound indicates no candidate buses were detected.
var ErrNoBusesFound = errors.New("no candidate buses found")

var (
	registryMu sync.Mutex
	registry   []Detector
)

// Register adds a detector. The built-in detectors are registered at
// init; tests and embedders may add their own.
func Register(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

func init() {
	Register(&i2cDetector{})
	Register(&spiDetector{})
	Register(&gpioDetector{})
}

func detectors(techs []memprog.Technology) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(techs) == 0 {
		return append([]Detector(nil), registry...)
	}
	var filtered []Detector
	for _, d := range registry {
		for _, t := range techs {
			if d.Technology() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectResult struct {
	err   error
	buses []BusInfo
}

// DetectAll enumerates buses for the given technologies (all when
// empty), running the detectors in parallel. Buses are returned even
// when some detectors fail; with nothing found, the first detector
// error or ErrNoBusesFound is returned.
func DetectAll(ctx context.Context, techs ...memprog.Technology) ([]BusInfo, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	ds := detectors(techs)
	if len(ds) == 0 {
		return nil, errors.New("no detectors for requested technologies")
	}

	results := make(chan detectResult, len(ds))
	for _, d := range ds {
		go func(d Detector) {
			buses, err := d.Detect(ctx)
			results <- detectResult{err: err, buses: buses}
		}(d)
	}

	var all []BusInfo
	var errs []error
	for range ds {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				all = append(all, res.buses...)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(all) > 0 {
		return all, nil
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return nil, ErrNoBusesFound
}

// i2cDetector lists registered two-wire buses as EEPROM candidates.
type i2cDetector struct{}

func (*i2cDetector) Technology() memprog.Technology { return memprog.TechEEPROM }

func (*i2cDetector) Detect(ctx context.Context) ([]BusInfo, error) {
	var buses []BusInfo
	for _, ref := range i2creg.All() {
		if err := ctx.Err(); err != nil {
			return buses, err
		}
		buses = append(buses, BusInfo{
			Tech:    memprog.TechEEPROM,
			Path:    ref.Name,
			Name:    fmt.Sprintf("I2C bus %d", ref.Number),
			Aliases: ref.Aliases,
		})
	}
	if len(buses) == 0 {
		return nil, ErrNoBusesFound
	}
	return buses, nil
}

// spiDetector lists registered SPI ports as NOR flash candidates.
type spiDetector struct{}

func (*spiDetector) Technology() memprog.Technology { return memprog.TechSPIFlash }

func (*spiDetector) Detect(ctx context.Context) ([]BusInfo, error) {
	var buses []BusInfo
	for _, ref := range spireg.All() {
		if err := ctx.Err(); err != nil {
			return buses, err
		}
		buses = append(buses, BusInfo{
			Tech:    memprog.TechSPIFlash,
			Path:    ref.Name,
			Name:    fmt.Sprintf("SPI port %d", ref.Number),
			Aliases: ref.Aliases,
		})
	}
	if len(buses) == 0 {
		return nil, ErrNoBusesFound
	}
	return buses, nil
}

// gpioDetector reports whether the host exposes enough GPIO lines for
// the 14-pin parallel NAND hookup.
type gpioDetector struct{}

// nandPinCount is CLE, ALE, WE, RE, CE, R/B plus 8 data lines.
const nandPinCount = 14

func (*gpioDetector) Technology() memprog.Technology { return memprog.TechNAND }

func (*gpioDetector) Detect(ctx context.Context) ([]BusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pins := gpioreg.All()
	if len(pins) < nandPinCount {
		return nil, ErrNoBusesFound
	}
	return []BusInfo{{
		Tech: memprog.TechNAND,
		Name: fmt.Sprintf("GPIO bank (%d lines)", len(pins)),
	}}, nil
}
