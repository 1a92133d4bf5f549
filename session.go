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

import (
	"context"
	"fmt"

	"github.com/OmniProgProject/go-memprog/internal/syncutil"
)

// DriverSet holds the drivers a session can switch between. Any field
// may be nil; selecting a technology without a driver fails with
// ErrTechnologyUnavailable.
type DriverSet struct {
	NAND     Driver
	SPIFlash Driver
	EEPROM   Driver
}

// Session exposes the uniform operation contract over one active
// technology at a time. Technology selection and the EEPROM bus address
// persist across operations until explicitly changed; everything else
// is produced fresh per call.
//
// The session serializes its operations with a mutex so it is safe to
// share, but the execution model is a single logical actor: one bus
// transaction at a time, blocking the caller until it completes. There
// is no cancellation of an in-flight program or erase beyond the
// context checks between bus transactions.
type Session struct {
	mu      syncutil.Mutex
	drivers DriverSet
	tech    Technology
	active  Driver
}

// NewSession creates a session over the given drivers. No technology is
// selected initially; every operation fails with
// ErrNoTechnologySelected until SelectTechnology is called.
func NewSession(drivers DriverSet) *Session {
	return &Session{drivers: drivers, tech: TechNone}
}

// SelectTechnology makes tech the active technology. Technology-local
// state of the previously active driver is reset. Selecting TechNAND
// issues a protocol reset before any other operation is valid.
func (s *Session) SelectTechnology(ctx context.Context, tech Technology) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next Driver
	switch tech {
	case TechNAND:
		next = s.drivers.NAND
	case TechSPIFlash:
		next = s.drivers.SPIFlash
	case TechEEPROM:
		next = s.drivers.EEPROM
	case TechNone:
		next = nil
	default:
		return fmt.Errorf("select technology %d: %w", tech, ErrInvalidParameter)
	}
	if tech != TechNone && next == nil {
		return fmt.Errorf("select %s: %w", tech, ErrTechnologyUnavailable)
	}

	if s.active != nil && s.active != next {
		if r, ok := s.active.(StateResetter); ok {
			r.ResetState()
		}
	}

	s.tech = tech
	s.active = next
	Debugf("selected technology %s", tech)

	if r, ok := next.(Resettable); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("reset after selecting %s: %w", tech, err)
		}
	}
	return nil
}

// ActiveTechnology returns the currently selected technology.
func (s *Session) ActiveTechnology() Technology {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tech
}

func (s *Session) driver() (Driver, error) {
	if s.active == nil {
		return nil, ErrNoTechnologySelected
	}
	return s.active, nil
}

// ReadIdentity reads the active device's identity: ID bytes for NAND
// and NOR flash, a bus scan for EEPROM.
func (s *Session) ReadIdentity(ctx context.Context) (*DeviceIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drv, err := s.driver()
	if err != nil {
		return nil, err
	}
	return drv.Identify(ctx)
}

// ReadMemory reads length bytes starting at addr from the active
// device. The core enforces no upper bound on length; request-size
// capping is caller-side policy.
func (s *Session) ReadMemory(ctx context.Context, addr uint32, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drv, err := s.driver()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("read length %d: %w", length, ErrInvalidParameter)
	}
	return drv.ReadBytes(ctx, addr, length)
}

// WriteMemory programs data starting at addr on the active device.
func (s *Session) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drv, err := s.driver()
	if err != nil {
		return err
	}
	return drv.WriteBytes(ctx, addr, data)
}

// EraseMemory erases at the given scope on the active device.
func (s *Session) EraseMemory(ctx context.Context, scope EraseScope, addr uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drv, err := s.driver()
	if err != nil {
		return err
	}
	return drv.Erase(ctx, scope, addr)
}

// ReadStatusRegister reads and decodes the active technology's status.
func (s *Session) ReadStatusRegister(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drv, err := s.driver()
	if err != nil {
		return nil, err
	}
	return drv.ReadStatus(ctx)
}

// SetBusAddress changes the EEPROM target address. It applies only
// while TechEEPROM is active; values outside [0x08, 0x77] are rejected
// and the prior address remains in effect.
func (s *Session) SetBusAddress(addr byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ErrNoTechnologySelected
	}
	if s.tech != TechEEPROM {
		return fmt.Errorf("set bus address on %s: %w", s.tech, ErrInvalidParameter)
	}
	ba, ok := s.active.(BusAddresser)
	if !ok {
		return fmt.Errorf("set bus address: %w", ErrInvalidParameter)
	}
	return ba.SetBusAddress(addr)
}

// BusAddress returns the EEPROM target address currently in effect, or
// an error if EEPROM is not the active technology.
func (s *Session) BusAddress() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tech != TechEEPROM {
		return 0, fmt.Errorf("bus address on %s: %w", s.tech, ErrInvalidParameter)
	}
	ba, ok := s.active.(BusAddresser)
	if !ok {
		return 0, ErrInvalidParameter
	}
	return ba.BusAddress(), nil
}

// Close closes every driver in the set, returning the first error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.tech = TechNone

	var firstErr error
	for _, drv := range []Driver{s.drivers.NAND, s.drivers.SPIFlash, s.drivers.EEPROM} {
		if drv == nil {
			continue
		}
		if err := drv.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s driver: %w", drv.Technology(), err)
		}
	}
	return firstErr
}
