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

package memprog_test

import (
	"context"
	"testing"

	memprog "github.com/OmniProgProject/go-memprog"
	"github.com/OmniProgProject/go-memprog/eeprom"
	"github.com/OmniProgProject/go-memprog/internal/hwsim"
	"github.com/OmniProgProject/go-memprog/nand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSession wires a session over simulated NAND and EEPROM chips.
func newTestSession(t *testing.T) (*memprog.Session, *hwsim.NANDChip, *hwsim.EEPROM) {
	t.Helper()

	chip := hwsim.NewNANDChip(4)

	bus := hwsim.NewI2CBus()
	dev := hwsim.NewEEPROM(256, 1)
	bus.Add(eeprom.DefaultAddress, dev)
	bus.Add(0x61, hwsim.NewEEPROM(256, 1))

	session := memprog.NewSession(memprog.DriverSet{
		NAND:   nand.New(chip),
		EEPROM: eeprom.New(bus),
	})
	t.Cleanup(func() { _ = session.Close() })
	return session, chip, dev
}

func TestSessionRequiresTechnologySelection(t *testing.T) {
	t.Parallel()
	session, _, _ := newTestSession(t)
	ctx := context.Background()

	_, err := session.ReadIdentity(ctx)
	assert.ErrorIs(t, err, memprog.ErrNoTechnologySelected)

	_, err = session.ReadMemory(ctx, 0, 16)
	assert.ErrorIs(t, err, memprog.ErrNoTechnologySelected)

	err = session.WriteMemory(ctx, 0, []byte{0x00})
	assert.ErrorIs(t, err, memprog.ErrNoTechnologySelected)

	err = session.EraseMemory(ctx, memprog.EraseBlock, 0)
	assert.ErrorIs(t, err, memprog.ErrNoTechnologySelected)

	_, err = session.ReadStatusRegister(ctx)
	assert.ErrorIs(t, err, memprog.ErrNoTechnologySelected)

	err = session.SetBusAddress(0x50)
	assert.ErrorIs(t, err, memprog.ErrNoTechnologySelected)

	assert.Equal(t, memprog.TechNone, session.ActiveTechnology())
}

func TestSessionSelectUnavailableTechnology(t *testing.T) {
	t.Parallel()
	session, _, _ := newTestSession(t)

	err := session.SelectTechnology(context.Background(), memprog.TechSPIFlash)
	assert.ErrorIs(t, err, memprog.ErrTechnologyUnavailable)
	assert.Equal(t, memprog.TechNone, session.ActiveTechnology())
}

func TestSessionSelectNANDIssuesReset(t *testing.T) {
	t.Parallel()
	session, chip, _ := newTestSession(t)

	require.NoError(t, session.SelectTechnology(context.Background(), memprog.TechNAND))
	assert.Equal(t, memprog.TechNAND, session.ActiveTechnology())
	assert.Contains(t, chip.CommandLog, byte(0xFF))
}

func TestSessionBusAddressLifecycle(t *testing.T) {
	t.Parallel()
	session, _, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.SelectTechnology(ctx, memprog.TechEEPROM))

	addr, err := session.BusAddress()
	require.NoError(t, err)
	assert.Equal(t, byte(eeprom.DefaultAddress), addr)

	// An accepted address persists across operations.
	require.NoError(t, session.SetBusAddress(0x61))
	_, err = session.ReadMemory(ctx, 0, 8)
	require.NoError(t, err)
	addr, err = session.BusAddress()
	require.NoError(t, err)
	assert.Equal(t, byte(0x61), addr)

	// A rejected address leaves the prior one in effect.
	err = session.SetBusAddress(0x05)
	assert.ErrorIs(t, err, memprog.ErrInvalidBusAddress)
	addr, err = session.BusAddress()
	require.NoError(t, err)
	assert.Equal(t, byte(0x61), addr)

	// Deselecting the technology resets the address to the default.
	require.NoError(t, session.SelectTechnology(ctx, memprog.TechNAND))
	require.NoError(t, session.SelectTechnology(ctx, memprog.TechEEPROM))
	addr, err = session.BusAddress()
	require.NoError(t, err)
	assert.Equal(t, byte(eeprom.DefaultAddress), addr)
}

func TestSessionBusAddressWrongTechnology(t *testing.T) {
	t.Parallel()
	session, _, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.SelectTechnology(ctx, memprog.TechNAND))
	err := session.SetBusAddress(0x50)
	assert.ErrorIs(t, err, memprog.ErrInvalidParameter)

	_, err = session.BusAddress()
	assert.ErrorIs(t, err, memprog.ErrInvalidParameter)
}

func TestSessionReadNegativeLength(t *testing.T) {
	t.Parallel()
	session, _, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.SelectTechnology(ctx, memprog.TechEEPROM))
	_, err := session.ReadMemory(ctx, 0, -1)
	assert.ErrorIs(t, err, memprog.ErrInvalidParameter)
}

func TestSessionEEPROMRoundTrip(t *testing.T) {
	t.Parallel()
	session, _, dev := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.SelectTechnology(ctx, memprog.TechEEPROM))

	payload := []byte("persistent")
	require.NoError(t, session.WriteMemory(ctx, 0x10, payload))
	got, err := session.ReadMemory(ctx, 0x10, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, payload, dev.Mem[0x10:0x10+len(payload)])
}
