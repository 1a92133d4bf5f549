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

package spiflash_test

import (
	"context"
	"testing"
	"time"

	memprog "github.com/OmniProgProject/go-memprog"
	"github.com/OmniProgProject/go-memprog/internal/hwsim"
	"github.com/OmniProgProject/go-memprog/spiflash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T, opts ...spiflash.Option) (*spiflash.Driver, *hwsim.SPIFlash) {
	t.Helper()
	chip := hwsim.NewSPIFlash(1 << 20)
	return spiflash.New(chip, opts...), chip
}

func TestIdentify(t *testing.T) {
	t.Parallel()
	d, _ := newTestDriver(t)

	id, err := d.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0x40, 0x14}, id.Raw)
	assert.Equal(t, "Winbond", id.Manufacturer)
	assert.Equal(t, "W25Q80 (8Mbit)", id.Model)
}

func TestReadBytes(t *testing.T) {
	t.Parallel()
	d, chip := newTestDriver(t)
	copy(chip.Mem[0x1000:], "fast read data")

	got, err := d.ReadBytes(context.Background(), 0x1000, 14)
	require.NoError(t, err)
	assert.Equal(t, []byte("fast read data"), got)
}

func TestWriteWithinPage(t *testing.T) {
	t.Parallel()
	d, chip := newTestDriver(t)
	ctx := context.Background()

	payload := []byte("single page")
	require.NoError(t, d.WriteBytes(ctx, 0x100, payload))

	require.Len(t, chip.ProgramLog, 1)
	assert.Equal(t, uint32(0x100), chip.ProgramLog[0].Addr)

	got, err := d.ReadBytes(ctx, 0x100, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteSplitsAtPageBoundary(t *testing.T) {
	t.Parallel()
	d, chip := newTestDriver(t)
	ctx := context.Background()

	// 12 bytes at 250 cross the 256-byte page end: exactly two programs,
	// split at the boundary, reconstruct the payload contiguously.
	payload := []byte("ABCDEFGHIJKL")
	require.NoError(t, d.WriteBytes(ctx, 250, payload))

	require.Len(t, chip.ProgramLog, 2)
	assert.Equal(t, uint32(250), chip.ProgramLog[0].Addr)
	assert.Equal(t, []byte("ABCDEF"), chip.ProgramLog[0].Data)
	assert.Equal(t, uint32(256), chip.ProgramLog[1].Addr)
	assert.Equal(t, []byte("GHIJKL"), chip.ProgramLog[1].Data)

	got, err := d.ReadBytes(ctx, 250, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteRejectsOverTwoPages(t *testing.T) {
	t.Parallel()
	d, chip := newTestDriver(t)

	// offset 100 + 500 bytes needs three pages.
	err := d.WriteBytes(context.Background(), 100, make([]byte, 500))
	assert.ErrorIs(t, err, memprog.ErrInvalidParameter)
	assert.Empty(t, chip.ProgramLog)
}

func TestEraseScopes(t *testing.T) {
	t.Parallel()
	d, chip := newTestDriver(t)
	ctx := context.Background()

	require.NoError(t, d.WriteBytes(ctx, 0x0010, []byte{0x00}))
	require.NoError(t, d.Erase(ctx, memprog.EraseSector, 0x0010))
	require.NoError(t, d.Erase(ctx, memprog.EraseBlock, 0x2_0000))
	require.NoError(t, d.Erase(ctx, memprog.EraseChip, 0))

	require.Len(t, chip.EraseLog, 3)
	assert.Equal(t, byte(0x20), chip.EraseLog[0].Cmd)
	assert.Equal(t, byte(0xD8), chip.EraseLog[1].Cmd)
	assert.Equal(t, byte(0xC7), chip.EraseLog[2].Cmd)

	got, err := d.ReadBytes(ctx, 0x0010, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, got)
}

func TestEraseInvalidScope(t *testing.T) {
	t.Parallel()
	d, _ := newTestDriver(t)

	err := d.Erase(context.Background(), memprog.EraseScope(99), 0)
	assert.ErrorIs(t, err, memprog.ErrInvalidParameter)
}

func TestBusyWaitIsBounded(t *testing.T) {
	t.Parallel()
	d, chip := newTestDriver(t, spiflash.WithProgramTimeout(30*time.Millisecond))
	chip.HangBusy = true

	start := time.Now()
	err := d.WriteBytes(context.Background(), 0, []byte{0xAA})
	assert.ErrorIs(t, err, memprog.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEraseProgressCallback(t *testing.T) {
	t.Parallel()
	var calls int
	d, chip := newTestDriver(t,
		spiflash.WithEraseTimeout(10*time.Second),
		spiflash.WithProgress(func(time.Duration) { calls++ }))
	// Enough busy polls at 1 ms apiece to pass the 500 ms progress mark.
	chip.BusyPolls = 700

	require.NoError(t, d.Erase(context.Background(), memprog.EraseChip, 0))
	assert.Positive(t, calls)
}

func TestReadStatus(t *testing.T) {
	t.Parallel()
	d, _ := newTestDriver(t)

	status, err := d.ReadStatus(context.Background())
	require.NoError(t, err)
	fs, ok := status.(memprog.SPIFlashStatus)
	require.True(t, ok)
	assert.False(t, fs.WriteInProgress)
	assert.Equal(t, memprog.TechSPIFlash, fs.Technology())
}
