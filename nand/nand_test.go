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

package nand_test

import (
	"context"
	"testing"
	"time"

	memprog "github.com/OmniProgProject/go-memprog"
	"github.com/OmniProgProject/go-memprog/internal/hwsim"
	"github.com/OmniProgProject/go-memprog/nand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)

	id, err := d.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, memprog.TechNAND, id.Tech)
	assert.Equal(t, chip.ID[:], id.Raw)
}

func TestReadWriteRoundTrip(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)
	ctx := context.Background()

	// Mid-page span in page 3.
	addr := uint32(3*512 + 100)
	payload := []byte("nand page payload")
	require.NoError(t, d.WriteBytes(ctx, addr, payload))

	got, err := d.ReadBytes(ctx, addr, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteRejectsPageCrossing(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)

	// 500 + 20 crosses the 512-byte page end.
	err := d.WriteBytes(context.Background(), 500, make([]byte, 20))
	assert.ErrorIs(t, err, memprog.ErrBoundaryViolation)

	// Rejected before any bus traffic: no program command was latched.
	assert.NotContains(t, chip.CommandLog, byte(0x80))
}

func TestWriteExactlyToPageEnd(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)
	ctx := context.Background()

	// a%512 + n == 512 is still in bounds.
	require.NoError(t, d.WriteBytes(ctx, 512+500, make([]byte, 12)))
}

func TestEraseBlockAddressing(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(4)
	d := nand.New(chip)
	ctx := context.Background()

	require.NoError(t, d.WriteBytes(ctx, 20000, []byte{0x00, 0x00}))
	require.NoError(t, d.Erase(ctx, memprog.EraseBlock, 20000))

	// Address 20000 lives in block 1; the erase address phase carries
	// the block index, low byte first.
	assert.Equal(t, 1, chip.LastEraseBlock)
	assert.Equal(t, []byte{0x01, 0x00, 0x00}, chip.LastEraseAddr)

	got, err := d.ReadBytes(ctx, 20000, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF}, got)
}

func TestEraseSectorActsAsBlock(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(4)
	d := nand.New(chip)

	require.NoError(t, d.Erase(context.Background(), memprog.EraseSector, 40000))
	assert.Equal(t, 2, chip.LastEraseBlock)
}

func TestEraseChipUnsupported(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)

	err := d.Erase(context.Background(), memprog.EraseChip, 0)
	assert.ErrorIs(t, err, memprog.ErrInvalidParameter)
	assert.Equal(t, -1, chip.LastEraseBlock)
}

func TestProgramFailureBit(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	chip.FailNextProgram = true
	d := nand.New(chip)

	err := d.WriteBytes(context.Background(), 0, []byte{0xAA})
	assert.ErrorIs(t, err, memprog.ErrOperationFailed)
}

func TestReadyWaitIsBounded(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	chip.HangBusy = true
	d := nand.New(chip, nand.WithReadyTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := d.ReadBytes(context.Background(), 0, 1)
	assert.ErrorIs(t, err, memprog.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, memprog.IsRetryable(err))
}

func TestResetTimeoutIsSoft(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	chip.HangBusy = true
	d := nand.New(chip, nand.WithReadyTimeout(20*time.Millisecond))

	// A hung ready line must not make the technology unusable.
	assert.NoError(t, d.Reset(context.Background()))
}

func TestReadStatus(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)

	status, err := d.ReadStatus(context.Background())
	require.NoError(t, err)
	ns, ok := status.(memprog.NANDStatus)
	require.True(t, ok)
	assert.True(t, ns.Ready)
	assert.False(t, ns.Failed)
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	chip := hwsim.NewNANDChip(2)
	d := nand.New(chip)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.ReadBytes(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
