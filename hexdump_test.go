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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpFullRow(t *testing.T) {
	t.Parallel()

	data := []byte("Hello, world!\x00\x01\x02")
	require.Len(t, data, 16)
	want := "0x0000: 48 65 6C 6C 6F 2C 20 77 6F 72 6C 64 21 00 01 02  | Hello, world!...\n"
	assert.Equal(t, want, Dump(0, data))
}

func TestDumpPartialRowPadding(t *testing.T) {
	t.Parallel()

	got := Dump(0x0200, []byte{0xDE, 0xAD})
	// Hex columns of the missing 14 bytes are blank-padded so the ASCII
	// gutter lines up with full rows.
	want := "0x0200: DE AD " + strings.Repeat("   ", 14) + " | ..\n"
	assert.Equal(t, want, got)
}

func TestDumpAddressAdvancesPerRow(t *testing.T) {
	t.Parallel()

	got := Dump(0x0100, make([]byte, 33))
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "0x0100: "))
	assert.True(t, strings.HasPrefix(lines[1], "0x0110: "))
	assert.True(t, strings.HasPrefix(lines[2], "0x0120: "))
}

func TestDumperStreamingWrites(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	d := NewDumper(&sb, 0)

	// Bytes split across Write calls land in the same rows as a single
	// contiguous write.
	payload := []byte("0123456789ABCDEFXYZ")
	for _, chunk := range [][]byte{payload[:5], payload[5:11], payload[11:]} {
		n, err := d.Write(chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	require.NoError(t, d.Close())

	assert.Equal(t, Dump(0, payload), sb.String())
}

func TestDumperClosed(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	d := NewDumper(&sb, 0)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close()) // idempotent

	_, err := d.Write([]byte{0x00})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Empty(t, sb.String())
}
