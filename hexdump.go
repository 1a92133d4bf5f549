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
	"fmt"
	"io"
	"strings"
)

// dumpWidth is the number of bytes rendered per hex dump row.
const dumpWidth = 16

// Dumper renders a byte stream as address-prefixed rows of hex and
// printable ASCII, 16 bytes per row:
//
//	0x0000: 48 65 6C 6C 6F ... 0A  | Hello...
//
// Bytes may arrive in any number of Write calls; Close flushes the
// final partial row. The same formatter serves every read path.
type Dumper struct {
	w      io.Writer
	addr   uint32
	row    [dumpWidth]byte
	used   int
	closed bool
}

// NewDumper returns a Dumper writing rows to w, with addresses starting
// at start.
func NewDumper(w io.Writer, start uint32) *Dumper {
	return &Dumper{w: w, addr: start}
}

// Write buffers p into 16-byte rows, emitting each completed row.
func (d *Dumper) Write(p []byte) (int, error) {
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	for i, b := range p {
		d.row[d.used] = b
		d.used++
		if d.used == dumpWidth {
			if err := d.flushRow(); err != nil {
				return i, err
			}
		}
	}
	return len(p), nil
}

// Close flushes any buffered partial row. The Dumper cannot be written
// to afterwards.
func (d *Dumper) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.used == 0 {
		return nil
	}
	return d.flushRow()
}

func (d *Dumper) flushRow() error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "0x%04X: ", d.addr)

	for i := range dumpWidth {
		if i < d.used {
			fmt.Fprintf(&sb, "%02X ", d.row[i])
		} else {
			sb.WriteString("   ")
		}
	}
	sb.WriteString(" | ")

	for i := range d.used {
		b := d.row[i]
		if b >= 0x20 && b <= 0x7E {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	sb.WriteByte('\n')

	d.addr += uint32(d.used)
	d.used = 0
	_, err := io.WriteString(d.w, sb.String())
	return err
}

// Dump renders data as a complete hex dump string with addresses
// starting at start.
func Dump(start uint32, data []byte) string {
	var sb strings.Builder
	d := NewDumper(&sb, start)
	_, _ = d.Write(data)
	_ = d.Close()
	return sb.String()
}
