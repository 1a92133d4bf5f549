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

package detection

import (
	"context"
	"testing"

	memprog "github.com/OmniProgProject/go-memprog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	tech  memprog.Technology
	buses []BusInfo
}

func (f *fakeDetector) Technology() memprog.Technology { return f.tech }

func (f *fakeDetector) Detect(_ context.Context) ([]BusInfo, error) {
	return f.buses, nil
}

func TestDetectorFiltering(t *testing.T) {
	t.Parallel()

	fake := &fakeDetector{
		tech:  memprog.TechEEPROM,
		buses: []BusInfo{{Tech: memprog.TechEEPROM, Path: "fake-i2c-0", Name: "fake bus"}},
	}
	Register(fake)

	// Unfiltered includes the built-ins plus the fake.
	all := detectors(nil)
	assert.GreaterOrEqual(t, len(all), 4)

	filtered := detectors([]memprog.Technology{memprog.TechEEPROM})
	require.NotEmpty(t, filtered)
	for _, d := range filtered {
		assert.Equal(t, memprog.TechEEPROM, d.Technology())
	}

	none := detectors([]memprog.Technology{memprog.TechNone})
	assert.Empty(t, none)
}

func TestBusInfoString(t *testing.T) {
	t.Parallel()

	withPath := BusInfo{Tech: memprog.TechEEPROM, Path: "/dev/i2c-1", Name: "I2C bus 1"}
	assert.Equal(t, "i2c-eeprom: I2C bus 1 (/dev/i2c-1)", withPath.String())

	noPath := BusInfo{Tech: memprog.TechNAND, Name: "GPIO bank (40 lines)"}
	assert.Equal(t, "nand: GPIO bank (40 lines)", noPath.String())
}

func TestGPIODetectorNeedsEnoughPins(t *testing.T) {
	t.Parallel()

	// Context cancellation is honored before enumeration.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&gpioDetector{}).Detect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
