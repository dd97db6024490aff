// Copyright 2026 The Zaparoo Project Contributors.
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

package mfrc522

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesOptions(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock, WithPollBudget(100))
	require.NoError(t, err)
	assert.Equal(t, 100, device.config.PollBudget)
}

func TestNewRejectsInvalidPollBudget(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	_, err := New(mock, WithPollBudget(0))
	require.Error(t, err)
}

func TestInitSequence(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	require.NoError(t, device.Init())

	writes := mock.Writes()
	require.NotEmpty(t, writes)

	// Soft reset comes first.
	assert.Equal(t, RegisterWrite{Reg: CommandReg, Value: byte(CmdSoftReset)}, writes[0])

	// Timer, modulation and mode configuration follow.
	assert.Equal(t, []byte{0x8D}, mock.WritesTo(TModeReg))
	assert.Equal(t, []byte{0x3E}, mock.WritesTo(TPrescalerReg))
	assert.Equal(t, []byte{30}, mock.WritesTo(TReloadRegLo))
	assert.Equal(t, []byte{0}, mock.WritesTo(TReloadRegHi))
	assert.Equal(t, []byte{0x40}, mock.WritesTo(TxASKReg))
	assert.Equal(t, []byte{0x3D}, mock.WritesTo(ModeReg))

	// Antenna drivers end up enabled.
	antenna := mock.WritesTo(TxControlReg)
	require.NotEmpty(t, antenna)
	assert.Equal(t, byte(AntennaDrivers), antenna[len(antenna)-1]&byte(AntennaDrivers))
}

func TestAntennaOnSkipsWhenAlreadyEnabled(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	mock.SetRegister(TxControlReg, byte(AntennaDrivers))

	require.NoError(t, device.AntennaOn())
	assert.Empty(t, mock.WritesTo(TxControlReg))
}

func TestAntennaOff(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	mock.SetRegister(TxControlReg, 0x83)

	require.NoError(t, device.AntennaOff())
	writes := mock.WritesTo(TxControlReg)
	require.Len(t, writes, 1)
	assert.Equal(t, byte(0x80), writes[0], "other TxControl bits stay untouched")
}

func TestSetAndClearRegisterBits(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	mock.SetRegister(BitFramingReg, 0x07)

	require.NoError(t, device.SetRegisterBits(BitFramingReg, StartSend))
	writes := mock.WritesTo(BitFramingReg)
	require.Len(t, writes, 1)
	assert.Equal(t, byte(0x87), writes[0])

	require.NoError(t, device.ClearRegisterBits(BitFramingReg, StartSend))
	writes = mock.WritesTo(BitFramingReg)
	require.Len(t, writes, 2)
	assert.Equal(t, byte(0x07), writes[1])
}

func TestVersion(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	mock.SetRegister(VersionReg, 0x92)

	version, err := device.Version()
	require.NoError(t, err)
	assert.Equal(t, byte(0x92), version)
}

func TestCloseClosesTransport(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	require.NoError(t, device.Close())
	assert.False(t, mock.IsConnected())
}
