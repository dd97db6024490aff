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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransceiveWritesPayloadToFIFOInOrder(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		{},
		{0x26},
		{0x93, 0x20},
		{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F},
	}

	for _, payload := range payloads {
		payload := payload
		device, mock := newTestDevice(t)
		scriptCardResponse(mock, []byte{0xAA}, 0)

		_, err := device.transceive(CmdTransceive, payload)
		require.NoError(t, err)

		// Every payload byte must land in the FIFO register, in order,
		// before the command register receives Transceive.
		assert.Equal(t, payload, mock.WritesTo(FIFODataReg))

		var lastFIFOWrite, transceiveWrite int
		for i, w := range mock.Writes() {
			if w.Reg == FIFODataReg {
				lastFIFOWrite = i
			}
			if w.Reg == CommandReg && w.Value == byte(CmdTransceive) {
				transceiveWrite = i
			}
		}
		if len(payload) > 0 {
			assert.Greater(t, transceiveWrite, lastFIFOWrite,
				"command must start only after the payload is staged")
		}
	}
}

func TestTransceiveResponseLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		level        byte
		lastBits     byte
		expectedBits int
		expectedLen  int
	}{
		{
			name:         "Five_Full_Bytes",
			level:        5,
			lastBits:     0,
			expectedBits: 40,
			expectedLen:  5,
		},
		{
			name:         "Partial_Final_Byte",
			level:        5,
			lastBits:     3,
			expectedBits: 35,
			expectedLen:  5,
		},
		{
			name:         "Single_Bit",
			level:        1,
			lastBits:     1,
			expectedBits: 1,
			expectedLen:  1,
		},
		{
			name:         "Zero_Level_Forces_One_Read",
			level:        0,
			lastBits:     0,
			expectedBits: 0,
			expectedLen:  1,
		},
		{
			name:         "Level_Above_Cap_Is_Clamped",
			level:        20,
			lastBits:     0,
			expectedBits: 160,
			expectedLen:  16,
		},
		{
			name:         "Clamped_With_Partial_Byte",
			level:        17,
			lastBits:     7,
			expectedBits: 135,
			expectedLen:  16,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, mock := newTestDevice(t)
			mock.QueueReads(ComIrqReg, 0x00, byte(IrqRx|IrqIdle))
			mock.QueueReads(FIFOLevelReg, 0x00, tt.level)
			mock.SetRegister(ControlReg, tt.lastBits)

			result, err := device.transceive(CmdTransceive, nil)
			require.NoError(t, err)

			assert.Equal(t, ExchangeOK, result.Status)
			assert.Equal(t, tt.expectedBits, result.Bits)
			assert.Len(t, result.Data, tt.expectedLen)
		})
	}
}

func TestTransceivePollBudgetExhaustion(t *testing.T) {
	t.Parallel()

	// The interrupt register never reports completion: the loop must
	// terminate after exactly the configured number of iterations.
	const budget = 50
	device, mock := newTestDevice(t, WithPollBudget(budget))

	result, err := device.transceive(CmdTransceive, []byte{0x26})
	require.NoError(t, err)
	assert.Equal(t, ExchangeTimeout, result.Status)
	assert.Empty(t, result.Data)

	// One extra read comes from clearing pending interrupt flags before
	// the command starts.
	assert.Equal(t, budget+1, mock.ReadCount(ComIrqReg))
}

func TestTransceiveDefaultBudgetTerminates(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)

	result, err := device.transceive(CmdTransceive, nil)
	require.NoError(t, err)
	assert.Equal(t, ExchangeTimeout, result.Status)
	assert.Equal(t, DefaultPollBudget+1, mock.ReadCount(ComIrqReg))
}

func TestTransceiveBudgetExhaustedOnFinalIteration(t *testing.T) {
	t.Parallel()

	// Even if the final permitted read carries the wait bits, running out
	// of iterations is still a timeout: the chip took too long.
	const budget = 3
	device, mock := newTestDevice(t, WithPollBudget(budget))
	mock.QueueReads(ComIrqReg, 0x00, 0x00, 0x00, byte(IrqRx|IrqIdle))

	result, err := device.transceive(CmdTransceive, nil)
	require.NoError(t, err)
	assert.Equal(t, ExchangeTimeout, result.Status)
}

func TestTransceiveChipError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flags Bitmask
	}{
		{name: "Collision", flags: ErrCollision},
		{name: "Parity", flags: ErrParity},
		{name: "Protocol", flags: ErrProtocol},
		{name: "Buffer_Overflow", flags: ErrBufferOvfl},
		{name: "Combined", flags: ErrCollision | ErrParity},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, mock := newTestDevice(t)
			mock.QueueReads(ComIrqReg, 0x00, byte(IrqRx|IrqIdle))
			mock.SetRegister(ErrorReg, byte(tt.flags))

			result, err := device.transceive(CmdTransceive, nil)
			require.NoError(t, err)
			assert.Equal(t, ExchangeChipError, result.Status)
			assert.Equal(t, tt.flags, result.ErrFlags)
			assert.Empty(t, result.Data, "no FIFO readback on chip error")
		})
	}
}

func TestTransceiveNoCardOnTimerInterrupt(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	// Timer fired with clean error flags: the exchange ran but nothing
	// answered in the field.
	mock.QueueReads(ComIrqReg, 0x00, byte(IrqTimer))

	result, err := device.transceive(CmdTransceive, nil)
	require.NoError(t, err)
	assert.Equal(t, ExchangeNoCard, result.Status)
}

func TestTransceiveAuthenticateIgnoresTimerDowngrade(t *testing.T) {
	t.Parallel()

	// Authenticate's enable mask has no timer bit, so a stray timer flag
	// must not downgrade a completed authentication to "no card".
	device, mock := newTestDevice(t)
	mock.QueueReads(ComIrqReg, 0x00, byte(IrqIdle|IrqTimer))

	result, err := device.transceive(CmdAuthenticate, []byte{0x60, 0x00})
	require.NoError(t, err)
	assert.Equal(t, ExchangeOK, result.Status)
	assert.Empty(t, result.Data, "only Transceive reads the FIFO back")
}

func TestTransceiveArmsInterruptsPerCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cmd            Command
		irq            byte
		expectedEnable byte
	}{
		{name: "Transceive", cmd: CmdTransceive, irq: byte(IrqRx | IrqIdle), expectedEnable: 0x77 | 0x80},
		{name: "Authenticate", cmd: CmdAuthenticate, irq: byte(IrqIdle), expectedEnable: 0x12 | 0x80},
		{name: "CalcCRC", cmd: CmdCalcCRC, irq: byte(IrqTimer), expectedEnable: 0x00 | 0x80},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, mock := newTestDevice(t)
			mock.QueueReads(ComIrqReg, 0x00, tt.irq)

			_, err := device.transceive(tt.cmd, nil)
			require.NoError(t, err)

			enables := mock.WritesTo(ComIEnReg)
			require.Len(t, enables, 1)
			assert.Equal(t, tt.expectedEnable, enables[0])
		})
	}
}

func TestTransceiveStartSendOnlyForTransceive(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	mock.QueueReads(ComIrqReg, 0x00, byte(IrqIdle))

	_, err := device.transceive(CmdAuthenticate, nil)
	require.NoError(t, err)

	// Authenticate starts on the command write; BitFramingReg must only
	// see the trailing StartSend clear, never a set.
	for _, v := range mock.WritesTo(BitFramingReg) {
		v := v
		assert.Zero(t, v&byte(StartSend))
	}
}

func TestTransceiveBusErrorPropagates(t *testing.T) {
	t.Parallel()

	device, mock := newTestDevice(t)
	mock.SetReadError(ComIrqReg, ErrTransportRead)

	_, err := device.transceive(CmdTransceive, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransportRead))
}
