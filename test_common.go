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

//go:build !prod

package mfrc522

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDevice creates a device backed by a mock register file.
//
// Mock bookkeeping for queued reads: the executor's read-modify-write
// helpers consume one queued value per register they touch before the
// interesting read happens. A scripted exchange therefore queues one
// leading value for ComIrqReg (consumed clearing pending interrupts) and
// one for FIFOLevelReg (consumed by the FIFO flush) ahead of the values
// the poll loop and the readback should see.
func newTestDevice(t *testing.T, opts ...Option) (*Device, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	device, err := New(mock, opts...)
	require.NoError(t, err)
	return device, mock
}

// scriptCardResponse programs the mock with one complete, successful
// Transceive exchange: the poll loop completes on the first iteration and
// the FIFO yields the given bytes with the given valid-bit count in the
// final byte.
func scriptCardResponse(mock *MockTransport, response []byte, lastBits byte) {
	mock.QueueReads(ComIrqReg, 0x00, byte(IrqRx|IrqIdle))
	mock.QueueReads(FIFOLevelReg, 0x00, byte(len(response)))
	mock.SetRegister(ControlReg, lastBits)
	mock.QueueReads(FIFODataReg, response...)
}
