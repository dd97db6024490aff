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
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "Nil", err: nil, retryable: false},
		{name: "Transport_Read", err: ErrTransportRead, retryable: true},
		{name: "Transport_Write", err: fmt.Errorf("bus: %w", ErrTransportWrite), retryable: true},
		{name: "Poll_Timeout", err: ErrTimeout, retryable: true},
		{name: "Chip_Error", err: &ChipError{Op: "request", Flags: ErrCollision}, retryable: true},
		{name: "Checksum_Mismatch", err: ErrChecksumMismatch, retryable: false},
		{name: "Transport_Closed", err: ErrTransportClosed, retryable: false},
		{
			name:      "Typed_Transient",
			err:       NewTransportReadError("ReadRegister", "/dev/i2c-1"),
			retryable: true,
		},
		{
			name:      "Typed_Permanent",
			err:       NewInvalidResponseError("ReadRegister", "/dev/i2c-1"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{name: "Nil", err: nil, fatal: false},
		{name: "Transport_Closed", err: ErrTransportClosed, fatal: true},
		{name: "Device_Not_Found", err: ErrDeviceNotFound, fatal: true},
		{name: "EOF", err: io.EOF, fatal: true},
		{name: "Device_Gone_EIO", err: fmt.Errorf("read: %w", syscall.EIO), fatal: true},
		{name: "Device_Gone_ENODEV", err: fmt.Errorf("read: %w", syscall.ENODEV), fatal: true},
		{name: "Poll_Timeout", err: ErrTimeout, fatal: false},
		{name: "No_Card", err: ErrNoCardFound, fatal: false},
		{
			name:  "Typed_Permanent",
			err:   NewInvalidResponseError("ReadRegister", "/dev/i2c-1"),
			fatal: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestChipErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ChipError{Op: "anticollision", Flags: ErrCollision | ErrParity}
	assert.Contains(t, err.Error(), "bit collision")
	assert.Contains(t, err.Error(), "parity failure")
	assert.True(t, errors.Is(err, ErrChipProtocol))
}

func TestTransportErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("ReadRegister", "/dev/i2c-1")
	assert.Contains(t, err.Error(), "ReadRegister")
	assert.Contains(t, err.Error(), "/dev/i2c-1")
	assert.True(t, errors.Is(err, ErrTransportTimeout))

	bare := NewTransportReadError("ReadRegister", "")
	assert.NotContains(t, bare.Error(), "  ")
}
