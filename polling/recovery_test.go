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

package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockDevice creates a device on a mock transport. Init succeeds against
// the zero-valued register file.
func newMockDevice(t *testing.T) (*mfrc522.Device, *mfrc522.MockTransport) {
	t.Helper()
	mock := mfrc522.NewMockTransport()
	device, err := mfrc522.New(mock)
	require.NoError(t, err)
	return device, mock
}

func TestNewDefaultRecoverer(t *testing.T) {
	t.Parallel()

	device, _ := newMockDevice(t)

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(device, nil, 0, 0)
		assert.NotNil(t, r)
		assert.Equal(t, 3, r.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, r.backoff)
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(device, nil, 100*time.Millisecond, 5)
		assert.Equal(t, 5, r.maxAttempts)
		assert.Equal(t, 100*time.Millisecond, r.backoff)
	})
}

func TestDefaultRecoverer_ReinitSuccess(t *testing.T) {
	t.Parallel()

	device, mock := newMockDevice(t)

	r := NewDefaultRecoverer(device, nil, 10*time.Millisecond, 3)

	err := r.AttemptRecovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device, r.GetDevice())

	// Init must have re-run the soft reset
	commands := mock.WritesTo(mfrc522.CommandReg)
	require.NotEmpty(t, commands)
	assert.Equal(t, byte(mfrc522.CmdSoftReset), commands[0])
}

func TestDefaultRecoverer_ReinitFailsNoReopen(t *testing.T) {
	t.Parallel()

	device, mock := newMockDevice(t)
	mock.SetWriteError(mfrc522.CommandReg, errors.New("bus gone"))

	r := NewDefaultRecoverer(device, nil, 10*time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus gone")
}

func TestDefaultRecoverer_FullReconnectSuccess(t *testing.T) {
	t.Parallel()

	device, mock := newMockDevice(t)
	newDevice, _ := newMockDevice(t)

	// Reinit fails on the old device
	mock.SetWriteError(mfrc522.CommandReg, errors.New("bus gone"))

	reopenCalled := false
	reopenFunc := func() (*mfrc522.Device, error) {
		reopenCalled = true
		return newDevice, nil
	}

	r := NewDefaultRecoverer(device, reopenFunc, 10*time.Millisecond, 3)

	err := r.AttemptRecovery(context.Background())
	require.NoError(t, err)
	assert.True(t, reopenCalled)
	assert.Equal(t, newDevice, r.GetDevice())
}

func TestDefaultRecoverer_AllAttemptsFail(t *testing.T) {
	t.Parallel()

	device, mock := newMockDevice(t)
	mock.SetWriteError(mfrc522.CommandReg, errors.New("bus gone"))

	reopenErr := errors.New("reopen failed")
	reopenFunc := func() (*mfrc522.Device, error) {
		return nil, reopenErr
	}

	r := NewDefaultRecoverer(device, reopenFunc, 10*time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reopen failed")
}

func TestDefaultRecoverer_ContextCancellation(t *testing.T) {
	t.Parallel()

	device, mock := newMockDevice(t)
	mock.SetWriteError(mfrc522.CommandReg, errors.New("bus gone"))

	r := NewDefaultRecoverer(device, nil, 100*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := r.AttemptRecovery(ctx)
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestDefaultRecoverer_GetDevice(t *testing.T) {
	t.Parallel()

	device, _ := newMockDevice(t)

	r := NewDefaultRecoverer(device, nil, 10*time.Millisecond, 3)

	assert.Equal(t, device, r.GetDevice())
}
