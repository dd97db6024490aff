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

package mfrc522_test

import (
	"testing"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/chipsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimDevice(t *testing.T, opts ...mfrc522.Option) (*mfrc522.Device, *chipsim.Chip) {
	t.Helper()
	chip := chipsim.New()
	device, err := mfrc522.New(chip, opts...)
	require.NoError(t, err)
	require.NoError(t, device.Init())
	return device, chip
}

func TestDetectCardAgainstSimulatedChip(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.PlaceCard(&chipsim.VirtualCard{
		UID:  [4]byte{0x12, 0x34, 0x56, 0x78},
		ATQA: [2]byte{0x04, 0x00},
	})

	card, err := device.DetectCard(mfrc522.RequestIdle)
	require.NoError(t, err)
	assert.Equal(t, "12345678", card.UID.String())
	assert.Equal(t, mfrc522.CardType(0x04), card.Type)
}

func TestDetectCardIsStableAcrossReads(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.PlaceCard(&chipsim.VirtualCard{
		UID:  [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
		ATQA: [2]byte{0x04, 0x00},
	})

	first, err := device.DetectCard(mfrc522.RequestIdle)
	require.NoError(t, err)

	for _i := 0; _i < 5; _i++ {
		card, err := device.DetectCard(mfrc522.RequestIdle)
		require.NoError(t, err)
		assert.Equal(t, first.UID, card.UID)
	}
}

func TestEmptyFieldReportsNoCard(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)

	_, err := device.DetectCard(mfrc522.RequestIdle)
	require.Error(t, err)
	assert.ErrorIs(t, err, mfrc522.ErrNoCardFound)
	assert.ErrorIs(t, err, mfrc522.ErrNoCardDetected)
}

func TestDeadChipTimesOutWithinBudget(t *testing.T) {
	t.Parallel()

	// A chip that never raises an interrupt: the executor must give up
	// after its iteration budget, not hang.
	device, chip := newSimDevice(t, mfrc522.WithPollBudget(200))
	chip.MuteIRQ(true)
	chip.PlaceCard(&chipsim.VirtualCard{ATQA: [2]byte{0x04, 0x00}})

	_, err := device.Request(mfrc522.RequestIdle)
	require.Error(t, err)
	assert.ErrorIs(t, err, mfrc522.ErrNoCardFound)
	assert.ErrorIs(t, err, mfrc522.ErrTimeout)
}

func TestCorruptedBCCIsRejected(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.PlaceCard(&chipsim.VirtualCard{
		UID:  [4]byte{0x12, 0x34, 0x56, 0x78},
		ATQA: [2]byte{0x04, 0x00},
	})
	chip.CorruptBCC(true)

	_, err := device.DetectCard(mfrc522.RequestIdle)
	require.Error(t, err)
	assert.ErrorIs(t, err, mfrc522.ErrChecksumMismatch)

	// The card recovers on the next clean replay of the sequence.
	chip.CorruptBCC(false)
	card, err := device.DetectCard(mfrc522.RequestIdle)
	require.NoError(t, err)
	assert.Equal(t, mfrc522.CardUID{0x12, 0x34, 0x56, 0x78}, card.UID)
}

func TestChipErrorFlagsSurface(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.PlaceCard(&chipsim.VirtualCard{ATQA: [2]byte{0x04, 0x00}})
	chip.InjectErrorFlags(mfrc522.ErrCollision)

	_, err := device.Request(mfrc522.RequestIdle)
	require.Error(t, err)
	assert.ErrorIs(t, err, mfrc522.ErrChipProtocol)
}

func TestSlowChipStillCompletes(t *testing.T) {
	t.Parallel()

	// Completion arrives deep into the poll loop but within budget.
	device, chip := newSimDevice(t)
	chip.SetIRQDelay(500)
	chip.PlaceCard(&chipsim.VirtualCard{
		UID:  [4]byte{0x01, 0x02, 0x03, 0x04},
		ATQA: [2]byte{0x04, 0x00},
	})

	card, err := device.DetectCard(mfrc522.RequestIdle)
	require.NoError(t, err)
	assert.Equal(t, mfrc522.CardUID{0x01, 0x02, 0x03, 0x04}, card.UID)
}
