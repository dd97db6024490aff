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
	"fmt"
	"time"
)

// RequestMode selects which cards a Request addresses
type RequestMode byte

const (
	// RequestIdle (REQA) addresses only cards not yet halted
	RequestIdle RequestMode = 0x26
	// RequestAll (WUPA) additionally wakes halted cards
	RequestAll RequestMode = 0x52
)

// CardType is the first ATQA byte a card answers a Request with. It hints
// at the card family (0x04 is common for MIFARE Classic 1K).
type CardType byte

// atqaBits is the fixed width of a card's answer to request: two full bytes
const atqaBits = 16

// uidLen is the UID length at cascade level 1. Longer UIDs from cascade
// tags are not resolved by this library.
const uidLen = 4

// anticollFrameLen is UID plus the trailing BCC byte
const anticollFrameLen = uidLen + 1

// CardUID is a single card's 4-byte identifier
type CardUID [uidLen]byte

// String returns the UID as a lowercase hex string
func (u CardUID) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x", u[0], u[1], u[2], u[3])
}

// Bytes returns the UID as a byte slice
func (u CardUID) Bytes() []byte {
	return u[:]
}

// Request transmits a short-frame REQA/WUPA and reports whether a card is
// in the field. A card answers with its fixed-width 16-bit ATQA; anything
// else fails with ErrNoCardFound wrapping the narrower cause.
func (d *Device) Request(mode RequestMode) (CardType, error) {
	// REQA and WUPA are 7-bit short frames per ISO14443-3.
	if err := d.transport.WriteRegister(BitFramingReg, txShortFrame); err != nil {
		return 0, err
	}

	result, err := d.transceive(CmdTransceive, []byte{byte(mode)})
	if err != nil {
		return 0, err
	}

	switch result.Status {
	case ExchangeTimeout:
		return 0, fmt.Errorf("%w: %w", ErrNoCardFound, ErrTimeout)
	case ExchangeChipError:
		return 0, fmt.Errorf("%w: %w", ErrNoCardFound, &ChipError{Op: "request", Flags: result.ErrFlags})
	case ExchangeNoCard:
		return 0, fmt.Errorf("%w: %w", ErrNoCardFound, ErrNoCardDetected)
	case ExchangeOK:
	}

	if result.Bits != atqaBits {
		return 0, fmt.Errorf("%w: %w: got %d bits, want %d",
			ErrNoCardFound, ErrUnexpectedLength, result.Bits, atqaBits)
	}

	return CardType(result.Data[0]), nil
}

// AntiCollision retrieves the UID of the single card in the field. The
// card answers the cascade level 1 anti-collision frame with its 4 UID
// bytes plus a BCC check byte, which must equal the XOR of the UID bytes.
// Only single, non-colliding cards are supported; on ErrChecksumMismatch
// the caller must replay the whole Request/AntiCollision sequence.
func (d *Device) AntiCollision() (CardUID, error) {
	var uid CardUID

	// Full-byte framing for the anti-collision exchange.
	if err := d.transport.WriteRegister(BitFramingReg, 0x00); err != nil {
		return uid, err
	}

	result, err := d.transceive(CmdTransceive, []byte{piccAntiCollCL1, piccNVB})
	if err != nil {
		return uid, err
	}

	switch result.Status {
	case ExchangeTimeout:
		return uid, fmt.Errorf("%w: %w", ErrNoUIDFound, ErrTimeout)
	case ExchangeChipError:
		return uid, fmt.Errorf("%w: %w", ErrNoUIDFound, &ChipError{Op: "anticollision", Flags: result.ErrFlags})
	case ExchangeNoCard:
		return uid, fmt.Errorf("%w: %w", ErrNoUIDFound, ErrNoCardDetected)
	case ExchangeOK:
	}

	if len(result.Data) != anticollFrameLen {
		return uid, fmt.Errorf("%w: %w: got %d bytes, want %d",
			ErrNoUIDFound, ErrUnexpectedLength, len(result.Data), anticollFrameLen)
	}

	bcc := result.Data[0] ^ result.Data[1] ^ result.Data[2] ^ result.Data[3]
	if bcc != result.Data[4] {
		return uid, fmt.Errorf("%w: computed 0x%02X, card sent 0x%02X",
			ErrChecksumMismatch, bcc, result.Data[4])
	}

	copy(uid[:], result.Data[:uidLen])
	return uid, nil
}

// DetectedCard describes one successfully identified card
type DetectedCard struct {
	// DetectedAt is when the card was identified
	DetectedAt time.Time
	// UID is the card's 4-byte identifier
	UID CardUID
	// Type is the first ATQA byte
	Type CardType
}

// DetectCard runs the full detection sequence: a Request followed by the
// anti-collision exchange. Any failure leaves the sequence re-entrant; the
// next call replays it from the start.
func (d *Device) DetectCard(mode RequestMode) (*DetectedCard, error) {
	cardType, err := d.Request(mode)
	if err != nil {
		return nil, err
	}

	uid, err := d.AntiCollision()
	if err != nil {
		return nil, err
	}

	debugf("detected card %s (type 0x%02X)", uid, byte(cardType))
	return &DetectedCard{
		DetectedAt: time.Now(),
		UID:        uid,
		Type:       cardType,
	}, nil
}
