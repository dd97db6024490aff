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

/*
Package mfrc522 provides a pure Go driver for the MFRC522 contactless
reader chip over a register-addressed serial bus.

The MFRC522 is a 13.56 MHz ISO14443A reader IC driven entirely through an
8-bit register file. This library covers single-card UID discovery: a
short-frame Request (REQA/WUPA) to detect a card in the field, followed by
the cascade level 1 anti-collision exchange that yields the card's 4-byte
UID with BCC validation. Register access is abstracted behind the
Transport interface with I2C, SPI, and UART backends.

Basic Usage:

	import (
	    mfrc522 "github.com/ZaparooProject/go-mfrc522"
	    "github.com/ZaparooProject/go-mfrc522/transport/i2c"
	)

	transport, err := i2c.New("/dev/i2c-1")
	if err != nil {
	    log.Fatal(err)
	}
	defer transport.Close()

	device, err := mfrc522.New(transport)
	if err != nil {
	    log.Fatal(err)
	}
	if err := device.Init(); err != nil {
	    log.Fatal(err)
	}

	card, err := device.DetectCard(mfrc522.RequestIdle)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Printf("Card detected: %s\n", card.UID)

Scope:

The driver resolves exactly one card at cascade level 1. Full
anti-collision tree walking, card selection, sector authentication and
memory access, and interrupt-driven completion are not implemented; the
command executor is a bounded synchronous poll against the chip's
interrupt request register, with the chip's internal timer as the only
hardware timeout signal.

Error Handling:

All failure modes are surfaced as distinct error values that can be tested
with errors.Is (ErrNoCardFound, ErrNoUIDFound, ErrChecksumMismatch,
ErrTimeout, ErrChipProtocol). Every one of them is recoverable by
replaying the Request/AntiCollision sequence; the driver itself never
retries.
*/
package mfrc522
