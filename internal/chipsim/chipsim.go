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

// Package chipsim models an MFRC522's register file and exchange state
// machine in software, so integration-style tests can drive the real
// command executor against scripted silicon instead of hand-queued
// register values. A VirtualCard stands in for the PICC in the field.
package chipsim

import (
	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

const fifoCapacity = 64

// VirtualCard is the simulated PICC
type VirtualCard struct {
	// UID is the card's 4-byte identifier
	UID [4]byte
	// ATQA is the card's answer to request (first byte is the card type)
	ATQA [2]byte
}

// BCC returns the card's block check character
func (c *VirtualCard) BCC() byte {
	return c.UID[0] ^ c.UID[1] ^ c.UID[2] ^ c.UID[3]
}

// Chip implements mfrc522.Transport as a software model of the reader.
// Writing Transceive to the command register and raising StartSend runs a
// simulated exchange against the virtual card; the interrupt, FIFO level,
// control and error registers then behave the way the executor expects.
type Chip struct {
	card *VirtualCard
	fifo []byte
	irq  byte
	errs byte

	// irqDelay is how many interrupt register reads return "busy" before
	// an exchange reports completion. Models chip processing time and
	// exercises the executor's poll loop.
	irqDelay     int
	pendingDelay int

	// fault injection
	corruptBCC bool
	muteIRQ    bool
	errFlags   byte

	pending   byte
	plain     map[mfrc522.Register]byte
	mu        syncutil.Mutex
	connected bool
}

// New creates a simulated chip with no card in the field
func New() *Chip {
	return &Chip{
		connected: true,
		irqDelay:  2,
	}
}

// PlaceCard puts a card into the simulated field
func (c *Chip) PlaceCard(card *VirtualCard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.card = card
}

// RemoveCard empties the simulated field
func (c *Chip) RemoveCard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.card = nil
}

// SetIRQDelay sets how many poll iterations an exchange stays busy for
func (c *Chip) SetIRQDelay(polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.irqDelay = polls
}

// CorruptBCC makes the card answer anti-collision with a broken check byte
func (c *Chip) CorruptBCC(corrupt bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corruptBCC = corrupt
}

// MuteIRQ stops the chip from ever signaling completion, simulating dead
// silicon. The executor's poll budget is the only way out.
func (c *Chip) MuteIRQ(mute bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muteIRQ = mute
}

// InjectErrorFlags latches error register flags on the next exchange
func (c *Chip) InjectErrorFlags(flags mfrc522.Bitmask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errFlags = byte(flags)
}

// ReadRegister implements mfrc522.Transport
func (c *Chip) ReadRegister(reg mfrc522.Register) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return 0, mfrc522.ErrTransportClosed
	}

	switch reg {
	case mfrc522.ComIrqReg:
		if c.pendingDelay > 0 {
			c.pendingDelay--
			if c.pendingDelay == 0 {
				c.completeExchange()
			}
		}
		return c.irq, nil
	case mfrc522.ErrorReg:
		return c.errs, nil
	case mfrc522.FIFOLevelReg:
		return byte(len(c.fifo)), nil
	case mfrc522.FIFODataReg:
		if len(c.fifo) == 0 {
			return 0, nil
		}
		value := c.fifo[0]
		c.fifo = c.fifo[1:]
		return value, nil
	case mfrc522.ControlReg:
		// The simulated card always answers in full bytes
		return 0, nil
	case mfrc522.VersionReg:
		return 0x92, nil
	default:
		return c.regRead(reg), nil
	}
}

// WriteRegister implements mfrc522.Transport
func (c *Chip) WriteRegister(reg mfrc522.Register, value byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return mfrc522.ErrTransportClosed
	}

	switch reg {
	case mfrc522.CommandReg:
		c.pending = value
		switch mfrc522.Command(value) {
		case mfrc522.CmdIdle:
			c.pendingDelay = 0
		case mfrc522.CmdSoftReset:
			c.reset()
		case mfrc522.CmdAuthenticate:
			// Authenticate starts immediately on the command write
			c.startExchange()
		}
	case mfrc522.ComIrqReg:
		// Set1 clear: the written bits are cleared. Set1 set: OR'd in.
		if value&0x80 == 0 {
			c.irq &^= value & 0x7F
		} else {
			c.irq |= value & 0x7F
		}
	case mfrc522.FIFOLevelReg:
		if value&0x80 != 0 {
			c.fifo = nil
		}
	case mfrc522.FIFODataReg:
		if len(c.fifo) < fifoCapacity {
			c.fifo = append(c.fifo, value)
		}
	case mfrc522.BitFramingReg:
		c.regWrite(reg, value)
		if value&0x80 != 0 && mfrc522.Command(c.pending) == mfrc522.CmdTransceive {
			c.startExchange()
		}
	default:
		c.regWrite(reg, value)
	}

	return nil
}

// startExchange arms the simulated exchange: completion appears after
// irqDelay interrupt register reads.
func (c *Chip) startExchange() {
	if c.muteIRQ {
		c.pendingDelay = 0
		return
	}
	c.errs = c.errFlags
	c.pendingDelay = c.irqDelay
	if c.pendingDelay <= 0 {
		c.pendingDelay = 1
	}
}

// completeExchange resolves the armed exchange against the virtual card
// and latches the result into the interrupt and FIFO state.
func (c *Chip) completeExchange() {
	if c.errs != 0 {
		c.irq |= byte(mfrc522.IrqErr | mfrc522.IrqIdle | mfrc522.IrqRx)
		return
	}

	request := c.fifo
	c.fifo = nil

	if c.card == nil {
		// Nothing in the field: the receive timeout timer underflows
		c.irq |= byte(mfrc522.IrqTimer)
		return
	}

	switch {
	case len(request) == 1 && (request[0] == 0x26 || request[0] == 0x52):
		c.fifo = []byte{c.card.ATQA[0], c.card.ATQA[1]}
	case len(request) == 2 && request[0] == 0x93 && request[1] == 0x20:
		bcc := c.card.BCC()
		if c.corruptBCC {
			bcc ^= 0xFF
		}
		c.fifo = []byte{c.card.UID[0], c.card.UID[1], c.card.UID[2], c.card.UID[3], bcc}
	default:
		// The simulated card ignores frames it does not understand
		c.irq |= byte(mfrc522.IrqTimer)
		return
	}

	c.irq |= byte(mfrc522.IrqRx | mfrc522.IrqIdle)
}

func (c *Chip) reset() {
	c.fifo = nil
	c.irq = 0
	c.errs = 0
	c.pendingDelay = 0
	c.pending = 0
}

// Close implements mfrc522.Transport
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// IsConnected implements mfrc522.Transport
func (c *Chip) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Type implements mfrc522.Transport
func (*Chip) Type() mfrc522.TransportType {
	return mfrc522.TransportMock
}

// plain register file for everything the simulation does not model

func (c *Chip) regRead(reg mfrc522.Register) byte {
	if c.plain == nil {
		return 0
	}
	return c.plain[reg]
}

func (c *Chip) regWrite(reg mfrc522.Register, value byte) {
	if c.plain == nil {
		c.plain = make(map[mfrc522.Register]byte)
	}
	c.plain[reg] = value
}
