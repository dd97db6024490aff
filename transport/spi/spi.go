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

// Package spi provides the SPI register bus implementation for the MFRC522
package spi

import (
	"fmt"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// The MFRC522 tolerates up to 10 MHz; 1 MHz is a conservative default
	// that works through jumper wires and breadboards.
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0

	// SPI address byte framing per the data sheet, section 8.1.2: the
	// register address occupies bits 6-1, bit 7 selects read (1) or
	// write (0), bit 0 is always zero.
	readFlag byte = 0x80
	addrMask byte = 0x7E
)

// Transport implements the mfrc522.Transport interface for SPI
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	closed   bool
}

// New creates a new SPI transport on the named port
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	return &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
	}, nil
}

// ReadRegister reads a single chip register
func (t *Transport) ReadRegister(reg mfrc522.Register) (byte, error) {
	if t.closed {
		return 0, mfrc522.ErrTransportClosed
	}

	// The value clocks out during the second byte; the trailing address
	// 0x00 ends the transaction.
	tx := []byte{(byte(reg) << 1 & addrMask) | readFlag, 0x00}
	rx := make([]byte, len(tx))
	if err := t.conn.Tx(tx, rx); err != nil {
		return 0, mfrc522.NewTransportError("ReadRegister", t.portName, err, mfrc522.ErrorTypeTransient)
	}
	return rx[1], nil
}

// WriteRegister writes a single chip register
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	if t.closed {
		return mfrc522.ErrTransportClosed
	}

	tx := []byte{byte(reg) << 1 & addrMask, value}
	if err := t.conn.Tx(tx, nil); err != nil {
		return mfrc522.NewTransportError("WriteRegister", t.portName, err, mfrc522.ErrorTypeTransient)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close SPI port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportSPI
}
