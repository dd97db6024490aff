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

// Package uart provides the serial register bus implementation for the
// MFRC522's UART interface.
package uart

import (
	"fmt"
	"sync"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"go.bug.st/serial"
)

// The chip's UART wakes up at 9600 baud; higher rates require a register
// handshake this library does not perform.
const defaultBaudRate = 9600

// UART address byte framing per the data sheet, section 8.1.3: bit 7
// selects read (1) or write (0), bits 5-0 carry the register address.
const uartReadFlag byte = 0x80

// Transport implements the mfrc522.Transport interface for UART.
//
// Each register write is a two-byte sequence (address, value) that the
// chip acknowledges by echoing the address byte. A read is the address
// with the read flag set, answered with the register value.
type Transport struct {
	port     serial.Port
	portName string
	mu       sync.Mutex
	closed   bool
}

// New creates a new UART transport on the named serial port
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: defaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// ReadRegister reads a single chip register
func (t *Transport) ReadRegister(reg mfrc522.Register) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, mfrc522.ErrTransportClosed
	}

	if err := t.writeAll([]byte{byte(reg) | uartReadFlag}); err != nil {
		return 0, err
	}
	value, err := t.readByte()
	if err != nil {
		return 0, err
	}
	return value, nil
}

// WriteRegister writes a single chip register
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return mfrc522.ErrTransportClosed
	}

	if err := t.writeAll([]byte{byte(reg)}); err != nil {
		return err
	}

	// The chip echoes the address byte before accepting the value.
	echo, err := t.readByte()
	if err != nil {
		return err
	}
	if echo != byte(reg) {
		return mfrc522.NewInvalidResponseError("WriteRegister", t.portName)
	}

	return t.writeAll([]byte{value})
}

// writeAll writes the whole buffer to the port
func (t *Transport) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := t.port.Write(data)
		if err != nil {
			return mfrc522.NewTransportError("write", t.portName, err, mfrc522.ErrorTypeTransient)
		}
		data = data[n:]
	}
	return nil
}

// readByte reads exactly one byte, honoring the port's read timeout
func (t *Transport) readByte() (byte, error) {
	var buf [1]byte
	n, err := t.port.Read(buf[:])
	if err != nil {
		return 0, mfrc522.NewTransportError("read", t.portName, err, mfrc522.ErrorTypeTransient)
	}
	if n == 0 {
		return 0, mfrc522.NewTimeoutError("read", t.portName)
	}
	return buf[0], nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close UART port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportUART
}
