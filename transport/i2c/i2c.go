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

// Package i2c provides the I2C register bus implementation for the MFRC522
package i2c

import (
	"fmt"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddr is the MFRC522's I2C slave address with the EA pin and
	// address inputs grounded. The address is configurable in hardware:
	// use WithAddr for non-default wirings.
	DefaultAddr = 0x28

	// Fast mode. The chip supports up to 400 kbit/s in standard I2C.
	maxClockFreq = 400 * physic.KiloHertz
)

// Transport implements the mfrc522.Transport interface for I2C.
// Register access maps directly onto I2C transactions: a write is
// [register, value], a read is [register] followed by a one-byte read.
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser
	busName string
	closed  bool
}

// Option configures the I2C transport
type Option func(*config)

type config struct {
	addr uint16
}

// WithAddr overrides the chip's I2C slave address
func WithAddr(addr uint16) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// New creates a new I2C transport on the named bus
func New(busName string, opts ...Option) (*Transport, error) {
	cfg := config{addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	// Best effort; the default bus speed works too.
	_ = bus.SetSpeed(maxClockFreq)

	return &Transport{
		dev:     &i2c.Dev{Addr: cfg.addr, Bus: bus},
		bus:     bus,
		busName: busName,
	}, nil
}

// ReadRegister reads a single chip register
func (t *Transport) ReadRegister(reg mfrc522.Register) (byte, error) {
	if t.closed {
		return 0, mfrc522.ErrTransportClosed
	}

	var value [1]byte
	if err := t.dev.Tx([]byte{byte(reg)}, value[:]); err != nil {
		return 0, mfrc522.NewTransportError("ReadRegister", t.busName, err, mfrc522.ErrorTypeTransient)
	}
	return value[0], nil
}

// WriteRegister writes a single chip register
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	if t.closed {
		return mfrc522.ErrTransportClosed
	}

	if err := t.dev.Tx([]byte{byte(reg), value}, nil); err != nil {
		return mfrc522.NewTransportError("WriteRegister", t.busName, err, mfrc522.ErrorTypeTransient)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus %s: %w", t.busName, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportI2C
}
