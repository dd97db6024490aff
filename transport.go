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
	"context"
	"fmt"
	"sync"
)

// Transport defines the register access layer for an MFRC522 chip.
// This can be implemented by I2C, SPI, or UART backends. All register
// operations are single-byte; the chip has no multi-byte transactions
// beyond repeated FIFO access through FIFODataReg.
type Transport interface {
	// ReadRegister reads a single chip register
	ReadRegister(reg Register) (byte, error)

	// WriteRegister writes a single chip register
	WriteRegister(reg Register, value byte) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportWithRetry wraps a Transport with retry capabilities. The command
// executor itself never retries; hosts that want bus-level retry opt in by
// wrapping their transport before constructing the Device.
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// ReadRegister reads a register with retry logic
func (t *TransportWithRetry) ReadRegister(reg Register) (byte, error) {
	var result byte
	err := RetryWithConfig(context.Background(), t.config, func() error {
		var err error
		result, err = t.transport.ReadRegister(reg)
		return err
	})
	return result, err
}

// WriteRegister writes a register with retry logic
func (t *TransportWithRetry) WriteRegister(reg Register, value byte) error {
	return RetryWithConfig(context.Background(), t.config, func() error {
		return t.transport.WriteRegister(reg, value)
	})
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *TransportWithRetry) IsConnected() bool {
	return t.transport.IsConnected()
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}

// RegisterWrite records one register write observed by the mock transport
type RegisterWrite struct {
	Reg   Register
	Value byte
}

// MockTransport provides a mock register file implementation of Transport
// for testing. Reads come from per-register queues when configured,
// otherwise from the last value written; writes are recorded in order.
type MockTransport struct {
	regs       map[Register]byte
	readQueues map[Register][]byte
	readErrs   map[Register]error
	writeErrs  map[Register]error
	readCount  map[Register]int
	writes     []RegisterWrite
	mu         sync.RWMutex
	connected  bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		regs:       make(map[Register]byte),
		readQueues: make(map[Register][]byte),
		readErrs:   make(map[Register]error),
		writeErrs:  make(map[Register]error),
		readCount:  make(map[Register]int),
		connected:  true,
	}
}

// ReadRegister implements Transport
func (m *MockTransport) ReadRegister(reg Register) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrTransportClosed
	}
	m.readCount[reg]++

	if err, exists := m.readErrs[reg]; exists {
		return 0, err
	}

	if queue, exists := m.readQueues[reg]; exists && len(queue) > 0 {
		value := queue[0]
		m.readQueues[reg] = queue[1:]
		return value, nil
	}

	return m.regs[reg], nil
}

// WriteRegister implements Transport
func (m *MockTransport) WriteRegister(reg Register, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrTransportClosed
	}

	if err, exists := m.writeErrs[reg]; exists {
		return err
	}

	m.writes = append(m.writes, RegisterWrite{Reg: reg, Value: value})
	m.regs[reg] = value
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// SetRegister seeds a register value for subsequent reads
func (m *MockTransport) SetRegister(reg Register, value byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = value
}

// QueueReads queues successive read results for a register. Once the
// queue drains, reads fall back to the register file.
func (m *MockTransport) QueueReads(reg Register, values ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readQueues[reg] = append(m.readQueues[reg], values...)
}

// SetReadError injects an error for reads of a register. A nil error
// clears the fault.
func (m *MockTransport) SetReadError(reg Register, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.readErrs, reg)
		return
	}
	m.readErrs[reg] = err
}

// SetWriteError injects an error for writes of a register. A nil error
// clears the fault.
func (m *MockTransport) SetWriteError(reg Register, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.writeErrs, reg)
		return
	}
	m.writeErrs[reg] = err
}

// Writes returns every recorded register write in order
func (m *MockTransport) Writes() []RegisterWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RegisterWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// WritesTo returns the values written to a single register, in order
func (m *MockTransport) WritesTo(reg Register) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []byte{}
	for _, w := range m.writes {
		if w.Reg == reg {
			out = append(out, w.Value)
		}
	}
	return out
}

// ReadCount returns how many times a register has been read
func (m *MockTransport) ReadCount(reg Register) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readCount[reg]
}

// Reset clears recorded writes, queues, counters, and injected errors
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs = make(map[Register]byte)
	m.readQueues = make(map[Register][]byte)
	m.readErrs = make(map[Register]error)
	m.writeErrs = make(map[Register]error)
	m.readCount = make(map[Register]int)
	m.writes = nil
}
