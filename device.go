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
)

// DefaultPollBudget is the number of ComIrqReg reads the command executor
// performs before giving up on an exchange. The bound is an iteration
// count, not a wall-clock timeout; the chip's own timer interrupt is the
// real timeout signal and is configured by Init.
const DefaultPollBudget = 2000

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retry behavior for bus operations
	RetryConfig *RetryConfig
	// PollBudget bounds the command executor's completion poll loop
	PollBudget int
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: DefaultRetryConfig(),
		PollBudget:  DefaultPollBudget,
	}
}

// Device represents an MFRC522 reader chip behind a register bus. The
// caller owns the handle and its lifecycle; multiple independent handles
// may coexist for multiple chips on distinct bus addresses.
//
// Thread Safety: Device is NOT thread-safe. All methods must be called from
// a single goroutine or protected with external synchronization. An
// exchange interleaved with another caller's register traffic would corrupt
// the FIFO and interrupt-flag state mid-flight.
type Device struct {
	transport Transport
	config    *DeviceConfig
}

// New creates a new MFRC522 device with the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Init resets the chip and configures it for ISO14443A exchanges: timer
// setup for the ~25ms receive timeout, 100% ASK modulation, CRC preset
// 0x6363, and antenna drivers on.
func (d *Device) Init() error {
	if err := d.Reset(); err != nil {
		return err
	}

	// Timer: TAuto on, prescaler and reload chosen so the timer underflows
	// roughly 25ms after transmission ends.
	regs := []RegisterWrite{
		{Reg: TModeReg, Value: 0x8D},
		{Reg: TPrescalerReg, Value: 0x3E},
		{Reg: TReloadRegLo, Value: 30},
		{Reg: TReloadRegHi, Value: 0},
		// Force100ASK
		{Reg: TxASKReg, Value: 0x40},
		// CRC preset 0x6363 per ISO14443-3
		{Reg: ModeReg, Value: 0x3D},
	}
	for _, w := range regs {
		if err := d.transport.WriteRegister(w.Reg, w.Value); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}

	return d.AntennaOn()
}

// Reset issues a soft reset command to the chip
func (d *Device) Reset() error {
	if err := d.transport.WriteRegister(CommandReg, byte(CmdSoftReset)); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	return nil
}

// AntennaOn enables the antenna driver pins if they are not already on
func (d *Device) AntennaOn() error {
	value, err := d.transport.ReadRegister(TxControlReg)
	if err != nil {
		return fmt.Errorf("antenna on: %w", err)
	}
	if Bitmask(value)&AntennaDrivers == AntennaDrivers {
		return nil
	}
	return d.SetRegisterBits(TxControlReg, AntennaDrivers)
}

// AntennaOff disables the antenna driver pins
func (d *Device) AntennaOff() error {
	return d.ClearRegisterBits(TxControlReg, AntennaDrivers)
}

// Version reads the chip version register. Known values are 0x91 (v1.0)
// and 0x92 (v2.0); clones report other values but remain usable.
func (d *Device) Version() (byte, error) {
	version, err := d.transport.ReadRegister(VersionReg)
	if err != nil {
		return 0, fmt.Errorf("version: %w", err)
	}
	return version, nil
}

// SetRegisterBits sets the given bits of a register, leaving the others
// undisturbed (read-modify-write).
func (d *Device) SetRegisterBits(reg Register, bits Bitmask) error {
	value, err := d.transport.ReadRegister(reg)
	if err != nil {
		return fmt.Errorf("set bits 0x%02X of %#02x: %w", byte(bits), byte(reg), err)
	}
	if err := d.transport.WriteRegister(reg, value|byte(bits)); err != nil {
		return fmt.Errorf("set bits 0x%02X of %#02x: %w", byte(bits), byte(reg), err)
	}
	return nil
}

// ClearRegisterBits clears the given bits of a register, leaving the
// others undisturbed (read-modify-write).
func (d *Device) ClearRegisterBits(reg Register, bits Bitmask) error {
	value, err := d.transport.ReadRegister(reg)
	if err != nil {
		return fmt.Errorf("clear bits 0x%02X of %#02x: %w", byte(bits), byte(reg), err)
	}
	if err := d.transport.WriteRegister(reg, value&^byte(bits)); err != nil {
		return fmt.Errorf("clear bits 0x%02X of %#02x: %w", byte(bits), byte(reg), err)
	}
	return nil
}

// Transport returns the transport backing this device
func (d *Device) Transport() Transport {
	return d.transport
}

// Close closes the underlying transport
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
