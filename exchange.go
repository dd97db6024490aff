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

// maxFrameLen caps how many bytes the executor reads back from the FIFO.
// The FIFO itself holds 64 bytes, but REQA and anti-collision frames never
// exceed 16; a larger level report is treated as noise.
const maxFrameLen = 16

// ExchangeStatus is the outcome kind of one command exchange
type ExchangeStatus int

const (
	// ExchangeOK means the command completed and the chip flagged no error
	ExchangeOK ExchangeStatus = iota
	// ExchangeNoCard means the command completed but the chip's timer
	// fired before any card answered
	ExchangeNoCard
	// ExchangeChipError means the chip latched error flags (collision,
	// parity, protocol violation, or FIFO overflow)
	ExchangeChipError
	// ExchangeTimeout means the poll budget ran out before the chip
	// signaled completion
	ExchangeTimeout
)

// String returns a human-readable status name
func (s ExchangeStatus) String() string {
	switch s {
	case ExchangeOK:
		return "ok"
	case ExchangeNoCard:
		return "no card"
	case ExchangeChipError:
		return "chip error"
	case ExchangeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ExchangeResult is the outcome of one command exchange with the chip.
// Results are plain values owned by the caller; the executor keeps no
// state between exchanges.
type ExchangeResult struct {
	// Data holds the response bytes read back from the FIFO. Only
	// populated for Transceive exchanges.
	Data []byte
	// Bits is the exact response length in bits. The last received byte
	// may be partially valid, so Bits is not always a multiple of 8.
	Bits int
	// Status is the outcome kind
	Status ExchangeStatus
	// ErrFlags holds the ErrorReg contents when Status is
	// ExchangeChipError
	ErrFlags Bitmask
}

// irqMasksFor returns the interrupt-enable mask and the completion
// wait-mask for a command. Commands other than Transceive and
// Authenticate complete without interrupt involvement.
func irqMasksFor(cmd Command) (enable, wait Bitmask) {
	switch cmd {
	case CmdAuthenticate:
		return IrqIdle | IrqErr, IrqIdle
	case CmdTransceive:
		return IrqTx | IrqRx | IrqIdle | IrqLoAlert | IrqErr | IrqTimer, IrqRx | IrqIdle
	default:
		return 0, 0
	}
}

// transceive loads a command and payload into the chip, starts execution,
// polls for completion within the configured budget, and extracts the
// response together with its exact bit length. It never retries and all
// protocol outcomes are reported through the result's Status; the returned
// error is non-nil only for register bus failures.
func (d *Device) transceive(cmd Command, payload []byte) (*ExchangeResult, error) {
	enable, wait := irqMasksFor(cmd)

	// Arm interrupts, clear any pending request, flush the receive FIFO.
	if err := d.transport.WriteRegister(ComIEnReg, byte(enable|IrqSet)); err != nil {
		return nil, err
	}
	if err := d.ClearRegisterBits(ComIrqReg, IrqSet); err != nil {
		return nil, err
	}
	if err := d.SetRegisterBits(FIFOLevelReg, FIFOFlush); err != nil {
		return nil, err
	}

	// Idle the command unit, stage the payload, then start the command.
	if err := d.transport.WriteRegister(CommandReg, byte(CmdIdle)); err != nil {
		return nil, err
	}
	for _, b := range payload {
		if err := d.transport.WriteRegister(FIFODataReg, b); err != nil {
			return nil, err
		}
	}
	if err := d.transport.WriteRegister(CommandReg, byte(cmd)); err != nil {
		return nil, err
	}
	if cmd == CmdTransceive {
		// Authenticate and the other commands start on the command write;
		// Transceive additionally waits for StartSend.
		if err := d.SetRegisterBits(BitFramingReg, StartSend); err != nil {
			return nil, err
		}
	}

	// Busy-wait for completion. The budget bounds iterations, not time;
	// exiting with zero iterations remaining is a failure even if the
	// final read carried the wait bits.
	var irq Bitmask
	remaining := d.config.PollBudget
	for {
		value, err := d.transport.ReadRegister(ComIrqReg)
		if err != nil {
			return nil, err
		}
		irq = Bitmask(value)
		remaining--
		if remaining == 0 || irq.Any(IrqTimer) || irq.Any(wait) {
			break
		}
	}

	if err := d.ClearRegisterBits(BitFramingReg, StartSend); err != nil {
		return nil, err
	}

	if remaining == 0 {
		debugf("transceive %#02x: poll budget exhausted, irq=0x%02X", byte(cmd), byte(irq))
		return &ExchangeResult{Status: ExchangeTimeout}, nil
	}

	errFlags, err := d.transport.ReadRegister(ErrorReg)
	if err != nil {
		return nil, err
	}
	if Bitmask(errFlags).Any(receiveErrors) {
		debugf("transceive %#02x: error flags 0x%02X", byte(cmd), errFlags)
		return &ExchangeResult{Status: ExchangeChipError, ErrFlags: Bitmask(errFlags)}, nil
	}

	result := &ExchangeResult{Status: ExchangeOK}
	if irq.Any(enable & IrqTimer) {
		// The chip's timer fired: the exchange ran clean but no card
		// answered. Distinct from a bus or protocol failure.
		result.Status = ExchangeNoCard
	}

	if cmd == CmdTransceive {
		if err := d.readFIFO(result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// readFIFO drains the response from the FIFO into the result and computes
// the exact bit length from the level and valid-bit registers.
func (d *Device) readFIFO(result *ExchangeResult) error {
	level, err := d.transport.ReadRegister(FIFOLevelReg)
	if err != nil {
		return err
	}
	control, err := d.transport.ReadRegister(ControlReg)
	if err != nil {
		return err
	}

	// Bit length is computed from the reported level; the read count below
	// is clamped separately.
	validBits := int(Bitmask(control) & RxLastBits)
	if validBits != 0 {
		result.Bits = (int(level)-1)*8 + validBits
	} else {
		result.Bits = int(level) * 8
	}

	count := int(level)
	if count == 0 {
		// Always attempt one read so a confused level report still yields
		// a byte to inspect.
		count = 1
	}
	if count > maxFrameLen {
		count = maxFrameLen
	}

	result.Data = make([]byte, count)
	for i := range result.Data {
		value, err := d.transport.ReadRegister(FIFODataReg)
		if err != nil {
			return err
		}
		result.Data[i] = value
	}

	debugf("transceive: read %d bytes (%d bits): %s", count, result.Bits, formatHexBytes(result.Data))
	return nil
}
