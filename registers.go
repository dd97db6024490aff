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

// Register identifies one of the MFRC522's 8-bit registers.
// The chip's register space spans 0x00-0x3F; only the registers this
// library touches are named here.
type Register byte

// Registers used by the command executor and the protocol layer.
const (
	// CommandReg starts and stops command execution.
	CommandReg Register = 0x01
	// ComIEnReg enables and disables interrupt request propagation.
	ComIEnReg Register = 0x02
	// ComIrqReg holds the interrupt request bits.
	ComIrqReg Register = 0x04
	// DivIrqReg holds the CRC and MFIN interrupt request bits.
	DivIrqReg Register = 0x05
	// ErrorReg reports the error status of the last command executed.
	ErrorReg Register = 0x06
	// FIFODataReg is the input and output port of the 64-byte FIFO buffer.
	FIFODataReg Register = 0x09
	// FIFOLevelReg reports the number of bytes stored in the FIFO.
	FIFOLevelReg Register = 0x0A
	// ControlReg holds miscellaneous control bits, including the count of
	// valid bits in the last received byte.
	ControlReg Register = 0x0C
	// BitFramingReg adjusts bit-oriented framing for transmit and receive.
	BitFramingReg Register = 0x0D
)

// Registers used during initialization and diagnostics.
const (
	// ModeReg defines general transmit and receive modes.
	ModeReg Register = 0x11
	// TxControlReg controls the antenna driver pins TX1 and TX2.
	TxControlReg Register = 0x14
	// TxASKReg controls transmit modulation.
	TxASKReg Register = 0x15
	// TModeReg and TPrescalerReg configure the internal timer.
	TModeReg       Register = 0x2A
	TPrescalerReg  Register = 0x2B
	TReloadRegHi   Register = 0x2C
	TReloadRegLo   Register = 0x2D
	// VersionReg identifies the chip version (0x91 = v1.0, 0x92 = v2.0).
	VersionReg Register = 0x37
)

// Command is an opcode the chip's command unit executes.
type Command byte

// Chip commands.
const (
	// CmdIdle cancels the current command and places the chip in idle.
	CmdIdle Command = 0x00
	// CmdCalcCRC activates the CRC coprocessor.
	CmdCalcCRC Command = 0x03
	// CmdTransmit transmits the FIFO contents.
	CmdTransmit Command = 0x04
	// CmdReceive activates the receiver circuits.
	CmdReceive Command = 0x08
	// CmdTransceive transmits the FIFO contents and activates the
	// receiver afterwards. This is the workhorse for card exchanges.
	CmdTransceive Command = 0x0C
	// CmdAuthenticate performs the MIFARE Crypto1 authentication.
	CmdAuthenticate Command = 0x0E
	// CmdSoftReset resets the chip.
	CmdSoftReset Command = 0x0F
)

// Bitmask is a set of bits within a single chip register. Mask composition
// is done with named constants rather than raw numeric literals.
type Bitmask byte

// Any reports whether any bit of flags is set in the mask.
func (m Bitmask) Any(flags Bitmask) bool {
	return m&flags != 0
}

// ComIrqReg / ComIEnReg bits. The same bit positions are shared between the
// interrupt request register and the interrupt enable register.
const (
	// IrqSet is the Set1 bit of ComIrqReg. Writing the register with this
	// bit clear clears the indicated request bits. In ComIEnReg the same
	// position controls the polarity of the IRQ pin and is always set when
	// arming interrupts.
	IrqSet Bitmask = 0x80
	// IrqTx fires when the last bit of transmitted data left the antenna.
	IrqTx Bitmask = 0x40
	// IrqRx fires when the receiver detects the end of a valid data stream.
	IrqRx Bitmask = 0x20
	// IrqIdle fires when a command terminates on its own.
	IrqIdle Bitmask = 0x10
	// IrqHiAlert and IrqLoAlert fire on FIFO watermark crossings.
	IrqHiAlert Bitmask = 0x08
	IrqLoAlert Bitmask = 0x04
	// IrqErr fires when ErrorReg flags an error.
	IrqErr Bitmask = 0x02
	// IrqTimer fires when the internal timer underflows. The timer is the
	// chip-side timeout signal for card exchanges.
	IrqTimer Bitmask = 0x01
)

// ErrorReg bits.
const (
	// ErrBufferOvfl indicates the FIFO overflowed during receive.
	ErrBufferOvfl Bitmask = 0x10
	// ErrCollision indicates a bit collision was detected.
	ErrCollision Bitmask = 0x08
	// ErrParity indicates a parity check failure.
	ErrParity Bitmask = 0x02
	// ErrProtocol indicates an SOF/EOF protocol violation.
	ErrProtocol Bitmask = 0x01

	// receiveErrors are the ErrorReg bits that invalidate a received frame.
	receiveErrors = ErrBufferOvfl | ErrCollision | ErrParity | ErrProtocol
)

// FIFOLevelReg, BitFramingReg and ControlReg bits.
const (
	// FIFOFlush clears the FIFO buffer and its overflow flag.
	FIFOFlush Bitmask = 0x80
	// StartSend begins transmission of the FIFO contents. Only valid in
	// combination with the Transceive command.
	StartSend Bitmask = 0x80
	// RxLastBits masks the ControlReg field holding the number of valid
	// bits in the last received byte. Zero means the whole byte is valid.
	RxLastBits Bitmask = 0x07
)

// TxControlReg bits.
const (
	// AntennaDrivers are the Tx1RFEn and Tx2RFEn output driver bits.
	AntennaDrivers Bitmask = 0x03
)

// txShortFrame requests a 7-bit final byte in BitFramingReg, the short
// frame format REQA and WUPA are transmitted with.
const txShortFrame byte = 0x07

// PICC command bytes sent to the card.
const (
	piccAntiCollCL1 byte = 0x93 // anti-collision cascade level 1
	piccNVB         byte = 0x20 // "number of valid bits": 2 bytes, no UID known
)
