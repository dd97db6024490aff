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
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"syscall"
)

// Error categories for error handling and retry logic
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Device errors - generally not retryable
	ErrDeviceNotFound      = errors.New("device not found")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrInvalidResponse     = errors.New("invalid response format")

	// Exchange errors - the command executor's failure modes. All are
	// recoverable by replaying the Request/AntiCollision sequence.
	ErrTimeout          = errors.New("command did not complete within the poll budget")
	ErrChipProtocol     = errors.New("chip flagged a protocol error")
	ErrNoCardDetected   = errors.New("no card responded in time")
	ErrUnexpectedLength = errors.New("unexpected response length")

	// Card errors - surfaced by the protocol layer
	ErrNoCardFound      = errors.New("no card found")
	ErrNoUIDFound       = errors.New("no UID found")
	ErrChecksumMismatch = errors.New("UID checksum mismatch")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps register bus errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ChipError reports error flags latched in the chip's error register after
// a failed exchange. It unwraps to ErrChipProtocol so callers can use
// errors.Is without inspecting individual flags.
type ChipError struct {
	Op    string  // Exchange that failed
	Flags Bitmask // ErrorReg contents at the time of failure
}

func (e *ChipError) Error() string {
	return fmt.Sprintf("%s: chip error flags 0x%02X (%s)", e.Op, byte(e.Flags), describeErrorFlags(e.Flags))
}

func (*ChipError) Unwrap() error {
	return ErrChipProtocol
}

// describeErrorFlags renders the set ErrorReg bits in human-readable form.
// Flag meanings are from the MFRC522 data sheet, section 9.3.1.7.
func describeErrorFlags(flags Bitmask) string {
	var set []string
	if flags.Any(ErrBufferOvfl) {
		set = append(set, "FIFO overflow")
	}
	if flags.Any(ErrCollision) {
		set = append(set, "bit collision")
	}
	if flags.Any(ErrParity) {
		set = append(set, "parity failure")
	}
	if flags.Any(ErrProtocol) {
		set = append(set, "protocol violation")
	}
	if len(set) == 0 {
		return "no flags set"
	}
	return strings.Join(set, ", ")
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	// A collision or parity failure can succeed on the next exchange, and
	// transport hiccups are worth one more bus transaction.
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed),
		errors.Is(err, ErrChipProtocol),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device/connection is gone
// and polling should stop entirely. This is distinct from IsRetryable which
// indicates whether a single operation can be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating device
// disconnection. These occur when a USB bus adapter is unplugged mid-I/O.
func isDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}

		if runtime.GOOS == "windows" {
			//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
			switch errno {
			case errAccessDenied, errGenFailure, errNoSuchDevice:
				return true
			}
		}
	}

	return false
}

// Error constructors for consistent error creation

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewTransportNotReadyError creates a transport not ready error (timeout)
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportNotReady, ErrorTypeTimeout)
}

// NewInvalidResponseError creates an invalid response error (permanent)
func NewInvalidResponseError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrInvalidResponse, ErrorTypePermanent)
}
