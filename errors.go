// Copyright 2026 The OmniProg Project Contributors.
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

package memprog

import (
	"errors"
	"fmt"
)

// Error categories for error handling and caller-side retry policy.
// The core never retries on its own.
var (
	// Precondition errors - not retryable without the missing step
	ErrNoTechnologySelected  = errors.New("no memory technology selected")
	ErrTechnologyUnavailable = errors.New("technology not available in this session")

	// Request errors - not retryable
	ErrBoundaryViolation = errors.New("write crosses page boundary")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrInvalidBusAddress = errors.New("bus address outside 0x08-0x77")

	// Bus errors
	ErrTimeout   = errors.New("device ready-wait timeout")
	ErrBusAbsent = errors.New("device did not acknowledge")
	ErrBusWrite  = errors.New("bus write failed")
	ErrBusRead   = errors.New("bus read failed")
	ErrBusClosed = errors.New("bus is closed")

	// Post-hoc status errors - detected after the fact, not preventable
	ErrOperationFailed = errors.New("program/erase failed")
)

// ErrorType represents the category of error for caller retry logic.
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// DriverError wraps protocol-level errors with the failing operation
// and the bus the driver runs on.
type DriverError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Bus       string    // Bus or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable by the caller
}

func (e *DriverError) Error() string {
	if e.Bus != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Bus, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// NewDriverError creates a driver error with consistent formatting.
func NewDriverError(op, bus string, err error, errType ErrorType) *DriverError {
	return &DriverError{
		Op:        op,
		Bus:       bus,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a ready-wait timeout error. The operation may
// still complete on the device; the result is reported as possibly
// incomplete, never retried automatically.
func NewTimeoutError(op, bus string) *DriverError {
	return NewDriverError(op, bus, ErrTimeout, ErrorTypeTimeout)
}

// NewBusAbsentError creates an error for a target that does not
// acknowledge its bus address. No byte transfer was attempted.
func NewBusAbsentError(op, bus string) *DriverError {
	return NewDriverError(op, bus, ErrBusAbsent, ErrorTypePermanent)
}

// NewBoundaryViolationError creates an error for a write whose span
// crosses the technology's atomic program granularity.
func NewBoundaryViolationError(op, bus string) *DriverError {
	return NewDriverError(op, bus, ErrBoundaryViolation, ErrorTypePermanent)
}

// NewOperationFailedError creates an error for a set fail bit in the
// post-operation status register.
func NewOperationFailedError(op, bus string) *DriverError {
	return NewDriverError(op, bus, ErrOperationFailed, ErrorTypePermanent)
}

// NewBusWriteError creates a bus write error (transient).
func NewBusWriteError(op, bus string, err error) *DriverError {
	return NewDriverError(op, bus, fmt.Errorf("%w: %w", ErrBusWrite, err), ErrorTypeTransient)
}

// NewBusReadError creates a bus read error (transient).
func NewBusReadError(op, bus string, err error) *DriverError {
	return NewDriverError(op, bus, fmt.Errorf("%w: %w", ErrBusRead, err), ErrorTypeTransient)
}

// IsRetryable returns true if the error is potentially retryable by the
// caller. Retry policy is entirely the caller's responsibility.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var de *DriverError
	if errors.As(err, &de) {
		return de.Retryable
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrBusWrite),
		errors.Is(err, ErrBusRead):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the bus or device is gone
// and further operations on this driver are pointless.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var de *DriverError
	if errors.As(err, &de) {
		return de.Type == ErrorTypePermanent && !errors.Is(de.Err, ErrBoundaryViolation) &&
			!errors.Is(de.Err, ErrOperationFailed)
	}

	return errors.Is(err, ErrBusClosed)
}
