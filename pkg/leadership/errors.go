// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package leadership

import (
	"errors"
	"fmt"
)

// ErrShutdown is returned when an operation could not complete because the
// partition is shutting down; callers should treat it as a clean
// termination signal rather than a failure.
var ErrShutdown = errors.New("leadership: partition is shutting down")

// InvokerError wraps a failure from the invoker contract; it is fatal to
// the current leadership epoch.
type InvokerError struct{ Cause error }

func (e *InvokerError) Error() string { return fmt.Sprintf("invoker: %v", e.Cause) }
func (e *InvokerError) Unwrap() error { return e.Cause }

// StorageError wraps a failure reading or writing PartitionStorage; it is
// fatal to the current leadership epoch.
type StorageError struct{ Cause error }

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %v", e.Cause) }
func (e *StorageError) Unwrap() error { return e.Cause }
