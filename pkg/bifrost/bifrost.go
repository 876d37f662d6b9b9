// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package bifrost

import (
	"context"
	"errors"
)

// ErrFencedEpoch is returned when an Append targets an epoch that has
// already been superseded by a later leader for the same partition.
var ErrFencedEpoch = errors.New("bifrost: append rejected, a later epoch has already started")

// LogID names the append-only log a partition's proposals are written to.
// Durable consensus over this log is assumed provided; it is not
// implemented here.
type LogID string

// Bifrost is the consumed replicated-log contract. Append must reject
// writes from a stale epoch so that a partition leader that has lost its
// lease (but has not yet noticed) cannot corrupt the log a newer leader is
// already writing to.
type Bifrost interface {
	// Append writes record to the log for partitionID, fencing on epoch.
	// Returns ErrFencedEpoch if a higher epoch has already appended.
	Append(ctx context.Context, partitionID string, epoch uint64, record []byte) error

	// HighWaterEpoch returns the highest epoch that has successfully
	// appended to partitionID's log, or 0 if none has.
	HighWaterEpoch(ctx context.Context, partitionID string) (uint64, error)
}
