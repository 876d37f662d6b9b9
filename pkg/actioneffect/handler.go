// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package actioneffect

import (
	"context"
	"fmt"

	"bchess.org/partitiond/pkg/bifrost"
)

// PartitionKeyRange is the inclusive key range a partition owns.
type PartitionKeyRange struct {
	Start uint64
	End   uint64
}

// EpochSequenceNumber is the fencing token assigned by the consensus layer
// when a node becomes leader for a partition.
type EpochSequenceNumber struct {
	PartitionID    string
	LeaderEpoch    uint64
	SequenceNumber uint64
}

// Effect is one observation the leadership core wants turned into a
// proposal appended to Bifrost (a timer fired, an invocation completed, a
// cleanup was scheduled).
type Effect struct {
	InvocationID string
	Kind         string
	Payload      []byte
}

// Handler appends effect-derived proposals to Bifrost under the current
// epoch. Bifrost itself rejects the append if a later epoch has since
// started, which is the actual fencing mechanism; Handler's job is only to
// shape the effect into a record and attempt the append.
type Handler struct {
	partitionID string
	esn         EpochSequenceNumber
	keyRange    PartitionKeyRange
	bifrost     bifrost.Bifrost
}

func New(partitionID string, esn EpochSequenceNumber, keyRange PartitionKeyRange, b bifrost.Bifrost) *Handler {
	return &Handler{partitionID: partitionID, esn: esn, keyRange: keyRange, bifrost: b}
}

// Handle appends every effect in order, stopping at the first fenced or
// failed append.
func (h *Handler) Handle(ctx context.Context, effects []Effect) error {
	for _, e := range effects {
		record := encodeEffect(e)
		if err := h.bifrost.Append(ctx, h.partitionID, h.esn.LeaderEpoch, record); err != nil {
			return fmt.Errorf("action effect handler: appending effect %q for invocation %q: %w", e.Kind, e.InvocationID, err)
		}
	}
	return nil
}

// encodeEffect produces the wire record appended to Bifrost. A real
// deployment would use the platform's structured proposal encoding; this
// repository uses a simple pipe-separated Kind|InvocationID|Payload framing
// sufficient to round-trip
// through the in-memory and etcd Bifrost implementations.
func encodeEffect(e Effect) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", e.Kind, e.InvocationID, e.Payload))
}
