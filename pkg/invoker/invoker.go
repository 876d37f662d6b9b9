// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package invoker

import (
	"context"
	"errors"

	"bchess.org/partitiond/pkg/partitionstorage"
)

// ErrNotRunning is returned by every Invoker method once the invoker for a
// given partition/epoch has shut down or was never registered.
var ErrNotRunning = errors.New("invoker is not running for this partition epoch")

// PartitionLeaderEpoch identifies one term of leadership for one partition,
// the unit the invoker fences its internal state against.
type PartitionLeaderEpoch struct {
	PartitionID string
	LeaderEpoch uint64
}

// InvocationTarget names the component/handler/key an invocation targets.
type InvocationTarget struct {
	Component string
	Handler   string
	Key       string
}

// InputJournal selects how Invoke should seed a fresh invocation's journal.
type InputJournal int

const (
	InputJournalNoCachedJournal InputJournal = iota
	InputJournalCachedJournal
)

// Completion is an externally observed result delivered back to a suspended invocation.
type Completion struct {
	InvocationID string
	Payload      []byte
}

// Effect is what the invoker reports back to the leadership core as work progresses.
type Effect struct {
	InvocationID string
	Kind         string
	Payload      []byte
}

// Invoker is the consumed contract the leadership core drives. Production
// deployments wire this to the journal-replaying execution engine; that
// engine's internals are out of scope here.
type Invoker interface {
	RegisterPartition(ple PartitionLeaderEpoch, reader partitionstorage.Storage, effects chan<- Effect) error
	Invoke(ctx context.Context, ple PartitionLeaderEpoch, invocationID string, target InvocationTarget, journal InputJournal) error
	NotifyCompletion(ctx context.Context, ple PartitionLeaderEpoch, c Completion) error
	NotifyStoredEntryAck(ctx context.Context, ple PartitionLeaderEpoch, invocationID string, entryIndex uint32) error
	AbortInvocation(ctx context.Context, ple PartitionLeaderEpoch, invocationID string) error
	AbortAllPartition(ctx context.Context, ple PartitionLeaderEpoch) error
}
