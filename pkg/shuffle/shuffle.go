// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package shuffle

import (
	"context"
	"time"

	"bchess.org/partitiond/pkg/bifrost"
	"bchess.org/partitiond/pkg/partitionstorage"
	"k8s.io/klog/v2"
)

// Metadata identifies which partition/epoch/node a Shuffle instance is
// draining the outbox for.
type Metadata struct {
	PartitionID string
	LeaderEpoch uint64
	NodeID      string
}

// Output is one observation Shuffle reports back to the leadership core as
// it makes progress, delivered on the channel passed to Run.
type Output struct {
	ThroughSequence uint64
}

// Shuffle drains a partition's outbox into Bifrost. Hints are advisory:
// correctness never depends on a hint being received, only liveness does,
// so the hint channel is a lossy, non-blocking send.
type Shuffle struct {
	metadata Metadata
	storage  partitionstorage.Storage
	bifrost  bifrost.Bifrost

	hint   chan struct{}
	output chan<- Output

	pollInterval time.Duration
	done         chan struct{}
}

// New constructs a Shuffle. output is owned by the caller and will receive
// progress reports; Shuffle never closes it.
func New(metadata Metadata, storage partitionstorage.Storage, b bifrost.Bifrost, output chan<- Output, pollInterval time.Duration) *Shuffle {
	return &Shuffle{
		metadata:     metadata,
		storage:      storage,
		bifrost:      b,
		hint:         make(chan struct{}, 1),
		output:       output,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// Hint wakes Run to re-poll the outbox immediately rather than waiting for
// the next poll tick. Never blocks: if a hint is already pending, this one
// is dropped.
func (s *Shuffle) Hint() {
	select {
	case s.hint <- struct{}{}:
	default:
	}
}

// Run drains the outbox until ctx is cancelled, then terminates gracefully
// and closes Done. Run is called at most once per Shuffle: a second call
// panics on return, closing Done again.
func (s *Shuffle) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	defer close(s.done)

	var throughSequence uint64
	for {
		if err := s.drainOnce(ctx, &throughSequence); err != nil {
			klog.ErrorS(err, "shuffle drain failed", "partition", s.metadata.PartitionID, "epoch", s.metadata.LeaderEpoch)
		}

		select {
		case <-ctx.Done():
			klog.V(2).InfoS("shuffle terminating", "partition", s.metadata.PartitionID, "epoch", s.metadata.LeaderEpoch)
			return nil
		case <-s.hint:
		case <-ticker.C:
		}
	}
}

func (s *Shuffle) drainOnce(ctx context.Context, throughSequence *uint64) error {
	entries, err := s.storage.ScanOutbox(*throughSequence, 256)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := s.bifrost.Append(ctx, s.metadata.PartitionID, s.metadata.LeaderEpoch, e.Payload); err != nil {
			return err
		}
		*throughSequence = e.SequenceNumber
	}
	if err := s.storage.TruncateOutbox(*throughSequence); err != nil {
		return err
	}
	select {
	case s.output <- Output{ThroughSequence: *throughSequence}:
	case <-ctx.Done():
	}
	return nil
}

// Done is closed once Run has returned.
func (s *Shuffle) Done() <-chan struct{} {
	return s.done
}
