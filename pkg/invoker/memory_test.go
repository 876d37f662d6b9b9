// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package invoker

import (
	"context"
	"testing"
	"time"

	"bchess.org/partitiond/pkg/partitionstorage"
)

func TestMemoryInvokeDeliversEffect(t *testing.T) {
	m := NewMemory(2, func(ctx context.Context, job InvocationJob, effects chan<- Effect) {
		effects <- Effect{InvocationID: job.ID, Kind: "Completed"}
	})

	ple := PartitionLeaderEpoch{PartitionID: "p-0", LeaderEpoch: 1}
	effects := make(chan Effect, 1)
	if err := m.RegisterPartition(ple, partitionstorage.NewStore(), effects); err != nil {
		t.Fatalf("RegisterPartition() error = %v", err)
	}

	if err := m.Invoke(context.Background(), ple, "inv-1", InvocationTarget{Component: "greeter"}, InputJournalNoCachedJournal); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	select {
	case e := <-effects:
		if e.InvocationID != "inv-1" || e.Kind != "Completed" {
			t.Fatalf("unexpected effect: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for effect")
	}
}

func TestMemoryInvokeUnregisteredPartitionFails(t *testing.T) {
	m := NewMemory(1, func(context.Context, InvocationJob, chan<- Effect) {})
	ple := PartitionLeaderEpoch{PartitionID: "p-0", LeaderEpoch: 1}
	err := m.Invoke(context.Background(), ple, "inv-1", InvocationTarget{}, InputJournalNoCachedJournal)
	if err != ErrNotRunning {
		t.Fatalf("Invoke() error = %v, want ErrNotRunning", err)
	}
}

func TestMemoryAbortInvocationSkipsHandler(t *testing.T) {
	called := make(chan struct{}, 1)
	m := NewMemory(1, func(ctx context.Context, job InvocationJob, effects chan<- Effect) {
		called <- struct{}{}
	})

	ple := PartitionLeaderEpoch{PartitionID: "p-0", LeaderEpoch: 1}
	if err := m.RegisterPartition(ple, partitionstorage.NewStore(), make(chan Effect, 1)); err != nil {
		t.Fatalf("RegisterPartition() error = %v", err)
	}
	if err := m.AbortInvocation(context.Background(), ple, "inv-1"); err != nil {
		t.Fatalf("AbortInvocation() error = %v", err)
	}
	if err := m.Invoke(context.Background(), ple, "inv-1", InvocationTarget{}, InputJournalNoCachedJournal); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	select {
	case <-called:
		t.Fatal("handler ran for an aborted invocation")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryAbortAllPartitionUnregisters(t *testing.T) {
	m := NewMemory(1, func(context.Context, InvocationJob, chan<- Effect) {})
	ple := PartitionLeaderEpoch{PartitionID: "p-0", LeaderEpoch: 1}
	if err := m.RegisterPartition(ple, partitionstorage.NewStore(), make(chan Effect, 1)); err != nil {
		t.Fatalf("RegisterPartition() error = %v", err)
	}
	if err := m.AbortAllPartition(context.Background(), ple); err != nil {
		t.Fatalf("AbortAllPartition() error = %v", err)
	}
	if err := m.NotifyStoredEntryAck(context.Background(), ple, "inv-1", 0); err != ErrNotRunning {
		t.Fatalf("NotifyStoredEntryAck() after AbortAllPartition error = %v, want ErrNotRunning", err)
	}
}
