// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package leadership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bchess.org/partitiond/pkg/actioneffect"
	"bchess.org/partitiond/pkg/bifrost"
	"bchess.org/partitiond/pkg/invoker"
	"bchess.org/partitiond/pkg/partitionstorage"
)

type fakeInvoker struct {
	mu         sync.Mutex
	registered map[string]chan<- invoker.Effect
	invoked    []string
	aborted    []invoker.PartitionLeaderEpoch
	failInvoke error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{registered: make(map[string]chan<- invoker.Effect)}
}

func (f *fakeInvoker) RegisterPartition(ple invoker.PartitionLeaderEpoch, _ partitionstorage.Storage, effects chan<- invoker.Effect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[ple.PartitionID] = effects
	return nil
}

func (f *fakeInvoker) Invoke(_ context.Context, _ invoker.PartitionLeaderEpoch, invocationID string, _ invoker.InvocationTarget, _ invoker.InputJournal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInvoke != nil {
		return f.failInvoke
	}
	f.invoked = append(f.invoked, invocationID)
	return nil
}

func (f *fakeInvoker) NotifyCompletion(context.Context, invoker.PartitionLeaderEpoch, invoker.Completion) error {
	return nil
}

func (f *fakeInvoker) NotifyStoredEntryAck(context.Context, invoker.PartitionLeaderEpoch, string, uint32) error {
	return nil
}

func (f *fakeInvoker) AbortInvocation(context.Context, invoker.PartitionLeaderEpoch, string) error {
	return nil
}

func (f *fakeInvoker) AbortAllPartition(_ context.Context, ple invoker.PartitionLeaderEpoch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, ple)
	return nil
}

var _ invoker.Invoker = (*fakeInvoker)(nil)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendDetached(_ context.Context, nodeID string, _ []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, nodeID)
}

func newTestState(inv invoker.Invoker, sender IngressSender) *State {
	return NewFollower(Config{
		PartitionID:            "p-0",
		PartitionKeyRange:      actioneffect.PartitionKeyRange{Start: 0, End: 1 << 32},
		NumTimersInMemoryLimit: 16,
		ChannelSize:            8,
		Invoker:                inv,
		Bifrost:                bifrost.NewMemory(),
		Networking:             sender,
		Storage:                partitionstorage.NewStore(),
		NodeID:                 "node-a",
	})
}

func TestBecomeLeaderResumesInvokedInvocations(t *testing.T) {
	inv := newFakeInvoker()
	store := partitionstorage.NewStore()
	store.PutInvoked(partitionstorage.InvokedInvocation{ID: "inv-1", Target: "greeter/Greet"})
	store.PutInvoked(partitionstorage.InvokedInvocation{ID: "inv-2", Target: "greeter/Greet"})

	s := NewFollower(Config{
		PartitionID:            "p-0",
		PartitionKeyRange:      actioneffect.PartitionKeyRange{Start: 0, End: 1 << 32},
		NumTimersInMemoryLimit: 16,
		ChannelSize:            8,
		Invoker:                inv,
		Bifrost:                bifrost.NewMemory(),
		Networking:             &fakeSender{},
		Storage:                store,
		NodeID:                 "node-a",
	})

	stream, err := s.BecomeLeader(context.Background(), actioneffect.EpochSequenceNumber{PartitionID: "p-0", LeaderEpoch: 1, SequenceNumber: 1})
	if err != nil {
		t.Fatalf("BecomeLeader() error = %v", err)
	}
	defer stream.Close()

	if !s.IsLeader() {
		t.Fatal("expected IsLeader() == true after BecomeLeader")
	}
	if len(inv.invoked) != 2 {
		t.Fatalf("expected 2 resumed invocations, got %d: %v", len(inv.invoked), inv.invoked)
	}
}

func TestBecomeLeaderReleasesRegistrationOnResumeFailure(t *testing.T) {
	inv := newFakeInvoker()
	inv.failInvoke = errors.New("invoke boom")
	store := partitionstorage.NewStore()
	store.PutInvoked(partitionstorage.InvokedInvocation{ID: "inv-1", Target: "greeter/Greet"})

	s := NewFollower(Config{
		PartitionID:            "p-0",
		PartitionKeyRange:      actioneffect.PartitionKeyRange{Start: 0, End: 1 << 32},
		NumTimersInMemoryLimit: 16,
		ChannelSize:            8,
		Invoker:                inv,
		Bifrost:                bifrost.NewMemory(),
		Networking:             &fakeSender{},
		Storage:                store,
		NodeID:                 "node-a",
	})

	_, err := s.BecomeLeader(context.Background(), actioneffect.EpochSequenceNumber{PartitionID: "p-0", LeaderEpoch: 7, SequenceNumber: 1})
	if err == nil {
		t.Fatal("BecomeLeader() with a failing resume invoke succeeded, want an error")
	}
	if s.IsLeader() {
		t.Fatal("expected IsLeader() == false after a failed acquisition")
	}
	if len(inv.aborted) != 1 || inv.aborted[0].LeaderEpoch != 7 {
		t.Fatalf("expected the partial registration to be released via AbortAllPartition for epoch 7, got %v", inv.aborted)
	}
}

func TestBecomeFollowerAbortsAllAndStopsLeading(t *testing.T) {
	inv := newFakeInvoker()
	s := newTestState(inv, &fakeSender{})

	stream, err := s.BecomeLeader(context.Background(), actioneffect.EpochSequenceNumber{PartitionID: "p-0", LeaderEpoch: 5, SequenceNumber: 1})
	if err != nil {
		t.Fatalf("BecomeLeader() error = %v", err)
	}
	_ = stream

	if err := s.BecomeFollower(context.Background()); err != nil {
		t.Fatalf("BecomeFollower() error = %v", err)
	}
	if s.IsLeader() {
		t.Fatal("expected IsLeader() == false after BecomeFollower")
	}
	if len(inv.aborted) != 1 || inv.aborted[0].LeaderEpoch != 5 {
		t.Fatalf("expected one AbortAllPartition call for epoch 5, got %v", inv.aborted)
	}
}

func TestBecomeFollowerOnFollowerIsNoOp(t *testing.T) {
	s := newTestState(newFakeInvoker(), &fakeSender{})
	if err := s.BecomeFollower(context.Background()); err != nil {
		t.Fatalf("BecomeFollower() on a fresh Follower returned error: %v", err)
	}
}

func TestHandleActionsAsFollowerIsNoOp(t *testing.T) {
	s := newTestState(newFakeInvoker(), &fakeSender{})
	err := s.HandleActions(context.Background(), []Action{{Kind: ActionInvoke, InvocationID: "x"}})
	if err != nil {
		t.Fatalf("HandleActions() as Follower returned error: %v", err)
	}
}

func TestHandleActionsDispatchesIngressAndDropsOnShutdown(t *testing.T) {
	inv := newFakeInvoker()
	sender := &fakeSender{}
	s := newTestState(inv, sender)

	stream, err := s.BecomeLeader(context.Background(), actioneffect.EpochSequenceNumber{PartitionID: "p-0", LeaderEpoch: 1, SequenceNumber: 1})
	if err != nil {
		t.Fatalf("BecomeLeader() error = %v", err)
	}
	defer stream.Close()

	actions := []Action{
		{Kind: ActionIngressResponse, TargetNodeID: "node-b", IngressPayload: []byte("hello")},
	}
	if err := s.HandleActions(context.Background(), actions); err != nil {
		t.Fatalf("HandleActions() error = %v", err)
	}

	deadline := time.After(time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.sent)
		sender.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected sendIngressMessage to reach the sender")
		case <-time.After(time.Millisecond):
		}
	}

	if err := s.BecomeFollower(context.Background()); err != nil {
		t.Fatalf("BecomeFollower() error = %v", err)
	}

	// Once a Follower again, actions (including ingress) are no-ops: a
	// shut-down partition drops further ingress sends rather than queuing
	// them, matching the availability-over-delivery design this mirrors.
	if err := s.HandleActions(context.Background(), actions); err != nil {
		t.Fatalf("HandleActions() after BecomeFollower returned error: %v", err)
	}
	sender.mu.Lock()
	n := len(sender.sent)
	sender.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected ingress sends to stop after BecomeFollower, got %d total sends", n)
	}
}
