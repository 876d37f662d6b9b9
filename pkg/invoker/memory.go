// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package invoker

import (
	"context"
	"sync"

	"bchess.org/partitiond/pkg/partitionstorage"
	"bchess.org/partitiond/pkg/util"
	"k8s.io/klog/v2"
)

// InvocationJob is one unit of work pulled off the backlog by a worker.
type InvocationJob struct {
	PLE    PartitionLeaderEpoch
	ID     string
	Target InvocationTarget
}

type partitionState struct {
	reader  partitionstorage.Storage
	effects chan<- Effect
	aborted map[string]bool
}

// Memory is an in-memory reference Invoker, sufficient to drive the
// leadership core through become_leader/become_follower and to exercise the
// seed test suite without a real execution engine attached.
//
// Incoming Invoke calls are pushed onto a LIFO backlog and drained by a
// small fixed pool of worker goroutines, a blocking-stack idiom.
type Memory struct {
	backlog *util.Stack[InvocationJob]

	mu         sync.Mutex
	partitions map[PartitionLeaderEpoch]*partitionState

	handle func(ctx context.Context, job InvocationJob, effects chan<- Effect)

	workersOnce sync.Once
}

// NewMemory returns a Memory invoker with numWorkers worker goroutines
// draining its invocation backlog. handle is invoked for every accepted
// Invoke call whose partition is still registered and whose invocation has
// not been aborted when a worker picks it up; it should eventually send one
// or more Effects on the supplied channel and must not block indefinitely.
func NewMemory(numWorkers int, handle func(ctx context.Context, job InvocationJob, effects chan<- Effect)) *Memory {
	m := &Memory{
		backlog:    util.NewStack[InvocationJob](nil),
		partitions: make(map[PartitionLeaderEpoch]*partitionState),
		handle:     handle,
	}
	for i := 0; i < numWorkers; i++ {
		go m.worker()
	}
	return m
}

func (m *Memory) worker() {
	for {
		job := m.backlog.Pop()

		m.mu.Lock()
		state, ok := m.partitions[job.PLE]
		aborted := ok && state.aborted[job.ID]
		m.mu.Unlock()
		if !ok || aborted {
			continue
		}

		m.handle(context.Background(), job, state.effects)
	}
}

func (m *Memory) RegisterPartition(ple PartitionLeaderEpoch, reader partitionstorage.Storage, effects chan<- Effect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[ple] = &partitionState{reader: reader, effects: effects, aborted: make(map[string]bool)}
	return nil
}

func (m *Memory) Invoke(ctx context.Context, ple PartitionLeaderEpoch, invocationID string, target InvocationTarget, journal InputJournal) error {
	m.mu.Lock()
	_, ok := m.partitions[ple]
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	m.backlog.Push(InvocationJob{PLE: ple, ID: invocationID, Target: target})
	return nil
}

func (m *Memory) NotifyCompletion(ctx context.Context, ple PartitionLeaderEpoch, c Completion) error {
	m.mu.Lock()
	_, ok := m.partitions[ple]
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	klog.V(4).InfoS("invoker notified of completion", "invocation", c.InvocationID)
	return nil
}

func (m *Memory) NotifyStoredEntryAck(ctx context.Context, ple PartitionLeaderEpoch, invocationID string, entryIndex uint32) error {
	m.mu.Lock()
	_, ok := m.partitions[ple]
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	return nil
}

func (m *Memory) AbortInvocation(ctx context.Context, ple PartitionLeaderEpoch, invocationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.partitions[ple]
	if !ok {
		return ErrNotRunning
	}
	state.aborted[invocationID] = true
	return nil
}

func (m *Memory) AbortAllPartition(ctx context.Context, ple PartitionLeaderEpoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.partitions[ple]; !ok {
		return ErrNotRunning
	}
	delete(m.partitions, ple)
	return nil
}

var _ Invoker = (*Memory)(nil)
