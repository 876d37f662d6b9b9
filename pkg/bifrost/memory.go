// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package bifrost

import (
	"context"
	"sync"
)

// Memory is an in-memory Bifrost, sufficient for tests and for exercising
// the leadership core's epoch-fencing behavior without etcd.
type Memory struct {
	mu         sync.Mutex
	highWater  map[string]uint64
	records    map[string][][]byte
}

func NewMemory() *Memory {
	return &Memory{
		highWater: make(map[string]uint64),
		records:   make(map[string][][]byte),
	}
}

func (m *Memory) Append(ctx context.Context, partitionID string, epoch uint64, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch < m.highWater[partitionID] {
		return ErrFencedEpoch
	}
	m.highWater[partitionID] = epoch
	m.records[partitionID] = append(m.records[partitionID], record)
	return nil
}

func (m *Memory) HighWaterEpoch(ctx context.Context, partitionID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWater[partitionID], nil
}

// Records returns every record appended for partitionID, for test assertions.
func (m *Memory) Records(partitionID string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.records[partitionID]))
	copy(out, m.records[partitionID])
	return out
}

var _ Bifrost = (*Memory)(nil)
