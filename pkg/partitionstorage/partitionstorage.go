// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package partitionstorage

import (
	"sort"
	"sync"
	"time"
)

// InvocationID identifies a single workflow invocation.
type InvocationID string

// InvokedInvocation is a previously-invoked-but-not-yet-completed invocation
// discovered while scanning storage on become_leader.
type InvokedInvocation struct {
	ID     InvocationID
	Target string
}

// OutboxEntry is one pending message in the partition's outbox, waiting for
// Shuffle to drain it into Bifrost.
type OutboxEntry struct {
	SequenceNumber uint64
	Payload        []byte
}

// TimerRecord is a durable timer, as read back from storage by TimerService
// when the in-memory working set needs to be re-hydrated.
type TimerRecord struct {
	InvocationID string
	Kind         string
	Sequence     uint64
	FireAt       time.Time
	Payload      []byte
}

// Storage is the facade the leadership core depends on. Production
// deployments back this with an LSM-tree engine; the out-of-scope RocksDB
// binding is not implemented here. Store is a mutex-guarded in-memory
// reference implementation, sufficient to exercise every operation the core
// needs and to drive the seed test suite.
type Storage interface {
	// Clone returns a logically independent handle to the same underlying
	// store, the way a RocksDB column family handle would be cloned.
	Clone() Storage

	ScanInvokedInvocations() ([]InvokedInvocation, error)
	ScanOutbox(afterSequence uint64, limit int) ([]OutboxEntry, error)
	TruncateOutbox(throughSequence uint64) error
	AppendOutbox(entry OutboxEntry) error

	ScanTimers(limit int) ([]TimerRecord, error)
	PutTimer(TimerRecord) error
	DeleteTimer(invocationID, kind string, sequence uint64) error
}

// Store is an in-memory Storage implementation.
type Store struct {
	mu       *sync.Mutex
	invoked  *[]InvokedInvocation
	outbox   *[]OutboxEntry
	timers   *map[timerKey]TimerRecord
}

type timerKey struct {
	invocationID string
	kind         string
	sequence     uint64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	mu := &sync.Mutex{}
	invoked := []InvokedInvocation{}
	outbox := []OutboxEntry{}
	timers := make(map[timerKey]TimerRecord)
	return &Store{mu: mu, invoked: &invoked, outbox: &outbox, timers: &timers}
}

func (s *Store) Clone() Storage {
	return &Store{mu: s.mu, invoked: s.invoked, outbox: s.outbox, timers: s.timers}
}

func (s *Store) PutInvoked(inv InvokedInvocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.invoked = append(*s.invoked, inv)
}

func (s *Store) ScanInvokedInvocations() ([]InvokedInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InvokedInvocation, len(*s.invoked))
	copy(out, *s.invoked)
	return out, nil
}

func (s *Store) AppendOutbox(entry OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.outbox = append(*s.outbox, entry)
	return nil
}

func (s *Store) ScanOutbox(afterSequence uint64, limit int) ([]OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEntry
	for _, e := range *s.outbox {
		if e.SequenceNumber <= afterSequence {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) TruncateOutbox(throughSequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []OutboxEntry
	for _, e := range *s.outbox {
		if e.SequenceNumber > throughSequence {
			kept = append(kept, e)
		}
	}
	*s.outbox = kept
	return nil
}

func (s *Store) PutTimer(t TimerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	(*s.timers)[timerKey{t.InvocationID, t.Kind, t.Sequence}] = t
	return nil
}

func (s *Store) DeleteTimer(invocationID, kind string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(*s.timers, timerKey{invocationID, kind, sequence})
	return nil
}

func (s *Store) ScanTimers(limit int) ([]TimerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimerRecord, 0, len(*s.timers))
	for _, t := range *s.timers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
