// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package timer

import (
	"container/heap"
	"sync"
	"time"

	"bchess.org/partitiond/pkg/partitionstorage"
)

// Key addresses one timer for add/remove and for tie-breaking timers that
// share a fire time.
type Key struct {
	InvocationID string
	Kind         string
	Sequence     uint64
}

// Value is one scheduled timer.
type Value struct {
	Key     Key
	FireAt  time.Time
	Payload []byte
}

// heapSlice orders Values by fire time, then by key, in a min-heap.
type heapSlice []Value

func (h heapSlice) Len() int { return len(h) }
func (h heapSlice) Less(i, j int) bool {
	if !h[i].FireAt.Equal(h[j].FireAt) {
		return h[i].FireAt.Before(h[j].FireAt)
	}
	a, b := h[i].Key, h[j].Key
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	if a.InvocationID != b.InvocationID {
		return a.InvocationID < b.InvocationID
	}
	return a.Kind < b.Kind
}
func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x any)   { *h = append(*h, x.(Value)) }
func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Service is a priority queue of timers bounded to a fixed in-memory
// working set, with storage-backed spillover for everything beyond it. Its
// wake-on-earlier-deadline mechanism uses a sync.Cond plus time.AfterFunc
// so a newly added, sooner timer preempts a goroutine already waiting out
// an older one.
type Service struct {
	mu    sync.Mutex
	cond  *sync.Cond
	heap  heapSlice
	limit int

	storage partitionstorage.Storage
	evicted map[Key]bool

	closed bool
}

// New returns a TimerService bounded to limit in-memory entries, rehydrating
// evicted timers from storage as the working set drains.
func New(storage partitionstorage.Storage, limit int) *Service {
	s := &Service{
		heap:    heapSlice{},
		limit:   limit,
		storage: storage,
		evicted: make(map[Key]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	heap.Init(&s.heap)
	return s
}

// Add registers a new timer, waking NextTimer if this timer now fires
// soonest.
func (s *Service) Add(v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	wasEarliest := s.heap.Len() == 0 || v.FireAt.Before(s.heap[0].FireAt)
	heap.Push(&s.heap, v)

	if s.limit > 0 && s.heap.Len() > s.limit {
		s.evictFurthest()
	}
	if wasEarliest {
		s.cond.Broadcast()
	}
}

// evictFurthest moves the furthest-future timer out of memory, persisting
// its key so NextTimer knows to re-scan storage once the heap drains.
// Caller must hold s.mu.
func (s *Service) evictFurthest() {
	furthestIdx := 0
	for i := 1; i < s.heap.Len(); i++ {
		if s.heap[i].FireAt.After(s.heap[furthestIdx].FireAt) {
			furthestIdx = i
		}
	}
	furthest := s.heap[furthestIdx]
	last := s.heap.Len() - 1
	s.heap[furthestIdx], s.heap[last] = s.heap[last], s.heap[furthestIdx]
	s.heap = s.heap[:last]
	heap.Init(&s.heap)

	s.evicted[furthest.Key] = true
	if s.storage != nil {
		_ = s.storage.PutTimer(partitionstorage.TimerRecord{
			InvocationID: furthest.Key.InvocationID,
			Kind:         furthest.Key.Kind,
			Sequence:     furthest.Key.Sequence,
			FireAt:       furthest.FireAt,
			Payload:      furthest.Payload,
		})
	}
}

// Remove cancels a pending timer by key, whether it is currently in memory
// or has spilled to storage.
func (s *Service) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.heap {
		if v.Key == key {
			heap.Remove(&s.heap, i)
			s.cond.Broadcast()
			break
		}
	}
	delete(s.evicted, key)
	if s.storage != nil {
		_ = s.storage.DeleteTimer(key.InvocationID, key.Kind, key.Sequence)
	}
}

// NextTimer blocks until the earliest live timer fires and returns it. If
// the in-memory working set drains below the configured limit while
// evicted timers remain on disk, it transparently rehydrates from storage
// first.
func (s *Service) NextTimer() Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return Value{}
		}
		s.rehydrateLocked()

		if s.heap.Len() == 0 {
			s.cond.Wait()
			continue
		}

		wait := time.Until(s.heap[0].FireAt)
		if wait <= 0 {
			return heap.Pop(&s.heap).(Value)
		}

		fired := s.waitWithTimeout(wait)
		if !fired {
			continue
		}
	}
}

// waitWithTimeout releases the lock and blocks until either the timer
// expires or cond.Broadcast wakes it early because a new, sooner timer was
// added. Returns false if woken early (caller should re-check the heap
// head), true if the timeout elapsed naturally.
func (s *Service) waitWithTimeout(d time.Duration) bool {
	woken := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		close(woken)
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	for {
		select {
		case <-woken:
			return true
		default:
		}
		s.cond.Wait()
		select {
		case <-woken:
			return true
		default:
			return false
		}
	}
}

func (s *Service) rehydrateLocked() {
	if s.storage == nil || len(s.evicted) == 0 || s.heap.Len() >= s.limit {
		return
	}
	records, err := s.storage.ScanTimers(s.limit - s.heap.Len())
	if err != nil {
		return
	}
	for _, r := range records {
		key := Key{InvocationID: r.InvocationID, Kind: r.Kind, Sequence: r.Sequence}
		if !s.evicted[key] {
			continue
		}
		delete(s.evicted, key)
		heap.Push(&s.heap, Value{Key: key, FireAt: r.FireAt, Payload: r.Payload})
	}
}

// Close wakes any blocked NextTimer call so it returns a zero Value; used
// when the leadership core is dropping this TimerService on become_follower.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}
