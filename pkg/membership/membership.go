// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package membership

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Peer is one sibling partition-processor node.
type Peer struct {
	NodeID  string
	Address string
}

// PeerSource supplies the current, authoritative peer list. Real cluster
// attachment (how peers are actually discovered) is out of scope for this
// repository; production wiring in cmd/partitiond satisfies this from a
// static --peers flag, but the interface is the same shape a Kubernetes
// EndpointSlice watch or a gossip layer would satisfy.
type PeerSource interface {
	Peers(ctx context.Context) ([]Peer, error)
}

// Membership is a polled, cached view of sibling nodes: a mutex-guarded
// snapshot refreshed by a background loop, read by callers that must never
// block on the refresh.
type Membership struct {
	source PeerSource

	mu    sync.RWMutex
	peers map[string]string // nodeID -> address
}

// New returns a Membership with no peers until Run has completed at least
// one poll.
func New(source PeerSource) *Membership {
	return &Membership{source: source, peers: make(map[string]string)}
}

// Run polls source on the given interval until ctx is cancelled.
func (m *Membership) Run(ctx context.Context, pollInterval time.Duration) {
	m.refresh(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Membership) refresh(ctx context.Context) {
	peers, err := m.source.Peers(ctx)
	if err != nil {
		klog.ErrorS(err, "membership: refresh failed, keeping previous snapshot")
		return
	}
	next := make(map[string]string, len(peers))
	for _, p := range peers {
		next[p.NodeID] = p.Address
	}
	m.mu.Lock()
	m.peers = next
	m.mu.Unlock()
}

// Resolve implements networking.NodeResolver.
func (m *Membership) Resolve(nodeID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.peers[nodeID]
	return addr, ok
}

// Members returns a snapshot of every currently known peer.
func (m *Membership) Members() []Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Peer, 0, len(m.peers))
	for id, addr := range m.peers {
		out = append(out, Peer{NodeID: id, Address: addr})
	}
	return out
}

// StaticPeerSource is a PeerSource over a fixed list, used by cmd/partitiond
// when peers are supplied via a comma-separated flag, and by tests.
type StaticPeerSource []Peer

func (s StaticPeerSource) Peers(ctx context.Context) ([]Peer, error) {
	return []Peer(s), nil
}
