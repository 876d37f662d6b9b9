// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package healthstatus

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"k8s.io/klog/v2"
)

// Snapshot is the leadership state reported on /status.
type Snapshot struct {
	PartitionID string `json:"partitionId"`
	IsLeader    bool   `json:"isLeader"`
	LeaderEpoch uint64 `json:"leaderEpoch,omitempty"`
}

// Server is a plain, unauthenticated status endpoint reporting the current
// leadership state of every partition on this node: listen, serve a JSON
// handler, close on Stop.
type Server struct {
	addr   string
	server *http.Server

	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewServer(addr string) *Server {
	return &Server{addr: addr, snapshots: make(map[string]Snapshot)}
}

// Update records the latest known leadership state for a partition.
func (s *Server) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.PartitionID] = snap
}

func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.addr, Handler: http.HandlerFunc(s.handleStatus)}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("healthstatus: listen: %w", err)
	}
	klog.InfoS("starting health/status server", "addr", s.addr)
	return s.server.Serve(listener)
}

func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/status" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.mu.RLock()
	snapshots := make([]Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snapshots = append(snapshots, snap)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		klog.ErrorS(err, "healthstatus: failed to encode response")
	}
}
