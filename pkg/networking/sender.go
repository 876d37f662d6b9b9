// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package networking

import (
	"context"
	"fmt"
	"net"
	"sync"

	"bchess.org/partitiond/pkg/util"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"k8s.io/klog/v2"
)

// NodeResolver resolves a node id to a dialable address. pkg/membership
// implements this.
type NodeResolver interface {
	Resolve(nodeID string) (string, bool)
}

// Sender is the Networking.Send implementation the leadership core depends
// on (see SPEC_FULL.md section 6). Connections are cached per destination
// address behind a sync.Mutex-guarded map held on the Sender instance so
// multiple partitions on one process do not share connection lifecycles
// unexpectedly.
type Sender struct {
	selfNodeID string
	resolver   NodeResolver

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewSender(selfNodeID string, resolver NodeResolver) *Sender {
	return &Sender{
		selfNodeID: selfNodeID,
		resolver:   resolver,
		conns:      make(map[string]*grpc.ClientConn),
	}
}

// Send delivers payload to nodeID. Errors are the caller's to log and drop;
// Send itself does not retry.
func (s *Sender) Send(ctx context.Context, nodeID string, payload []byte) error {
	addr, ok := s.resolver.Resolve(nodeID)
	if !ok {
		return fmt.Errorf("networking: no known address for node %q", nodeID)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = util.GRPCAddress(addr, "7777")
	}

	conn, err := s.connFor(addr)
	if err != nil {
		return err
	}

	req := encodeSendRequest(sendRequest{fromNodeID: s.selfNodeID, payload: payload})
	var reply []byte
	err = conn.Invoke(ctx, "/"+serviceName+"/Send", req, &reply, grpc.ForceCodec(&RawCodec{Parent: encoding.GetCodec("proto")}))
	if err != nil {
		s.mu.Lock()
		delete(s.conns, addr)
		s.mu.Unlock()
		return fmt.Errorf("networking: send to node %q at %s: %w", nodeID, addr, err)
	}
	return nil
}

func (s *Sender) connFor(addr string) (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("networking: dialing %s: %w", addr, err)
	}
	s.conns[addr] = conn
	klog.V(4).InfoS("networking opened connection", "addr", addr)
	return conn, nil
}

// SendDetached spawns Send as a background goroutine and drops the error on
// failure (logging it), matching send_ingress_message's availability-over-
// delivery trade-off for ingress responses: a slow or unreachable ingress
// node must never block the partition's main loop.
func (s *Sender) SendDetached(ctx context.Context, nodeID string, payload []byte) {
	go func() {
		if err := s.Send(ctx, nodeID, payload); err != nil {
			klog.ErrorS(err, "dropped detached network send", "node", nodeID)
		}
	}()
}

var _ NodeResolver = (*staticResolver)(nil)

type staticResolver map[string]string

func (r staticResolver) Resolve(nodeID string) (string, bool) {
	addr, ok := r[nodeID]
	return addr, ok
}

// NewStaticResolver is a small NodeResolver useful for tests and for single
// static peer lists.
func NewStaticResolver(addrs map[string]string) NodeResolver {
	return staticResolver(addrs)
}
