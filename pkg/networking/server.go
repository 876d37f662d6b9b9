// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package networking

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"k8s.io/klog/v2"
)

// MessageHandler receives a payload sent by a peer node.
type MessageHandler func(fromNodeID string, payload []byte)

// Server accepts Networking.Send calls from peer nodes and dispatches them
// to a MessageHandler. It is the receiving half of the gRPC transport; see
// service.go for why this is a hand-registered ServiceDesc rather than a
// generated stub.
type Server struct {
	grpcServer *grpc.Server
	handler    MessageHandler
}

func NewServer(handler MessageHandler) *Server {
	s := &Server{handler: handler}
	s.grpcServer = grpc.NewServer()
	desc := serviceDesc(func(ctx context.Context, req sendRequest) error {
		s.handler(req.fromNodeID, req.payload)
		return nil
	})
	s.grpcServer.RegisterService(&desc, nil)
	return s
}

// Serve listens on addr and blocks until ctx is cancelled or an
// unrecoverable listen error occurs.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("networking: listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()

	klog.InfoS("networking server listening", "addr", addr)
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("networking: serve: %w", err)
	}
	return nil
}
