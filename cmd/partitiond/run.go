// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package main

import (
	"context"
	"fmt"
	"time"

	"bchess.org/partitiond/pkg/actioneffect"
	"bchess.org/partitiond/pkg/bifrost"
	"bchess.org/partitiond/pkg/healthstatus"
	"bchess.org/partitiond/pkg/invoker"
	"bchess.org/partitiond/pkg/leadership"
	"bchess.org/partitiond/pkg/membership"
	"bchess.org/partitiond/pkg/networking"
	"bchess.org/partitiond/pkg/partitionstorage"
	"k8s.io/klog/v2"
)

const (
	membershipPollInterval = 5 * time.Second
	DefaultInvokerWorkers  = 8
)

// handleInvocation is the reference Invoker's work function: it has no real
// execution engine to drive, so it reports the invocation as immediately
// completed. Real deployments replace the whole invoker.Invoker
// implementation, not this function; see the invoker.Invoker doc comment.
func handleInvocation(ctx context.Context, job invoker.InvocationJob, effects chan<- invoker.Effect) {
	select {
	case effects <- invoker.Effect{InvocationID: job.ID, Kind: "Completed"}:
	case <-ctx.Done():
	}
}

// Partition bundles a running LeadershipState together with the ambient
// networking, membership, and health services wired around it.
type Partition struct {
	opts *Options

	state      *leadership.State
	bifrost    bifrost.Bifrost
	networking *networking.Sender
	membership *membership.Membership
	health     *healthstatus.Server
	server     *networking.Server
}

func Run(ctx context.Context, opts *Options) error {
	p, err := Start(ctx, opts)
	if err != nil {
		return fmt.Errorf("partitiond: %w", err)
	}
	return p.run(ctx)
}

func Start(ctx context.Context, opts *Options) (*Partition, error) {
	peers, err := parsePeers(opts.Peers)
	if err != nil {
		return nil, err
	}

	bf, err := newBifrost(ctx, opts)
	if err != nil {
		return nil, err
	}

	mem := membership.New(membership.StaticPeerSource(peersToSlice(peers)))
	go mem.Run(ctx, membershipPollInterval)

	sender := networking.NewSender(opts.NodeID, mem)

	srv := networking.NewServer(func(fromNodeID string, payload []byte) {
		klog.V(4).InfoS("received ingress message", "from", fromNodeID, "bytes", len(payload))
	})
	go func() {
		if err := srv.Serve(ctx, opts.GRPCAddr); err != nil {
			klog.ErrorS(err, "networking server exited")
		}
	}()

	health := healthstatus.NewServer(opts.StatusAddr)
	go func() {
		if err := health.Start(); err != nil {
			klog.ErrorS(err, "health/status server exited")
		}
	}()

	inv := invoker.NewMemory(DefaultInvokerWorkers, handleInvocation)
	storage := partitionstorage.NewStore()

	state := leadership.NewFollower(leadership.Config{
		PartitionID:            opts.PartitionID,
		PartitionKeyRange:      actioneffect.PartitionKeyRange{Start: opts.KeyRangeStart, End: opts.KeyRangeEnd},
		NumTimersInMemoryLimit: opts.NumTimerLimit,
		ChannelSize:            opts.ChannelSize,
		Invoker:                inv,
		Bifrost:                bf,
		Networking:             sender,
		Storage:                storage,
		NodeID:                 opts.NodeID,
	})

	p := &Partition{
		opts:       opts,
		state:      state,
		bifrost:    bf,
		networking: sender,
		membership: mem,
		health:     health,
		server:     srv,
	}

	if opts.LeaderEligible {
		if err := startLeaderElection(ctx, opts, p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Partition) run(ctx context.Context) error {
	<-ctx.Done()
	klog.InfoS("shutting down partitiond", "partition", p.opts.PartitionID)
	if p.state.IsLeader() {
		if err := p.state.BecomeFollower(context.Background()); err != nil {
			klog.ErrorS(err, "error stepping down during shutdown")
		}
	}
	_ = p.health.Stop()
	return nil
}

func peersToSlice(peers map[string]string) []membership.Peer {
	out := make([]membership.Peer, 0, len(peers))
	for nodeID, addr := range peers {
		out = append(out, membership.Peer{NodeID: nodeID, Address: addr})
	}
	return out
}
