// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"bchess.org/partitiond/pkg/actioneffect"
	"bchess.org/partitiond/pkg/healthstatus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"k8s.io/klog/v2"
)

// startLeaderElection drives a single partition's LeadershipState off a
// per-partition Lease: OnStartedLeading calls BecomeLeader with a freshly
// minted EpochSequenceNumber, OnStoppedLeading calls BecomeFollower. Real cluster
// attachment beyond this lease is out of scope (SPEC_FULL.md section 2a).
func startLeaderElection(ctx context.Context, opts *Options, p *Partition) error {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return fmt.Errorf("partitiond: leader election requires in-cluster config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return fmt.Errorf("partitiond: building kubernetes client: %w", err)
	}

	lock, err := resourcelock.New(resourcelock.LeasesResourceLock,
		opts.Namespace,
		"partitiond-"+opts.PartitionID,
		cs.CoreV1(),
		cs.CoordinationV1(),
		resourcelock.ResourceLockConfig{Identity: opts.NodeID})
	if err != nil {
		return fmt.Errorf("partitiond: creating lease lock: %w", err)
	}

	var sequence atomic.Uint64

	leCfg := leaderelection.LeaderElectionConfig{
		Lock:          lock,
		LeaseDuration: 15 * time.Second,
		RenewDeadline: 10 * time.Second,
		RetryPeriod:   2 * time.Second,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(lctx context.Context) {
				epoch := sequence.Add(1)
				klog.InfoS("became leader", "partition", opts.PartitionID, "epoch", epoch)
				esn := actioneffect.EpochSequenceNumber{PartitionID: opts.PartitionID, LeaderEpoch: epoch, SequenceNumber: epoch}
				if _, err := p.state.BecomeLeader(lctx, esn); err != nil {
					klog.ErrorS(err, "become_leader failed", "partition", opts.PartitionID)
					return
				}
				p.health.Update(healthstatus.Snapshot{PartitionID: opts.PartitionID, IsLeader: true, LeaderEpoch: epoch})
			},
			OnStoppedLeading: func() {
				klog.InfoS("lost leadership", "partition", opts.PartitionID)
				if err := p.state.BecomeFollower(context.Background()); err != nil {
					klog.ErrorS(err, "become_follower failed", "partition", opts.PartitionID)
				}
				p.health.Update(healthstatus.Snapshot{PartitionID: opts.PartitionID, IsLeader: false})
			},
			OnNewLeader: func(identity string) {
				klog.InfoS("new leader observed", "partition", opts.PartitionID, "identity", identity)
			},
		},
	}

	elector, err := leaderelection.NewLeaderElector(leCfg)
	if err != nil {
		return fmt.Errorf("partitiond: creating leader elector: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				elector.Run(ctx)
			}
		}
	}()
	return nil
}
