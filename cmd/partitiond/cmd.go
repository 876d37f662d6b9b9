// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

const (
	DefaultNumTimersInMemoryLimit = 4096
	DefaultChannelSize            = 256
)

// Options holds every flag partitiond accepts, in a flat struct-of-flags
// shape passed to Start once cobra finishes parsing.
type Options struct {
	GRPCAddr       string
	StatusAddr     string
	PartitionID    string
	KeyRangeStart  uint64
	KeyRangeEnd    uint64
	NumTimerLimit  int
	ChannelSize    int
	NodeID         string
	Peers          []string
	BifrostBackend string
	EtcdEndpoints  []string
	LeaderEligible bool
	Namespace      string
}

func NewPartitionCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "partitiond",
		Short: "Partition-leader workflow execution daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(setupSignalContext(), opts)
		},
	}

	fs := pflag.NewFlagSet("partitiond", pflag.ExitOnError)
	fs.StringVar(&opts.GRPCAddr, "grpc-addr", ":50061", "gRPC address for partition-to-partition ingress traffic")
	fs.StringVar(&opts.StatusAddr, "status-addr", ":8088", "HTTP address serving /status")
	fs.StringVar(&opts.PartitionID, "partition-id", envOr("PARTITION_ID", "p-0"), "this process's partition identifier")
	fs.Uint64Var(&opts.KeyRangeStart, "key-range-start", 0, "inclusive start of the owned partition key range")
	fs.Uint64Var(&opts.KeyRangeEnd, "key-range-end", ^uint64(0), "inclusive end of the owned partition key range")
	fs.IntVar(&opts.NumTimerLimit, "num-timers-in-memory-limit", DefaultNumTimersInMemoryLimit, "bound on the TimerService in-memory working set")
	fs.IntVar(&opts.ChannelSize, "channel-size", DefaultChannelSize, "buffer size for the effect/outbox channels")
	fs.StringVar(&opts.NodeID, "node-id", envOr("NODE_ID", ""), "this node's identifier, used by peers to dial it")
	fs.StringSliceVar(&opts.Peers, "peers", nil, "static node-id=address pairs, comma separated (node resolution source when not running under Kubernetes)")
	fs.StringVar(&opts.BifrostBackend, "bifrost-backend", "memory", "bifrost backend: \"memory\" or \"etcd\"")
	fs.StringSliceVar(&opts.EtcdEndpoints, "etcd-endpoints", nil, "etcd endpoints, required when bifrost-backend=etcd")
	fs.BoolVar(&opts.LeaderEligible, "leader-eligible", true, "whether this process should run for leader election")
	fs.StringVar(&opts.Namespace, "namespace", envOr("POD_NAMESPACE", "default"), "namespace holding the leader-election lease")
	cmd.Flags().AddFlagSet(fs)

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parsePeers turns "node-a=10.0.0.1:50061,node-b=10.0.0.2:50061" into a peer
// list the membership package can serve.
func parsePeers(raw []string) (map[string]string, error) {
	peers := make(map[string]string, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --peers entry %q, expected node-id=address", entry)
		}
		peers[parts[0]] = parts[1]
	}
	return peers, nil
}

func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		klog.Info("received shutdown signal")
		cancel()
	}()
	return ctx
}

