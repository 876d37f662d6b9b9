// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package main

import (
	"context"
	"fmt"

	"bchess.org/partitiond/pkg/bifrost"
)

func newBifrost(ctx context.Context, opts *Options) (bifrost.Bifrost, error) {
	switch opts.BifrostBackend {
	case "", "memory":
		return bifrost.NewMemory(), nil
	case "etcd":
		if len(opts.EtcdEndpoints) == 0 {
			return nil, fmt.Errorf("partitiond: --bifrost-backend=etcd requires --etcd-endpoints")
		}
		return bifrost.NewEtcd(opts.EtcdEndpoints, "partitiond")
	default:
		return nil, fmt.Errorf("partitiond: unknown --bifrost-backend %q", opts.BifrostBackend)
	}
}
