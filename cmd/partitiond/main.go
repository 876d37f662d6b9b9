// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package main

import (
	"log"
)

func main() {
	cmd := NewPartitionCommand()

	if err := cmd.Execute(); err != nil {
		log.Fatalf("Failed to execute partitiond: %v", err)
	}
}
