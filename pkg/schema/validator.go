// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

// NoopValidator accepts every subscription unconditionally. Used in tests
// and anywhere Kafka reachability does not need to be proven up front.
type NoopValidator struct{}

func (NoopValidator) Validate(Subscription) error { return nil }
