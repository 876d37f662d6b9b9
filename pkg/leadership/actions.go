// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package leadership

import (
	"time"

	"bchess.org/partitiond/pkg/invoker"
	"bchess.org/partitiond/pkg/timer"
)

// ActionKind tags the variant of an Action, letting HandleActions dispatch
// without a type switch that would need to import every field's package
// just to discriminate.
type ActionKind int

const (
	ActionInvoke ActionKind = iota
	ActionNewOutboxMessage
	ActionRegisterTimer
	ActionDeleteTimer
	ActionAckStoredEntry
	ActionForwardCompletion
	ActionAbortInvocation
	ActionIngressResponse
	ActionIngressSubmitNotification
	ActionScheduleInvocationStatusCleanup
)

// Action is one command emitted by the (externally owned) partition
// processing loop for the leadership core to execute. Exactly one of the
// fields relevant to Kind is populated; this mirrors a Rust enum's payload
// without Go sum types.
type Action struct {
	Kind ActionKind

	InvocationID string

	// ActionInvoke
	Target        invoker.InvocationTarget
	InputJournal  invoker.InputJournal

	// ActionNewOutboxMessage
	OutboxSequence uint64
	OutboxPayload  []byte

	// ActionRegisterTimer
	TimerValue timer.Value

	// ActionDeleteTimer
	TimerKey timer.Key

	// ActionAckStoredEntry
	StoredEntryIndex uint32

	// ActionForwardCompletion
	Completion invoker.Completion

	// ActionIngressResponse / ActionIngressSubmitNotification
	TargetNodeID string
	IngressPayload []byte

	// ActionScheduleInvocationStatusCleanup
	Retention time.Duration
}
