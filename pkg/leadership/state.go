// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package leadership

import (
	"context"
	"fmt"
	"time"

	"bchess.org/partitiond/pkg/actioneffect"
	"bchess.org/partitiond/pkg/bifrost"
	"bchess.org/partitiond/pkg/invoker"
	"bchess.org/partitiond/pkg/partitionstorage"
	"bchess.org/partitiond/pkg/shuffle"
	"bchess.org/partitiond/pkg/timer"
	"bchess.org/partitiond/pkg/util"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// IngressSender is the subset of pkg/networking's Sender the leadership
// core needs: a detached, best-effort send that never blocks the caller.
type IngressSender interface {
	SendDetached(ctx context.Context, nodeID string, payload []byte)
}

// Config carries everything a Follower needs, and therefore everything a
// partition needs across its whole lifetime regardless of leadership state.
type Config struct {
	PartitionID             string
	PartitionKeyRange       actioneffect.PartitionKeyRange
	NumTimersInMemoryLimit  int
	ChannelSize             int
	Invoker                 invoker.Invoker
	Bifrost                 bifrost.Bifrost
	Networking              IngressSender
	Storage                 partitionstorage.Storage
	NodeID                  string
}

// State is the tagged Follower/Leader state machine described in
// SPEC_FULL.md section 4.2. There is deliberately no exported way to
// construct a Leader directly: the only paths into Leader are
// NewFollower(...).BecomeLeader(...).
type State struct {
	cfg Config

	isLeader bool

	// leader-only fields, valid iff isLeader
	leaderEpoch         uint64
	shuffleCancel       context.CancelFunc
	shuffleDone         <-chan struct{}
	shuffleTask         *shuffle.Shuffle
	timerService        *timer.Service
	actionEffectHandler *actioneffect.Handler
	invokerEffects      chan invoker.Effect
	shuffleOutputs      chan shuffle.Output
	actionEffectsIn     chan actioneffect.Effect
	stream              *ActionEffectStream
}

// NewFollower constructs the initial state of a partition.
func NewFollower(cfg Config) *State {
	return &State{cfg: cfg}
}

// IsLeader reports whether this partition currently believes itself to be
// the leader.
func (s *State) IsLeader() bool { return s.isLeader }

func (s *State) partitionLeaderEpoch() invoker.PartitionLeaderEpoch {
	return invoker.PartitionLeaderEpoch{PartitionID: s.cfg.PartitionID, LeaderEpoch: s.leaderEpoch}
}

// BecomeLeader transitions Follower -> Leader (or Leader -> Leader, by first
// stepping down). See SPEC_FULL.md section 4.2 for the acquisition sequence.
func (s *State) BecomeLeader(ctx context.Context, esn actioneffect.EpochSequenceNumber) (*ActionEffectStream, error) {
	if s.isLeader {
		if err := s.BecomeFollower(ctx); err != nil {
			return nil, err
		}
	}

	ple := invoker.PartitionLeaderEpoch{PartitionID: s.cfg.PartitionID, LeaderEpoch: esn.LeaderEpoch}

	invokerEffects := make(chan invoker.Effect, s.cfg.ChannelSize)
	if err := s.cfg.Invoker.RegisterPartition(ple, s.cfg.Storage.Clone(), invokerEffects); err != nil {
		return nil, &InvokerError{Cause: err}
	}

	invoked, err := s.cfg.Storage.ScanInvokedInvocations()
	if err != nil {
		s.abortPartialAcquisition(ctx, ple)
		return nil, &StorageError{Cause: err}
	}
	resumed := 0
	for _, inv := range invoked {
		target := invoker.InvocationTarget{Component: inv.Target}
		if err := s.cfg.Invoker.Invoke(ctx, ple, string(inv.ID), target, invoker.InputJournalNoCachedJournal); err != nil {
			s.abortPartialAcquisition(ctx, ple)
			return nil, &InvokerError{Cause: err}
		}
		resumed++
	}
	klog.InfoS("resumed invoked invocations on leadership acquisition", "partition", s.cfg.PartitionID, "epoch", esn.LeaderEpoch, "count", resumed)

	timerService := timer.New(s.cfg.Storage.Clone(), s.cfg.NumTimersInMemoryLimit)

	shuffleOutputs := make(chan shuffle.Output, s.cfg.ChannelSize)
	shuffleTask := shuffle.New(
		shuffle.Metadata{PartitionID: s.cfg.PartitionID, LeaderEpoch: esn.LeaderEpoch, NodeID: s.cfg.NodeID},
		s.cfg.Storage.Clone(),
		s.cfg.Bifrost,
		shuffleOutputs,
		defaultShufflePollInterval,
	)
	shuffleCtx, shuffleCancel := context.WithCancel(ctx)
	go func() {
		if err := shuffleTask.Run(shuffleCtx); err != nil {
			klog.ErrorS(err, "shuffle task exited with error", "partition", s.cfg.PartitionID)
		}
	}()

	actionEffectHandler := actioneffect.New(s.cfg.PartitionID, esn, s.cfg.PartitionKeyRange, s.cfg.Bifrost)
	actionEffectsIn := make(chan actioneffect.Effect, s.cfg.ChannelSize)

	s.isLeader = true
	s.leaderEpoch = esn.LeaderEpoch
	s.shuffleCancel = shuffleCancel
	s.shuffleDone = shuffleTask.Done()
	s.shuffleTask = shuffleTask
	s.timerService = timerService
	s.actionEffectHandler = actionEffectHandler
	s.invokerEffects = invokerEffects
	s.shuffleOutputs = shuffleOutputs
	s.actionEffectsIn = actionEffectsIn

	stream := newActionEffectStream(invokerEffects, shuffleOutputs, actionEffectsIn)
	s.stream = stream
	return stream, nil
}

// defaultShufflePollInterval bounds how long Shuffle can go without
// observing a new outbox write in the absence of a hint.
const defaultShufflePollInterval = 2 * time.Second

// abortPartialAcquisition releases a partition registration made earlier in
// BecomeLeader once a later acquisition step fails, so a failed leadership
// takeover never leaves the invoker holding a registration nobody will ever
// follow up with a BecomeFollower call for.
func (s *State) abortPartialAcquisition(ctx context.Context, ple invoker.PartitionLeaderEpoch) {
	if err := s.cfg.Invoker.AbortAllPartition(ctx, ple); err != nil {
		klog.ErrorS(err, "failed to release partially acquired partition", "partition", ple.PartitionID, "epoch", ple.LeaderEpoch)
	}
}

// BecomeFollower transitions Leader -> Follower. Follower -> Follower is a
// no-op. The shuffle task is cancelled and the invoker is asked to abort
// every invocation for the outgoing epoch concurrently, then both are
// joined before the transition completes using a CountDownLatch to wait
// for both concurrent outcomes.
func (s *State) BecomeFollower(ctx context.Context) error {
	if !s.isLeader {
		return nil
	}

	latch := util.NewCountDownLatch(2, 1.0)
	var abortErr error

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer latch.Done()
		s.shuffleCancel()
		<-s.shuffleDone
		return nil
	})
	group.Go(func() error {
		defer latch.Done()
		err := s.cfg.Invoker.AbortAllPartition(groupCtx, s.partitionLeaderEpoch())
		if err != nil {
			abortErr = err
		}
		return err
	})

	latch.Wait()
	_ = group.Wait() // errors are surfaced via abortErr; shuffle's own error path already logged.

	if abortErr != nil {
		return &InvokerError{Cause: abortErr}
	}

	s.timerService.Close()
	s.stream.Close()

	s.isLeader = false
	s.leaderEpoch = 0
	s.shuffleCancel = nil
	s.shuffleDone = nil
	s.shuffleTask = nil
	s.timerService = nil
	s.actionEffectHandler = nil
	s.invokerEffects = nil
	s.shuffleOutputs = nil
	s.actionEffectsIn = nil
	s.stream = nil
	return nil
}

// RunTimer blocks until the next timer fires. As Follower it never returns
// until ctx is cancelled.
func (s *State) RunTimer(ctx context.Context) (timer.Value, error) {
	if !s.isLeader {
		<-ctx.Done()
		return timer.Value{}, ctx.Err()
	}
	return s.timerService.NextTimer(), nil
}

// HandleActions dispatches every action per SPEC_FULL.md section 4.2's
// table. As Follower, it is a no-op.
func (s *State) HandleActions(ctx context.Context, actions []Action) error {
	if !s.isLeader {
		return nil
	}
	ple := s.partitionLeaderEpoch()
	for _, a := range actions {
		if err := s.handleAction(ctx, ple, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) handleAction(ctx context.Context, ple invoker.PartitionLeaderEpoch, a Action) error {
	switch a.Kind {
	case ActionInvoke:
		if err := s.cfg.Invoker.Invoke(ctx, ple, a.InvocationID, a.Target, a.InputJournal); err != nil {
			return &InvokerError{Cause: err}
		}
	case ActionNewOutboxMessage:
		s.shuffleTask.Hint()
	case ActionRegisterTimer:
		s.timerService.Add(a.TimerValue)
	case ActionDeleteTimer:
		s.timerService.Remove(a.TimerKey)
	case ActionAckStoredEntry:
		if err := s.cfg.Invoker.NotifyStoredEntryAck(ctx, ple, a.InvocationID, a.StoredEntryIndex); err != nil {
			return &InvokerError{Cause: err}
		}
	case ActionForwardCompletion:
		if err := s.cfg.Invoker.NotifyCompletion(ctx, ple, a.Completion); err != nil {
			return &InvokerError{Cause: err}
		}
	case ActionAbortInvocation:
		if err := s.cfg.Invoker.AbortInvocation(ctx, ple, a.InvocationID); err != nil {
			return &InvokerError{Cause: err}
		}
	case ActionIngressResponse, ActionIngressSubmitNotification:
		s.sendIngressMessage(ctx, a.TargetNodeID, a.IngressPayload)
	case ActionScheduleInvocationStatusCleanup:
		select {
		case s.actionEffectsIn <- actioneffect.Effect{InvocationID: a.InvocationID, Kind: "ScheduleCleanupTimer"}:
		default:
			// The partition is shutting down or the effects consumer has
			// fallen behind; dropping this is acceptable, matching the
			// original design's deliberate "partition is shutting down"
			// rationale for ignoring this particular send's result.
		}
	default:
		return fmt.Errorf("leadership: unknown action kind %d", a.Kind)
	}
	return nil
}

// sendIngressMessage spawns a detached send so that a slow or unreachable
// ingress node never blocks the partition's main loop. Send failure is
// logged and the message is dropped; this favors availability of the
// partition over guaranteed delivery to ingress.
func (s *State) sendIngressMessage(ctx context.Context, targetNodeID string, payload []byte) {
	s.cfg.Networking.SendDetached(ctx, targetNodeID, payload)
}

// HandleActionEffects forwards externally observed effects to the
// ActionEffectHandler. As Follower, it is a no-op.
func (s *State) HandleActionEffects(ctx context.Context, effects []actioneffect.Effect) error {
	if !s.isLeader {
		return nil
	}
	return s.actionEffectHandler.Handle(ctx, effects)
}
