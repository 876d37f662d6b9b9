// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package leadership

import (
	"bchess.org/partitiond/pkg/actioneffect"
	"bchess.org/partitiond/pkg/invoker"
	"bchess.org/partitiond/pkg/shuffle"
)

// StreamItem is one merged observation from the three sources an
// ActionEffectStream fans in. Exactly one field is populated.
type StreamItem struct {
	InvokerEffect  *invoker.Effect
	ShuffleOutput  *shuffle.Output
	ActionEffect   *actioneffect.Effect
}

// ActionEffectStream merges invoker effects, shuffle progress reports and
// self-originated action effects into a single ordered-by-arrival channel
// for the partition processing loop to range over, so that loop does not
// need to select over three channels itself.
type ActionEffectStream struct {
	out  chan StreamItem
	done chan struct{}
}

func newActionEffectStream(invokerEffects <-chan invoker.Effect, shuffleOutputs <-chan shuffle.Output, actionEffects <-chan actioneffect.Effect) *ActionEffectStream {
	s := &ActionEffectStream{
		out:  make(chan StreamItem),
		done: make(chan struct{}),
	}
	go s.pump(invokerEffects, shuffleOutputs, actionEffects)
	return s
}

func (s *ActionEffectStream) pump(invokerEffects <-chan invoker.Effect, shuffleOutputs <-chan shuffle.Output, actionEffects <-chan actioneffect.Effect) {
	defer close(s.out)
	for {
		select {
		case e, ok := <-invokerEffects:
			if !ok {
				invokerEffects = nil
				continue
			}
			item := e
			s.send(StreamItem{InvokerEffect: &item})
		case o, ok := <-shuffleOutputs:
			if !ok {
				shuffleOutputs = nil
				continue
			}
			item := o
			s.send(StreamItem{ShuffleOutput: &item})
		case a, ok := <-actionEffects:
			if !ok {
				actionEffects = nil
				continue
			}
			item := a
			s.send(StreamItem{ActionEffect: &item})
		case <-s.done:
			return
		}
		if invokerEffects == nil && shuffleOutputs == nil && actionEffects == nil {
			return
		}
	}
}

func (s *ActionEffectStream) send(item StreamItem) {
	select {
	case s.out <- item:
	case <-s.done:
	}
}

// Items returns the channel of merged observations. It is closed once all
// three upstream sources are closed or Close is called.
func (s *ActionEffectStream) Items() <-chan StreamItem {
	return s.out
}

// Close stops the merge pump; callers do this on become_follower once they
// have stopped reading from Items.
func (s *ActionEffectStream) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
