// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package bifrost

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
	"k8s.io/klog/v2"
)

// Etcd is a Bifrost backed by an etcd cluster. Every partition gets a
// high-water epoch key and an append-only range of record keys; Append uses
// a single transaction to both fence on the stored epoch and publish the
// record, so a losing leader's append never becomes visible once a newer
// epoch has already committed.
type Etcd struct {
	client *clientv3.Client
	prefix string

	mu  sync.Mutex
	seq map[string]partitionSeq
}

// partitionSeq tracks the next record sequence number to hand out for a
// partition's current epoch. Epoch fencing guarantees at most one process
// ever holds a given (partitionID, epoch) pair as leader, so an in-memory,
// per-process counter scoped to that pair is enough to keep every Append
// within an epoch at a distinct, growing key instead of all of them
// colliding on the same one.
type partitionSeq struct {
	epoch uint64
	next  int64
}

// NewEtcd dials the given endpoints. prefix namespaces all keys this
// Bifrost instance uses, so multiple logical clusters can share one etcd.
func NewEtcd(endpoints []string, prefix string) (*Etcd, error) {
	client, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("bifrost: connecting to etcd: %w", err)
	}
	return &Etcd{client: client, prefix: prefix, seq: make(map[string]partitionSeq)}, nil
}

// nextSeq returns the next record sequence number for (partitionID, epoch),
// resetting to 0 whenever epoch advances past whatever was last seen.
func (e *Etcd) nextSeq(partitionID string, epoch uint64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.seq[partitionID]
	if !ok || s.epoch != epoch {
		s = partitionSeq{epoch: epoch}
	}
	seq := s.next
	s.next++
	e.seq[partitionID] = s
	return seq
}

func (e *Etcd) Close() error {
	return e.client.Close()
}

func (e *Etcd) epochKey(partitionID string) string {
	return fmt.Sprintf("%s/%s/epoch", e.prefix, partitionID)
}

func (e *Etcd) recordKey(partitionID string, epoch uint64, seq int64) string {
	return fmt.Sprintf("%s/%s/log/%020d/%020d", e.prefix, partitionID, epoch, seq)
}

func (e *Etcd) Append(ctx context.Context, partitionID string, epoch uint64, record []byte) error {
	epochKey := e.epochKey(partitionID)

	current, err := e.HighWaterEpoch(ctx, partitionID)
	if err != nil {
		return err
	}
	if epoch < current {
		return ErrFencedEpoch
	}

	epochBytes := encodeEpoch(epoch)
	seq := e.nextSeq(partitionID, epoch)
	// The transaction re-checks the epoch at commit time against whatever
	// is currently stored (or absent), so a concurrent append from a newer
	// epoch between our read above and this commit still loses the race.
	txn := e.client.Txn(ctx).If(
		clientv3.Compare(clientv3.Value(epochKey), "<", string(epochBytes)+"\x00"),
	).Then(
		clientv3.OpPut(epochKey, string(epochBytes)),
		clientv3.OpPut(e.recordKey(partitionID, epoch, seq), string(record)),
	)
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("bifrost: etcd append transaction: %w", err)
	}
	if !resp.Succeeded {
		// Either the key never existed (comparison against a missing key
		// fails too) or a newer epoch already won; disambiguate by reading.
		current, readErr := e.HighWaterEpoch(ctx, partitionID)
		if readErr == nil && epoch >= current {
			return e.appendFirstEpoch(ctx, partitionID, epoch, seq, record)
		}
		return ErrFencedEpoch
	}
	klog.V(4).InfoS("bifrost append committed", "partition", partitionID, "epoch", epoch)
	return nil
}

// appendFirstEpoch handles the case where partitionID has no epoch key yet:
// etcd fails a Value comparison against a missing key, so Append's
// transaction always fails on a partition's first append and falls back to
// this create-if-absent transaction.
func (e *Etcd) appendFirstEpoch(ctx context.Context, partitionID string, epoch uint64, seq int64, record []byte) error {
	epochKey := e.epochKey(partitionID)
	txn := e.client.Txn(ctx).If(
		clientv3.Compare(clientv3.CreateRevision(epochKey), "=", 0),
	).Then(
		clientv3.OpPut(epochKey, string(encodeEpoch(epoch))),
		clientv3.OpPut(e.recordKey(partitionID, epoch, seq), string(record)),
	)
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("bifrost: etcd first-epoch append: %w", err)
	}
	if !resp.Succeeded {
		return ErrFencedEpoch
	}
	return nil
}

func (e *Etcd) HighWaterEpoch(ctx context.Context, partitionID string) (uint64, error) {
	resp, err := e.client.Get(ctx, e.epochKey(partitionID))
	if err != nil {
		return 0, fmt.Errorf("bifrost: reading high-water epoch: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}
	return decodeEpoch(resp.Kvs[0].Value), nil
}

func encodeEpoch(epoch uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, epoch)
	return buf
}

func decodeEpoch(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

var _ Bifrost = (*Etcd)(nil)
