// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"k8s.io/klog/v2"
)

// ClusterAddresser resolves a Kafka cluster name (as used in a kafka://
// subscription source) to a set of broker seed addresses. Callers supply
// this; it is the only thing KafkaReachabilityValidator needs to know about
// cluster naming conventions.
type ClusterAddresser interface {
	SeedBrokers(cluster string) ([]string, error)
}

// KafkaReachabilityValidator confirms that a proposed Kafka subscription's
// cluster/topic pair is currently reachable before the subscription is
// accepted into the catalog. Only Source::Kafka subscriptions are checked;
// Sink::Component is already validated structurally by the updater.
type KafkaReachabilityValidator struct {
	addresser ClusterAddresser
	timeout   time.Duration

	mu      sync.Mutex
	clients map[string]*kgo.Client
}

func NewKafkaReachabilityValidator(addresser ClusterAddresser, timeout time.Duration) *KafkaReachabilityValidator {
	return &KafkaReachabilityValidator{
		addresser: addresser,
		timeout:   timeout,
		clients:   make(map[string]*kgo.Client),
	}
}

func (v *KafkaReachabilityValidator) Validate(sub Subscription) error {
	if sub.Source.Cluster == "" {
		return nil
	}
	client, err := v.clientFor(sub.Source.Cluster)
	if err != nil {
		return fmt.Errorf("resolving kafka cluster %q: %w", sub.Source.Cluster, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	req := kmsg.NewPtrMetadataRequest()
	topic := kmsg.NewMetadataRequestTopic()
	topic.Topic = kmsg.StringPtr(sub.Source.Topic)
	req.Topics = append(req.Topics, topic)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return fmt.Errorf("fetching metadata for kafka topic %q on cluster %q: %w", sub.Source.Topic, sub.Source.Cluster, err)
	}
	for _, t := range resp.Topics {
		if t.Topic != nil && *t.Topic == sub.Source.Topic && t.ErrorCode == 0 {
			return nil
		}
	}
	return fmt.Errorf("kafka topic %q not found on cluster %q", sub.Source.Topic, sub.Source.Cluster)
}

func (v *KafkaReachabilityValidator) clientFor(cluster string) (*kgo.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.clients[cluster]; ok {
		return c, nil
	}
	seeds, err := v.addresser.SeedBrokers(cluster)
	if err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(seeds...))
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("opened kafka client for cluster %q with seeds %v", cluster, seeds)
	v.clients[cluster] = client
	return client, nil
}

// Close releases every cached Kafka client.
func (v *KafkaReachabilityValidator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for cluster, c := range v.clients {
		c.Close()
		delete(v.clients, cluster)
	}
}
