// Copyright (c) 2026 Alan Beebe [www.alanbeebe.com]
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// Created: October 16, 2026

package pubsub

import (
	"context"
	"fmt"
	"sync"

	ps "cloud.google.com/go/pubsub"
)

// Client is the subset of Pub/Sub administration the subscription lifecycle needs.
// Topic and subscription arguments accept either a bare id, resolved against the
// client's project, or a fully qualified resource name.
type Client interface {
	TopicExists(ctx context.Context, topic string) (bool, error)
	SubscriptionExists(ctx context.Context, subscription string) (bool, error)
	CreatePushSubscription(ctx context.Context, topic, subscription string, push PushConfig) (*Created, error)
	DeleteSubscription(ctx context.Context, subscription string) error
	Close() error
}

// PushConfig describes where and how deliveries are pushed
type PushConfig struct {
	Endpoint            string // URL deliveries are POSTed to
	ServiceAccountEmail string // Service account that signs the OIDC token attached to each delivery
	Audience            string // Audience claim of the OIDC token
}

// Created holds the canonical names Pub/Sub assigned to a new subscription
type Created struct {
	TopicName        string // e.g. projects/acme/topics/orders
	SubscriptionName string // e.g. projects/acme/subscriptions/Xk3p9QaZ01
}

// GoogleClient implements Client on top of cloud.google.com/go/pubsub
type GoogleClient struct {
	client    *ps.Client
	projectID string
}

// PubSub publishes messages to topics
type PubSub struct {
	ctx    context.Context
	Client *ps.Client
	Topics map[string]*ps.Topic
	Mux    sync.RWMutex
}

// Config holds the configuration for a publisher
type Config struct {
	GCPProjectID string
}

// Validate checks the Config struct for required fields and
// returns an error if any required fields are missing
func (c *Config) Validate() error {

	if c.GCPProjectID == "" {
		return fmt.Errorf("GCPProjectID is empty")
	}
	return nil
}

// Validate checks the push configuration is complete
func (p *PushConfig) Validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("push endpoint is empty")
	}
	if p.ServiceAccountEmail == "" {
		return fmt.Errorf("service account email is empty")
	}
	if p.Audience == "" {
		return fmt.Errorf("audience is empty")
	}
	return nil
}
