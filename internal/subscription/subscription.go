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

// Package subscription reconciles a block's push subscription with Pub/Sub:
// ensure the topic exists, ensure the subscription exists or create it with a
// push config, and later ensure it is deleted.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/albeebe/pushbridge/internal/pubsub"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
)

// New creates a Manager
func New(config Config) (*Manager, error) {
	if config.Clients == nil {
		return nil, errors.New("a ClientFactory is required")
	}
	m := &Manager{
		clients: config.Clients,
		ids:     config.IDGenerator,
		log:     config.Logger,
	}
	if m.ids == nil {
		m.ids = RandomIDs{}
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m, nil
}

// Provision ensures the block's push subscription exists. It is idempotent: once
// a subscription name has been recorded it returns ready without contacting
// Pub/Sub. Failures are reported in the result, never retried here.
func (m *Manager) Provision(ctx context.Context, in ProvisionInput) ProvisionResult {

	// A recorded subscription is never provisioned again
	if in.Signals.Provisioned() {
		return ProvisionResult{Status: StatusReady}
	}

	// Generate an id when the user didn't choose one
	subscriptionID := in.SubscriptionID
	if subscriptionID == "" {
		id, err := m.ids.NewID()
		if err != nil {
			return failed("Unable to generate a subscription id", err)
		}
		subscriptionID = id
	}

	// Load the credential before anything touches the network
	cred, err := gcpcredentials.Load(in.ServiceAccountKey)
	if err != nil {
		return failed(err.Error(), err)
	}
	if in.PushEndpoint == "" {
		return failed("The block has no push endpoint URL", errors.New("push endpoint is empty"))
	}

	client, err := m.clients.NewClient(ctx, cred)
	if err != nil {
		return failed(fmt.Sprintf("Unable to connect to Pub/Sub: %s", err.Error()), err)
	}
	defer m.close(client)

	// Confirm the topic exists
	topicExists, err := client.TopicExists(ctx, in.TopicID)
	if err != nil {
		return failed(fmt.Sprintf("Unable to check topic: %s", err.Error()), err)
	}
	if !topicExists {
		return failed(ErrTopicNotFound.Error(), ErrTopicNotFound)
	}

	// A subscription created out of band or by an earlier partial run counts as provisioned
	subscriptionExists, err := client.SubscriptionExists(ctx, subscriptionID)
	if err != nil {
		return failed(fmt.Sprintf("Unable to check subscription: %s", err.Error()), err)
	}
	if subscriptionExists {
		m.log.Info("subscription already exists",
			slog.String("topic", in.TopicID),
			slog.String("subscription", subscriptionID))
		result := ProvisionResult{Status: StatusReady}
		result.TopicName, result.SubscriptionName = canonicalNames(cred.ProjectID, in.TopicID, subscriptionID)
		return result
	}

	// Create the push subscription. Deliveries carry a token signed by the service
	// account with the endpoint itself as the audience.
	created, err := client.CreatePushSubscription(ctx, in.TopicID, subscriptionID, pubsub.PushConfig{
		Endpoint:            in.PushEndpoint,
		ServiceAccountEmail: cred.ClientEmail,
		Audience:            in.PushEndpoint,
	})
	if err != nil {
		m.log.Error("failed to create subscription",
			slog.Any("error", err),
			slog.String("topic", in.TopicID),
			slog.String("subscription", subscriptionID))
		return failed(fmt.Sprintf("Unable to create subscription: %s", err.Error()), err)
	}

	m.log.Info("subscription created",
		slog.String("topic_name", created.TopicName),
		slog.String("subscription_name", created.SubscriptionName),
		slog.String("push_endpoint", in.PushEndpoint))
	return ProvisionResult{
		Status:           StatusReady,
		TopicName:        created.TopicName,
		SubscriptionName: created.SubscriptionName,
	}
}

// Drain ensures the block's subscription no longer exists. A block that was
// never provisioned drains immediately. Existence is checked on every call so
// retries after draining_failed are safe.
func (m *Manager) Drain(ctx context.Context, in DrainInput) DrainResult {

	// Nothing was provisioned
	if in.TopicName == "" || in.SubscriptionName == "" {
		return DrainResult{Status: StatusDrained}
	}

	cred, err := gcpcredentials.Load(in.ServiceAccountKey)
	if err != nil {
		return drainingFailed(err.Error(), err)
	}

	client, err := m.clients.NewClient(ctx, cred)
	if err != nil {
		return drainingFailed(err.Error(), err)
	}
	defer m.close(client)

	exists, err := client.SubscriptionExists(ctx, in.SubscriptionName)
	if err != nil {
		return drainingFailed(err.Error(), err)
	}
	if exists {
		if err := client.DeleteSubscription(ctx, in.SubscriptionName); err != nil {
			return drainingFailed(err.Error(), err)
		}
		m.log.Info("subscription deleted", slog.String("subscription_name", in.SubscriptionName))
	}

	return DrainResult{Status: StatusDrained}
}

func (m *Manager) close(client pubsub.Client) {
	if err := client.Close(); err != nil {
		m.log.Warn("failed to close Pub/Sub client", slog.Any("error", err))
	}
}

// canonicalNames qualifies bare ids with the credential's project
func canonicalNames(projectID, topic, subscription string) (string, string) {
	topicName := topic
	if project, id, err := pubsub.ParseResourceName(topic, "topics", projectID); err == nil {
		topicName = pubsub.TopicName(project, id)
	}
	subscriptionName := subscription
	if project, id, err := pubsub.ParseResourceName(subscription, "subscriptions", projectID); err == nil {
		subscriptionName = pubsub.SubscriptionName(project, id)
	}
	return topicName, subscriptionName
}

func failed(description string, err error) ProvisionResult {
	return ProvisionResult{Status: StatusFailed, Description: description, Err: err}
}

func drainingFailed(description string, err error) DrainResult {
	return DrainResult{Status: StatusDrainingFailed, Description: description, Err: err}
}
