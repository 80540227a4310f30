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

package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/albeebe/pushbridge/internal/pubsub"
	"github.com/albeebe/pushbridge/internal/signals"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
)

// Status is the outcome of a lifecycle operation as reported to the host
type Status string

const (
	StatusReady          Status = "ready"
	StatusFailed         Status = "failed"
	StatusDrained        Status = "drained"
	StatusDrainingFailed Status = "draining_failed"
)

// ErrTopicNotFound is reported when the topic to subscribe to doesn't exist
var ErrTopicNotFound = errors.New("Topic doesn't exist.")

// ClientFactory builds a Pub/Sub client authenticated as the credential
type ClientFactory interface {
	NewClient(ctx context.Context, cred *gcpcredentials.Credential) (pubsub.Client, error)
}

// ClientFactoryFunc adapts a function to a ClientFactory
type ClientFactoryFunc func(ctx context.Context, cred *gcpcredentials.Credential) (pubsub.Client, error)

// IDGenerator generates subscription ids
type IDGenerator interface {
	NewID() (string, error)
}

// Manager provisions and drains push subscriptions. It holds no per-block state
// and does no locking; the host sequences lifecycle events for a block.
type Manager struct {
	clients ClientFactory
	ids     IDGenerator
	log     *slog.Logger
}

// Config holds the dependencies of a Manager
type Config struct {
	Clients     ClientFactory // Required
	IDGenerator IDGenerator   // Defaults to RandomIDs
	Logger      *slog.Logger  // Defaults to slog.Default()
}

// ProvisionInput describes the subscription a block wants
type ProvisionInput struct {
	TopicID           string          // Topic to subscribe to, as configured by the user
	SubscriptionID    string          // Optional; generated when empty
	PushEndpoint      string          // URL assigned to the block by the host
	ServiceAccountKey string          // Raw service account key
	Signals           signals.Signals // State persisted by earlier lifecycle events
}

// ProvisionResult is the outcome of Provision
type ProvisionResult struct {
	Status           Status
	TopicName        string // Set when names should be recorded
	SubscriptionName string // Set when names should be recorded
	Description      string // Human readable failure reason
	Err              error  // Underlying error for failures, for logging and errors.Is
}

// DrainInput identifies the subscription to remove
type DrainInput struct {
	TopicName         string
	SubscriptionName  string
	ServiceAccountKey string
}

// DrainResult is the outcome of Drain
type DrainResult struct {
	Status      Status
	Description string
	Err         error
}

// NewClient calls f
func (f ClientFactoryFunc) NewClient(ctx context.Context, cred *gcpcredentials.Credential) (pubsub.Client, error) {
	return f(ctx, cred)
}

// Signals converts the result into the state to persist. The previous state is
// kept for results that don't carry names.
func (r ProvisionResult) Signals(previous signals.Signals) signals.Signals {
	next := previous
	switch r.Status {
	case StatusReady:
		next.Status = signals.StatusProvisioned
		next.Description = ""
		if r.SubscriptionName != "" {
			next.TopicName = r.TopicName
			next.SubscriptionName = r.SubscriptionName
		}
	case StatusFailed:
		next.Status = signals.StatusFailed
		next.Description = r.Description
	}
	return next
}
