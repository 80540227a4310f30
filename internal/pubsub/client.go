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
	"errors"
	"fmt"
	"strings"

	ps "cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// NewGoogleClient creates a Client for the given project
func NewGoogleClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*GoogleClient, error) {

	// Ensure the context is not nil
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}
	if projectID == "" {
		return nil, errors.New("project id is empty")
	}

	client, err := ps.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}

	return &GoogleClient{
		client:    client,
		projectID: projectID,
	}, nil
}

// TopicExists reports whether the topic exists
func (g *GoogleClient) TopicExists(ctx context.Context, topic string) (bool, error) {
	project, id, err := ParseResourceName(topic, "topics", g.projectID)
	if err != nil {
		return false, err
	}
	return g.client.TopicInProject(id, project).Exists(ctx)
}

// SubscriptionExists reports whether the subscription exists
func (g *GoogleClient) SubscriptionExists(ctx context.Context, subscription string) (bool, error) {
	project, id, err := ParseResourceName(subscription, "subscriptions", g.projectID)
	if err != nil {
		return false, err
	}
	return g.client.SubscriptionInProject(id, project).Exists(ctx)
}

// CreatePushSubscription creates a push subscription whose deliveries carry an
// OIDC token signed by push.ServiceAccountEmail for push.Audience.
func (g *GoogleClient) CreatePushSubscription(ctx context.Context, topic, subscription string, push PushConfig) (*Created, error) {
	if err := push.Validate(); err != nil {
		return nil, fmt.Errorf("invalid push config: %w", err)
	}

	topicProject, topicID, err := ParseResourceName(topic, "topics", g.projectID)
	if err != nil {
		return nil, err
	}
	subscriptionProject, subscriptionID, err := ParseResourceName(subscription, "subscriptions", g.projectID)
	if err != nil {
		return nil, err
	}
	if subscriptionProject != g.projectID {
		return nil, fmt.Errorf("subscriptions can only be created in project '%s'", g.projectID)
	}

	t := g.client.TopicInProject(topicID, topicProject)
	sub, err := g.client.CreateSubscription(ctx, subscriptionID, ps.SubscriptionConfig{
		Topic: t,
		PushConfig: ps.PushConfig{
			Endpoint: push.Endpoint,
			AuthenticationMethod: &ps.OIDCToken{
				ServiceAccountEmail: push.ServiceAccountEmail,
				Audience:            push.Audience,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Created{
		TopicName:        t.String(),
		SubscriptionName: sub.String(),
	}, nil
}

// DeleteSubscription deletes the subscription
func (g *GoogleClient) DeleteSubscription(ctx context.Context, subscription string) error {
	project, id, err := ParseResourceName(subscription, "subscriptions", g.projectID)
	if err != nil {
		return err
	}
	return g.client.SubscriptionInProject(id, project).Delete(ctx)
}

// Close releases the underlying connection
func (g *GoogleClient) Close() error {
	return g.client.Close()
}

// ParseResourceName splits a Pub/Sub resource into its project and id. A bare id
// is resolved against defaultProject; a qualified name must have the form
// "projects/<project>/<collection>/<id>".
func ParseResourceName(name, collection, defaultProject string) (project, id string, err error) {
	if name == "" {
		return "", "", fmt.Errorf("%s name is empty", strings.TrimSuffix(collection, "s"))
	}
	if !strings.Contains(name, "/") {
		if defaultProject == "" {
			return "", "", fmt.Errorf("no project to resolve '%s' against", name)
		}
		return defaultProject, name, nil
	}

	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != collection || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("invalid %s name '%s'", strings.TrimSuffix(collection, "s"), name)
	}
	return parts[1], parts[3], nil
}

// TopicName returns the canonical name of a topic
func TopicName(project, id string) string {
	return fmt.Sprintf("projects/%s/topics/%s", project, id)
}

// SubscriptionName returns the canonical name of a subscription
func SubscriptionName(project, id string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", project, id)
}
