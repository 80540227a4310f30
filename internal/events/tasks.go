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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"google.golang.org/protobuf/types/known/durationpb"
)

// TaskConfig describes where a TaskSink sends events
type TaskConfig struct {
	Queue          string        // Fully qualified queue name, projects/<p>/locations/<l>/queues/<q>
	CallbackURL    string        // URL receiving each event as a JSON POST
	ServiceAccount string        // Service account signing the OIDC token attached to each task
	Timeout        time.Duration // Dispatch deadline of each task
}

// TaskSink turns each event into a Cloud Tasks HTTP task, so downstream
// consumers get Cloud Tasks' retries and rate limiting.
type TaskSink struct {
	config TaskConfig
	create func(ctx context.Context, req *taskspb.CreateTaskRequest) (*taskspb.Task, error)
}

// Validate checks the TaskConfig struct for required fields
func (c *TaskConfig) Validate() error {
	if c.Queue == "" {
		return fmt.Errorf("Queue is empty")
	}
	if c.CallbackURL == "" {
		return fmt.Errorf("CallbackURL is empty")
	}
	if c.ServiceAccount == "" {
		return fmt.Errorf("ServiceAccount is empty")
	}
	return nil
}

// NewTaskSink returns a sink creating tasks with client
func NewTaskSink(client *cloudtasks.Client, config TaskConfig) (*TaskSink, error) {
	if client == nil {
		return nil, errors.New("cloud tasks client is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &TaskSink{
		config: config,
		create: func(ctx context.Context, req *taskspb.CreateTaskRequest) (*taskspb.Task, error) {
			return client.CreateTask(ctx, req)
		},
	}, nil
}

// Emit creates a task POSTing the event to the callback URL
func (t *TaskSink) Emit(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	// Configure the task
	task := taskspb.Task{
		MessageType: &taskspb.Task_HttpRequest{
			HttpRequest: &taskspb.HttpRequest{
				Url:        t.config.CallbackURL,
				Body:       body,
				HttpMethod: taskspb.HttpMethod_POST,
				Headers:    map[string]string{"Content-Type": "application/json"},
				AuthorizationHeader: &taskspb.HttpRequest_OidcToken{
					OidcToken: &taskspb.OidcToken{
						ServiceAccountEmail: t.config.ServiceAccount,
						Audience:            t.config.CallbackURL,
					},
				},
			},
		},
		DispatchDeadline: durationpb.New(t.config.Timeout),
	}

	// Create the task
	if _, err := t.create(ctx, &taskspb.CreateTaskRequest{
		Parent: t.config.Queue,
		Task:   &task,
	}); err != nil {
		return fmt.Errorf("failed to create task for message '%s': %w", event.MessageID, err)
	}
	return nil
}
