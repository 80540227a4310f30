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
	"errors"
	"fmt"
)

// Publisher publishes a message to a Pub/Sub topic
type Publisher interface {
	Publish(ctx context.Context, topic string, message interface{}, attributes map[string]string) (string, error)
}

// PubSubSink republishes each event, JSON encoded, to a topic
type PubSubSink struct {
	publisher Publisher
	topic     string
}

// NewPubSubSink returns a sink publishing to topic
func NewPubSubSink(publisher Publisher, topic string) (*PubSubSink, error) {
	if publisher == nil {
		return nil, errors.New("publisher is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is empty")
	}
	return &PubSubSink{publisher: publisher, topic: topic}, nil
}

// Emit publishes the event. The original message id and block travel as attributes.
func (p *PubSubSink) Emit(ctx context.Context, event Event) error {
	attributes := map[string]string{
		"source_message_id": event.MessageID,
		"block_id":          event.BlockID,
	}
	if _, err := p.publisher.Publish(ctx, p.topic, event, attributes); err != nil {
		return fmt.Errorf("failed to republish message '%s': %w", event.MessageID, err)
	}
	return nil
}
