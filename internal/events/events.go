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

// Package events forwards decoded deliveries into the host's event stream.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Event is a decoded Pub/Sub message as emitted to the host
type Event struct {
	BlockID      string            `json:"blockId"`                // Block that received the delivery
	Data         interface{}       `json:"data"`                   // Decoded JSON value, or the raw text when it isn't JSON
	MessageID    string            `json:"messageId"`              // Pub/Sub message id
	PublishTime  string            `json:"publishTime"`            // Publish time as sent by Pub/Sub
	Attributes   map[string]string `json:"attributes,omitempty"`   // Message attributes
	Subscription string            `json:"subscription,omitempty"` // Subscription that pushed the message
}

// Sink receives events
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, event Event) error

// Emit calls f
func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Fanout emits every event to all of its sinks concurrently
type Fanout []Sink

// Emit sends the event to each sink and returns the joined errors of the sinks that failed
func (f Fanout) Emit(ctx context.Context, event Event) error {
	errs := make([]error, len(f))
	var g errgroup.Group
	for i, sink := range f {
		i, sink := i, sink
		g.Go(func() error {
			if err := sink.Emit(ctx, event); err != nil {
				errs[i] = fmt.Errorf("sink %d: %w", i, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// LogSink writes each event to a logger
type LogSink struct {
	Log *slog.Logger
}

// Emit logs the event at info level
func (l LogSink) Emit(ctx context.Context, event Event) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "pubsub message received",
		slog.String("block_id", event.BlockID),
		slog.String("message_id", event.MessageID),
		slog.String("publish_time", event.PublishTime),
		slog.Any("data", event.Data))
	return nil
}
