// Copyright (c) 2024 Alan Beebe [www.alanbeebe.com]
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
// Created: September 30, 2024

// Package logger builds the slog loggers used locally and on Google Cloud.
package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"cloud.google.com/go/logging"
)

// New returns a Cloud Logging logger in production and a development logger otherwise
func New(ctx context.Context, config Config, production bool) (*slog.Logger, error) {
	if production {
		return NewGoogleCloudLogger(ctx, config)
	}
	return NewDevelopmentLogger(config), nil
}

// NewDevelopmentLogger returns a logger printing colored lines
func NewDevelopmentLogger(config Config) *slog.Logger {
	out := config.Writer
	if out == nil {
		out = os.Stdout
	}
	return slog.New(&DevelopmentHandler{
		level: config.Level,
		mux:   &sync.Mutex{},
		out:   out,
	})
}

// NewGoogleCloudLogger returns a logger writing to Cloud Logging
func NewGoogleCloudLogger(ctx context.Context, config Config) (*slog.Logger, error) {

	// Validate the provided configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize Google Cloud Logging client with the provided context
	client, err := logging.NewClient(ctx, config.GCPProjectID, config.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Cloud Logging client: %w", err)
	}

	// Label entries with the service so they can be filtered
	labels := map[string]string{}
	if config.ServiceName != "" {
		labels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		labels["version"] = config.ServiceVersion
	}

	// Create a custom slog handler for Google Cloud Logging
	handler := &GoogleCloudLoggingHandler{
		client:         client,
		level:          config.Level,
		logger:         client.Logger(config.LogName, logging.CommonLabels(labels)),
		serviceName:    config.ServiceName,
		serviceVersion: config.ServiceVersion,
	}

	return slog.New(handler), nil
}

// Flush writes any buffered entries
func Flush(l *slog.Logger) error {
	if l == nil {
		return errors.New("logger is nil")
	}

	switch handler := l.Handler().(type) {
	case *GoogleCloudLoggingHandler:
		return handler.Flush()
	case *DevelopmentHandler:
		return handler.Flush()
	}
	return nil
}

// Close flushes the logger and releases its client, if it has one
func Close(l *slog.Logger) error {
	if l == nil {
		return errors.New("logger is nil")
	}
	if handler, ok := l.Handler().(*GoogleCloudLoggingHandler); ok {
		return handler.Close()
	}
	return nil
}

// qualify prefixes key with group
func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

// withAttrs returns a copy of existing with attrs appended, keys qualified by group
func withAttrs(existing []slog.Attr, group string, attrs []slog.Attr) []slog.Attr {
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: qualify(group, a.Key), Value: a.Value})
	}
	return merged
}
