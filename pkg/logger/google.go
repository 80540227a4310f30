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

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"cloud.google.com/go/logging"
)

func (h *GoogleCloudLoggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *GoogleCloudLoggingHandler) Handle(ctx context.Context, r slog.Record) error {
	// Collect the handler's attributes, then the record's
	attributes := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attributes[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attributes[qualify(h.group, a.Key)] = attrValue(a.Value)
		return true
	})

	// Add stack trace to attributes for errors
	if r.Level >= slog.LevelError {
		attributes["stack_trace"] = string(debug.Stack())
	}

	// Create a Google Cloud Logging entry with the log message and structured data
	entry := logging.Entry{
		Timestamp: r.Time,
		Severity:  mapSeverity(r.Level),
		Payload: map[string]interface{}{
			"message":    r.Message,
			"attributes": attributes,
		},
	}

	// Log the entry to Google Cloud
	h.logger.Log(entry)
	return nil
}

func (h *GoogleCloudLoggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = withAttrs(h.attrs, h.group, attrs)
	return &clone
}

func (h *GoogleCloudLoggingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = qualify(h.group, name)
	return &clone
}

func (h *GoogleCloudLoggingHandler) Flush() error {
	return h.logger.Flush()
}

// Close flushes pending entries and closes the client
func (h *GoogleCloudLoggingHandler) Close() error {
	if h.client == nil {
		return h.Flush()
	}
	return h.client.Close()
}

// attrValue converts a slog value into something the entry payload can encode.
// Errors would otherwise encode as empty objects.
func attrValue(v slog.Value) interface{} {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		group := map[string]interface{}{}
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	}
	if v.Kind() == slog.KindAny {
		switch value := v.Any().(type) {
		case error:
			return value.Error()
		case fmt.Stringer:
			return value.String()
		}
	}
	return v.Any()
}

func mapSeverity(level slog.Level) logging.Severity {
	switch {
	case level >= slog.LevelError:
		return logging.Error
	case level >= slog.LevelWarn:
		return logging.Warning
	case level >= slog.LevelInfo:
		return logging.Info
	case level >= slog.LevelDebug:
		return logging.Debug
	default:
		return logging.Default
	}
}
