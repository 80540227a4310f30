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
// Created: October 10, 2024

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

const (
	DebugColor = "\033[36m" // Cyan for Debug
	InfoColor  = "\033[32m" // Green for Info
	WarnColor  = "\033[33m" // Yellow for Warn
	ErrorColor = "\033[31m" // Red for Error
	ResetColor = "\033[0m"  // Reset to default terminal color
)

func (h *DevelopmentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *DevelopmentHandler) Handle(ctx context.Context, r slog.Record) error {
	// Format the time with millisecond precision and include the level in the message
	timeStamp := r.Time
	if timeStamp.IsZero() {
		timeStamp = time.Now()
	}
	var messageBuilder strings.Builder
	messageBuilder.WriteString(fmt.Sprintf("[%s] [%s] %s", timeStamp.Format("15:04:05.000"), r.Level.String(), r.Message))

	// Collect the handler's attributes, then the record's
	var attrsBuilder strings.Builder
	for _, a := range h.attrs {
		attrsBuilder.WriteString(fmt.Sprintf("%s=%v ", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		attrsBuilder.WriteString(fmt.Sprintf("%s=%v ", qualify(h.group, a.Key), a.Value))
		return true
	})
	if attrs := strings.TrimSpace(attrsBuilder.String()); attrs != "" {
		messageBuilder.WriteString(" | " + attrs)
	}

	// Errors include the call stack outside of the logger
	if r.Level >= slog.LevelError {
		for x := 3; x < 10; x++ {
			_, file, line, ok := runtime.Caller(x)
			if ok {
				messageBuilder.WriteString(fmt.Sprintf("\n   └── (file: %s, line: %d)", file, line))
			}
		}
	}

	// Print the message in the level's color
	var color string
	switch {
	case r.Level >= slog.LevelError:
		color = ErrorColor
	case r.Level >= slog.LevelWarn:
		color = WarnColor
	case r.Level >= slog.LevelInfo:
		color = InfoColor
	default:
		color = DebugColor
	}

	h.mux.Lock()
	defer h.mux.Unlock()
	_, err := fmt.Fprintln(h.out, color+messageBuilder.String()+ResetColor)
	return err
}

func (h *DevelopmentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = withAttrs(h.attrs, h.group, attrs)
	return &clone
}

func (h *DevelopmentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = qualify(h.group, name)
	return &clone
}

func (h *DevelopmentHandler) Flush() error {
	return nil
}
