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

package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"cloud.google.com/go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevelopmentLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewDevelopmentLogger(Config{Level: slog.LevelInfo, Writer: &buf})

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.With(slog.String("block_id", "orders")).Info("subscription ready", slog.String("subscription", "orders-push"))
	line := buf.String()
	assert.Contains(t, line, "[INFO] subscription ready")
	assert.Contains(t, line, "block_id=orders subscription=orders-push")
	assert.True(t, strings.HasPrefix(line, InfoColor))
}

func TestDevelopmentLogger_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := NewDevelopmentLogger(Config{Writer: &buf})

	log.WithGroup("delivery").Warn("rejected", slog.Any("error", errors.New("bad token")))
	assert.Contains(t, buf.String(), "delivery.error=bad token")
	assert.True(t, strings.HasPrefix(buf.String(), WarnColor))
}

func TestDevelopmentLogger_ErrorStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewDevelopmentLogger(Config{Writer: &buf})

	log.Error("failed")
	assert.Contains(t, buf.String(), "└── (file:")
}

func TestNew(t *testing.T) {
	log, err := New(context.Background(), Config{}, false)
	require.NoError(t, err)
	assert.IsType(t, &DevelopmentHandler{}, log.Handler())
	assert.NoError(t, Flush(log))
	assert.NoError(t, Close(log))

	// Production requires a project and log name
	_, err = New(context.Background(), Config{LogName: "pushbridge"}, true)
	assert.ErrorContains(t, err, "GCPProjectID")

	assert.Error(t, Flush(nil))
	assert.Error(t, Close(nil))
}

func TestMapSeverity(t *testing.T) {
	assert.Equal(t, logging.Debug, mapSeverity(slog.LevelDebug))
	assert.Equal(t, logging.Info, mapSeverity(slog.LevelInfo))
	assert.Equal(t, logging.Warning, mapSeverity(slog.LevelWarn))
	assert.Equal(t, logging.Error, mapSeverity(slog.LevelError))
	assert.Equal(t, logging.Error, mapSeverity(slog.LevelError+4))
	assert.Equal(t, logging.Default, mapSeverity(slog.LevelDebug-4))
}

func TestAttrValue(t *testing.T) {
	assert.Equal(t, "boom", attrValue(slog.AnyValue(errors.New("boom"))))
	assert.Equal(t, int64(3), attrValue(slog.Int64Value(3)))
	assert.Equal(t, map[string]interface{}{"id": "orders"},
		attrValue(slog.GroupValue(slog.String("id", "orders"))))
}
