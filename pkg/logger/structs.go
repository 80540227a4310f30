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
	"fmt"
	"io"
	"log/slog"
	"sync"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// Config describes the logger to build
type Config struct {
	ClientOptions  []option.ClientOption // Options for the Cloud Logging client
	GCPProjectID   string                // Project the logs are written to
	Level          slog.Level            // Minimum level logged
	LogName        string                // Cloud Logging log name
	ServiceName    string                // Added as a label to every entry
	ServiceVersion string                // Added as a label to every entry
	Writer         io.Writer             // Destination of development logs, stdout when nil
}

// DevelopmentHandler writes colored, human readable lines to a terminal
type DevelopmentHandler struct {
	attrs []slog.Attr // Attributes added with WithAttrs
	group string      // Prefix of attribute keys added with WithGroup
	level slog.Level  // Minimum level logged
	mux   *sync.Mutex // Serializes writes, shared by derived handlers
	out   io.Writer   // Destination
}

// GoogleCloudLoggingHandler writes structured entries to Cloud Logging
type GoogleCloudLoggingHandler struct {
	attrs          []slog.Attr     // Attributes added with WithAttrs
	client         *logging.Client // Owns the logger, closed by Close
	group          string          // Prefix of attribute keys added with WithGroup
	level          slog.Level      // Minimum level logged
	logger         *logging.Logger // Cloud Logging logger
	serviceName    string          // Label on every entry
	serviceVersion string          // Label on every entry
}

// Validate checks the Config struct for the fields Cloud Logging requires
func (c *Config) Validate() error {

	if c.GCPProjectID == "" {
		return fmt.Errorf("GCPProjectID is empty")
	}

	if c.LogName == "" {
		return fmt.Errorf("LogName is empty")
	}

	return nil
}
