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

package delivery

import (
	"errors"
	"log/slog"

	"github.com/albeebe/pushbridge/internal/events"
	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
)

var (
	ErrUnauthorized     = errors.New("unauthorized push request")
	ErrMalformedPayload = errors.New("malformed push payload")
)

// Envelope is the body Pub/Sub POSTs to a push endpoint
type Envelope struct {
	Message      *Message `json:"message"`
	Subscription string   `json:"subscription"`
}

// Message is the Pub/Sub message inside an Envelope
type Message struct {
	Data        string            `json:"data"` // Base64 encoded payload
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
	Attributes  map[string]string `json:"attributes"`
}

// Handler authenticates and decodes push deliveries for one block
type Handler struct {
	blockID     string                // Block the deliveries belong to
	endpointURL string                // Push endpoint, the audience every token must carry
	keys        gcpcredentials.Source // Service account key the subscription was created with
	log         *slog.Logger          // Logger
	sink        events.Sink           // Receives decoded events
	verifier    auth.Verifier         // Checks token signature, expiry and issuer
}

// Config holds everything a Handler needs
type Config struct {
	BlockID     string
	EndpointURL string
	Keys        gcpcredentials.Source
	Logger      *slog.Logger
	Sink        events.Sink
	Verifier    auth.Verifier
}
