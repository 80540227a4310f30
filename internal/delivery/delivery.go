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

// Package delivery authenticates Pub/Sub push requests and turns their
// payloads into events.
package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/albeebe/pushbridge/internal/events"
	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
	"github.com/google/uuid"
)

// Validate checks the Config struct for required fields
func (c *Config) Validate() error {
	if c.BlockID == "" {
		return fmt.Errorf("BlockID is empty")
	}
	if c.EndpointURL == "" {
		return fmt.Errorf("EndpointURL is empty")
	}
	if c.Keys == nil {
		return fmt.Errorf("Keys is nil")
	}
	if c.Sink == nil {
		return fmt.Errorf("Sink is nil")
	}
	if c.Verifier == nil {
		return fmt.Errorf("Verifier is nil")
	}
	return nil
}

// New returns a Handler for the block described by config
func New(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		blockID:     config.BlockID,
		endpointURL: config.EndpointURL,
		keys:        config.Keys,
		log:         log.With(slog.String("block_id", config.BlockID)),
		sink:        config.Sink,
		verifier:    config.Verifier,
	}, nil
}

// EndpointURL returns the URL Pub/Sub pushes to for this block
func (h *Handler) EndpointURL() string {
	return h.endpointURL
}

// ServeHTTP handles a push delivery and writes its status with no body
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(h.HandleDelivery(r.Context(), r))
}

// HandleDelivery authenticates the request, decodes its message and emits it.
// It returns the HTTP status to respond with:
//
//	401 the request isn't signed by the subscription's service account for this endpoint
//	400 the body or its data can't be decoded, Pub/Sub won't redeliver it
//	500 the event couldn't be emitted, Pub/Sub will redeliver it
//	200 the event was emitted
func (h *Handler) HandleDelivery(ctx context.Context, r *http.Request) int {
	if ctx == nil {
		ctx = context.Background()
	}
	log := h.log.With(slog.String("request_id", uuid.NewString()))

	// Authenticate the request
	if err := h.authenticate(ctx, r); err != nil {
		log.WarnContext(ctx, "rejected push request", slog.Any("error", err))
		return http.StatusUnauthorized
	}

	// Decode the message
	event, err := h.decode(r)
	if err != nil {
		log.WarnContext(ctx, "dropped push request", slog.Any("error", err))
		return http.StatusBadRequest
	}

	// Emit the event
	if err := h.sink.Emit(ctx, event); err != nil {
		log.ErrorContext(ctx, "failed to emit event",
			slog.String("message_id", event.MessageID),
			slog.Any("error", err))
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// authenticate accepts the request only when its bearer token was signed by
// the service account the subscription pushes as, for this endpoint, with a
// verified email
func (h *Handler) authenticate(ctx context.Context, r *http.Request) error {
	token, ok := auth.ExtractBearerToken(r)
	if !ok {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims, err := h.verifier.Verify(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims == nil {
		return fmt.Errorf("%w: token has no claims", ErrUnauthorized)
	}

	// The key is read on every request so rotations apply without a restart
	raw, err := h.keys.ServiceAccountKey(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	cred, err := gcpcredentials.Load(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	if claims.Email != cred.ClientEmail {
		return fmt.Errorf("%w: token email '%s' doesn't match the service account", ErrUnauthorized, claims.Email)
	}
	if claims.Audience != h.endpointURL {
		return fmt.Errorf("%w: token audience '%s' doesn't match the endpoint", ErrUnauthorized, claims.Audience)
	}
	if !claims.EmailVerified {
		return fmt.Errorf("%w: token email isn't verified", ErrUnauthorized)
	}
	return nil
}

// decode parses the envelope and its base64 data. Data that isn't JSON is
// passed through as text.
func (h *Handler) decode(r *http.Request) (events.Event, error) {
	var envelope Envelope
	if r.Body == nil {
		return events.Event{}, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		return events.Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if envelope.Message == nil {
		return events.Event{}, fmt.Errorf("%w: no message", ErrMalformedPayload)
	}
	if envelope.Message.MessageID == "" {
		return events.Event{}, fmt.Errorf("%w: message has no messageId", ErrMalformedPayload)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return events.Event{}, fmt.Errorf("%w: message '%s' data isn't base64: %w",
			ErrMalformedPayload, envelope.Message.MessageID, err)
	}

	return events.Event{
		BlockID:      h.blockID,
		Data:         parseData(raw),
		MessageID:    envelope.Message.MessageID,
		PublishTime:  envelope.Message.PublishTime,
		Attributes:   envelope.Message.Attributes,
		Subscription: envelope.Subscription,
	}, nil
}

func parseData(raw []byte) interface{} {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}
