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

// Package pushbridge bridges Google Cloud Pub/Sub push subscriptions into an
// event stream. Each block owns one push subscription: the service creates it
// on sync, authenticates and decodes the deliveries Pub/Sub pushes to the
// block's endpoint, and deletes the subscription on drain.
package pushbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/albeebe/pushbridge/internal/delivery"
	"github.com/albeebe/pushbridge/internal/signals"
	"github.com/albeebe/pushbridge/internal/subscription"
	"github.com/albeebe/pushbridge/pkg/auth"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownBlock is returned for operations on a block the service doesn't host
var ErrUnknownBlock = errors.New("unknown block")

// syncConcurrency bounds how many blocks are provisioned or drained at once
const syncConcurrency = 4

// New initializes a new service named serviceName. It validates the
// configuration, sets up the Google clients the configuration asks for and
// registers the configured blocks.
func New(serviceName string, config Config) (*Service, error) {

	// Validate the configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config is invalid: %w", err)
	}

	// Configure service
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		Context: ctx,
		Name:    serviceName,
		internal: &internal{
			blocks: map[string]*block{},
			cancel: cancel,
			config: &config,
		},
	}

	// Initialize the logger
	if err := s.setupLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Set up the services components
	if err := s.setup(); err != nil {
		cancel()
		_ = s.teardown(5 * time.Second)
		return nil, fmt.Errorf("failed to set up the service: %w", err)
	}

	// Register the configured blocks
	for _, b := range config.Blocks {
		if err := s.AddBlock(b); err != nil {
			cancel()
			_ = s.teardown(5 * time.Second)
			return nil, err
		}
	}

	return s, nil
}

// Run syncs every block, then serves deliveries and blocks until an OS signal,
// context cancellation, or a server error. Lifecycle callbacks from the State
// struct are invoked at each stage. With DrainOnShutdown set, every block is
// drained before the service tears down.
//
// The function returns only after the service has gracefully shut down.
func (s *Service) Run(state State) {

	if state.Starting != nil {
		state.Starting()
	}

	// Provision the subscriptions. Failed blocks are logged and retried on the next run.
	if err := s.SyncAll(s.Context); err != nil {
		s.Log.Warn("not every block is ready", slog.Any("error", err))
	}

	// Set up a channel to listen for the terminate signals from the OS
	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(terminate)

	// Block until we get a terminate signal, or the context is canceled
	serverErr := s.internal.router.ListenAndServe()
	if state.Running != nil {
		state.Running()
	}
	var terminatingErr error
	select {
	case <-terminate:
	case <-s.Context.Done():
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			terminatingErr = err
		}
	}
	if state.Terminating != nil {
		state.Terminating(terminatingErr)
	}

	// Cancel the context to initiate the graceful shutdown
	s.internal.cancel()

	// Remove the subscriptions so Pub/Sub stops pushing to an endpoint that's going away
	if s.internal.config.DrainOnShutdown {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.DrainAll(ctx); err != nil {
			s.Log.Error("failed to drain every block", slog.Any("error", err))
		}
		cancel()
	}

	// Begin teardown in a separate goroutine allowing up to 5 seconds to gracefully teardown
	teardownComplete := make(chan error, 1)
	go func() {
		teardownComplete <- s.teardown(5 * time.Second)
	}()

	// Wait for teardown to complete, or return immediately if a second signal is received
	select {
	case <-terminate:
		return
	case err := <-teardownComplete:
		if err != nil {
			s.Log.Error("teardown completed with an error", slog.Any("error", err))
		}
	}
}

// Shutdown initiates a graceful shutdown by canceling the service's context.
// It does not wait for the service to stop.
func (s *Service) Shutdown() {
	s.internal.cancel()
}

// Close tears the service down without running it. It's used by one-off
// commands such as sync and drain.
func (s *Service) Close() error {
	s.internal.cancel()
	return s.teardown(5 * time.Second)
}

// Config returns the configuration of the service
func (s *Service) Config() *Config {
	return s.internal.config
}

// Handler returns the service's HTTP handler
func (s *Service) Handler() http.Handler {
	return s.internal.router.Handler()
}

// AddBlock validates the block and registers its push endpoint
func (s *Service) AddBlock(b BlockConfig) error {

	// Validate the block
	if err := validateBlock(b); err != nil {
		return err
	}

	s.internal.blocksMux.Lock()
	defer s.internal.blocksMux.Unlock()
	if _, exists := s.internal.blocks[b.ID]; exists {
		return fmt.Errorf("block '%s' is already registered", b.ID)
	}

	// Create the block's delivery handler
	handler, err := delivery.New(delivery.Config{
		BlockID:     b.ID,
		EndpointURL: s.Endpoint(b.ID),
		Keys:        s.internal.keys,
		Logger:      s.Log,
		Sink:        s.internal.sink,
		Verifier:    s.internal.verifier,
	})
	if err != nil {
		return fmt.Errorf("failed to create handler for block '%s': %w", b.ID, err)
	}

	// Register the push endpoint
	if err := s.internal.router.RegisterHandler("POST", blockPath(b.ID), handler); err != nil {
		return fmt.Errorf("failed to register block '%s': %w", b.ID, err)
	}

	s.internal.blocks[b.ID] = &block{config: b, handler: handler}
	return nil
}

// Blocks returns the ids of the hosted blocks, sorted
func (s *Service) Blocks() []string {
	s.internal.blocksMux.RLock()
	defer s.internal.blocksMux.RUnlock()
	ids := make([]string, 0, len(s.internal.blocks))
	for id := range s.internal.blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Endpoint returns the URL Pub/Sub pushes the block's messages to. It is also
// the audience of the tokens attached to the deliveries.
func (s *Service) Endpoint(blockID string) string {
	return strings.TrimRight(s.internal.config.PublicURL, "/") + blockPath(blockID)
}

// Signals returns the persisted state of a block
func (s *Service) Signals(ctx context.Context, blockID string) (signals.Signals, error) {
	if _, err := s.block(blockID); err != nil {
		return signals.Signals{}, err
	}
	return s.internal.signals.Load(ctx, blockID)
}

// Sync provisions the block's push subscription and records the outcome. A
// block whose subscription was already recorded is left alone. The returned
// error is only set when the outcome couldn't be loaded or recorded; a failed
// provisioning is reported in the result.
func (s *Service) Sync(ctx context.Context, blockID string) (subscription.ProvisionResult, error) {

	// Ensure the context is not nil
	if ctx == nil {
		return subscription.ProvisionResult{}, errors.New("context cannot be nil")
	}

	b, err := s.block(blockID)
	if err != nil {
		return subscription.ProvisionResult{}, err
	}
	log := s.Log.With(slog.String("block_id", blockID))

	// Load the state left by earlier lifecycle events
	previous, err := s.internal.signals.Load(ctx, blockID)
	if err != nil {
		return subscription.ProvisionResult{}, fmt.Errorf("failed to load signals: %w", err)
	}

	// Provision the subscription
	var result subscription.ProvisionResult
	key, err := s.internal.keys.ServiceAccountKey(ctx)
	if err != nil && !previous.Provisioned() {
		result = subscription.ProvisionResult{
			Status:      subscription.StatusFailed,
			Description: fmt.Sprintf("Unable to read the service account key: %s", err),
			Err:         err,
		}
	} else {
		result = s.internal.manager.Provision(ctx, subscription.ProvisionInput{
			TopicID:           b.config.TopicID,
			SubscriptionID:    b.config.SubscriptionID,
			PushEndpoint:      s.Endpoint(blockID),
			ServiceAccountKey: key,
			Signals:           previous,
		})
	}

	// Record the outcome, unless nothing changed
	next := result.Signals(previous)
	if next.Status != previous.Status || next.SubscriptionName != previous.SubscriptionName || next.Description != previous.Description {
		next.UpdatedAt = time.Now().UTC()
		if err := s.internal.signals.Save(ctx, blockID, next); err != nil {
			return result, fmt.Errorf("failed to save signals: %w", err)
		}
	}

	if result.Status == subscription.StatusFailed {
		log.Error("failed to provision subscription",
			slog.String("description", result.Description),
			slog.Any("error", result.Err))
	} else {
		log.Info("subscription ready",
			slog.String("topic", next.TopicName),
			slog.String("subscription", next.SubscriptionName))
	}
	return result, nil
}

// SyncAll syncs every block and returns the joined errors of the blocks that
// aren't ready
func (s *Service) SyncAll(ctx context.Context) error {
	return s.forEachBlock(func(id string) error {
		result, err := s.Sync(ctx, id)
		if err != nil {
			return fmt.Errorf("block '%s': %w", id, err)
		}
		if result.Status != subscription.StatusReady {
			return fmt.Errorf("block '%s': %s", id, result.Description)
		}
		return nil
	})
}

// Drain deletes the block's push subscription. Once drained, the block's
// signals are cleared so a later sync provisions a new subscription. A block
// with nothing recorded is drained without contacting Pub/Sub.
func (s *Service) Drain(ctx context.Context, blockID string) (subscription.DrainResult, error) {

	// Ensure the context is not nil
	if ctx == nil {
		return subscription.DrainResult{}, errors.New("context cannot be nil")
	}

	if _, err := s.block(blockID); err != nil {
		return subscription.DrainResult{}, err
	}
	log := s.Log.With(slog.String("block_id", blockID))

	// Load the names recorded when the block was provisioned
	previous, err := s.internal.signals.Load(ctx, blockID)
	if err != nil {
		return subscription.DrainResult{}, fmt.Errorf("failed to load signals: %w", err)
	}

	// Delete the subscription
	var result subscription.DrainResult
	key, err := s.internal.keys.ServiceAccountKey(ctx)
	if err != nil && previous.Provisioned() {
		result = subscription.DrainResult{
			Status:      subscription.StatusDrainingFailed,
			Description: fmt.Sprintf("Unable to read the service account key: %s", err),
			Err:         err,
		}
	} else {
		result = s.internal.manager.Drain(ctx, subscription.DrainInput{
			TopicName:         previous.TopicName,
			SubscriptionName:  previous.SubscriptionName,
			ServiceAccountKey: key,
		})
	}

	// Record the outcome
	if result.Status == subscription.StatusDrained {
		if err := s.internal.signals.Clear(ctx, blockID); err != nil {
			return result, fmt.Errorf("failed to clear signals: %w", err)
		}
		log.Info("subscription drained", slog.String("subscription", previous.SubscriptionName))
		return result, nil
	}
	previous.Description = result.Description
	previous.UpdatedAt = time.Now().UTC()
	if err := s.internal.signals.Save(ctx, blockID, previous); err != nil {
		return result, fmt.Errorf("failed to save signals: %w", err)
	}
	log.Error("failed to drain subscription",
		slog.String("description", result.Description),
		slog.Any("error", result.Err))
	return result, nil
}

// DrainAll drains every block and returns the joined errors of the blocks
// that couldn't be drained
func (s *Service) DrainAll(ctx context.Context) error {
	return s.forEachBlock(func(id string) error {
		result, err := s.Drain(ctx, id)
		if err != nil {
			return fmt.Errorf("block '%s': %w", id, err)
		}
		if result.Status != subscription.StatusDrained {
			return fmt.Errorf("block '%s': %s", id, result.Description)
		}
		return nil
	})
}

// Probe POSTs a synthetic delivery carrying data to the block's endpoint,
// signed the way Pub/Sub signs it, and returns the HTTP status the endpoint
// responded with. It checks the whole path from the public URL to the sinks.
func (s *Service) Probe(ctx context.Context, blockID string, data interface{}) (int, error) {

	// Ensure the context is not nil
	if ctx == nil {
		return 0, errors.New("context cannot be nil")
	}

	if _, err := s.block(blockID); err != nil {
		return 0, err
	}
	previous, err := s.internal.signals.Load(ctx, blockID)
	if err != nil {
		return 0, fmt.Errorf("failed to load signals: %w", err)
	}

	// Build the delivery
	body, messageID, err := probeEnvelope(data, previous.SubscriptionName)
	if err != nil {
		return 0, err
	}
	endpoint := s.Endpoint(blockID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Send it with a token minted for the endpoint
	client, err := auth.NewTokenClient(s.internal.tokenSource, endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to create client: %w", err)
	}
	client.Timeout = 30 * time.Second
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.Log.Info("probe delivered",
		slog.String("block_id", blockID),
		slog.String("message_id", messageID),
		slog.Int("status", resp.StatusCode))
	return resp.StatusCode, nil
}

// block returns the hosted block with id
func (s *Service) block(id string) (*block, error) {
	s.internal.blocksMux.RLock()
	defer s.internal.blocksMux.RUnlock()
	b, ok := s.internal.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownBlock, id)
	}
	return b, nil
}

// forEachBlock calls fn for every block, a few at a time, and joins the errors
func (s *Service) forEachBlock(fn func(id string) error) error {
	ids := s.Blocks()
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(syncConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			errs[i] = fn(id)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
