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

package pushbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/compute/metadata"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/storage"
	"github.com/albeebe/pushbridge/internal/events"
	"github.com/albeebe/pushbridge/internal/pubsub"
	"github.com/albeebe/pushbridge/internal/router"
	"github.com/albeebe/pushbridge/internal/signals"
	"github.com/albeebe/pushbridge/internal/subscription"
	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
	"github.com/albeebe/pushbridge/pkg/logger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// setup initializes the components of the service. Components that don't
// depend on each other are set up concurrently.
func (s *Service) setup() error {

	// The key source comes first, the Google clients authenticate with it
	if err := s.setupKeys(); err != nil {
		return fmt.Errorf("failed to set up the service account key: %w", err)
	}
	if s.internal.config.Clients == nil {
		s.internal.config.Clients = subscription.GoogleClients()
	}

	// Define the components we want to set up
	type Component struct {
		Name     string
		Function func() error
	}
	components := []Component{
		{"Cloud Tasks", s.setupCloudTasks},
		{"IAM Client", s.setupIAMClient},
		{"Pub/Sub", s.setupPubSub},
		{"Router", s.setupRouter},
		{"Signals", s.setupSignals},
		{"Verifier", s.setupVerifier},
	}

	// Set up the various components concurrently
	var g errgroup.Group
	for _, c := range components {
		c := c
		g.Go(func() error {
			if err := c.Function(); err != nil {
				return fmt.Errorf("failed to set up %s: %w", c.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The sink and manager need the components above
	s.setupSink()
	manager, err := subscription.New(subscription.Config{
		Clients:     s.internal.config.Clients,
		IDGenerator: s.internal.config.IDGenerator,
		Logger:      s.Log,
	})
	if err != nil {
		return fmt.Errorf("failed to set up the subscription manager: %w", err)
	}
	s.internal.manager = manager

	// Register the service's own endpoints
	if err := s.internal.router.RegisterHandler("GET", "/healthz", http.HandlerFunc(s.healthHandler)); err != nil {
		return fmt.Errorf("failed to register health endpoint: %w", err)
	}
	if s.internal.stream != nil {
		if err := s.addAuthenticatedEndpoint("GET", s.internal.config.StreamPath, s.internal.stream, s.internal.config.StreamAllowedEmails); err != nil {
			return fmt.Errorf("failed to register event stream: %w", err)
		}
	}

	return nil
}

// setupLogger uses the configured logger, or builds one for the environment
func (s *Service) setupLogger() (err error) {
	if s.internal.config.Logger != nil {
		s.Log = s.internal.config.Logger
		return nil
	}
	production := runningInProduction()

	// Cloud Logging needs a project, which is optional in the configuration
	projectID := s.internal.config.GCPProjectID
	if production {
		projectID, err = resolveProjectID(s.Context, s.internal.config, metadata.ProjectIDWithContext)
		if err != nil {
			return fmt.Errorf("failed to determine the project to log to: %w", err)
		}
	}

	s.Log, err = logger.New(s.Context, logger.Config{
		GCPProjectID: projectID,
		LogName:      s.Name,
		ServiceName:  s.Name,
	}, production)
	return err
}

// setupKeys picks where the service account key is read from
func (s *Service) setupKeys() (err error) {
	config := s.internal.config
	switch {
	case config.Keys != nil:
		s.internal.keys = config.Keys
	case config.ServiceAccountKey != "":
		s.internal.keys = gcpcredentials.Static(config.ServiceAccountKey)
	default:
		s.internal.keys, err = gcpcredentials.NewSecretManager(config.GCPProjectID, config.ServiceAccountSecret)
	}
	return err
}

// clientOptions authenticates Google clients as the service account in the key
func (s *Service) clientOptions() ([]option.ClientOption, error) {
	raw, err := s.internal.keys.ServiceAccountKey(s.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	cred, err := gcpcredentials.Load(raw)
	if err != nil {
		return nil, err
	}
	return cred.ClientOptions(s.Context)
}

// setupCloudTasks initializes the Cloud Tasks client when events are forwarded as tasks
func (s *Service) setupCloudTasks() error {
	if s.internal.config.TaskQueue == "" {
		return nil
	}
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}
	s.internal.tasks, err = cloudtasks.NewClient(s.Context, opts...)
	return err
}

// setupIAMClient initializes the IAM credentials client that mints probe tokens
func (s *Service) setupIAMClient() error {
	if s.internal.config.TokenSource != nil {
		s.internal.tokenSource = s.internal.config.TokenSource
		return nil
	}
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}
	s.internal.iam, err = credentials.NewIamCredentialsClient(s.Context, opts...)
	if err != nil {
		return err
	}
	s.internal.tokenSource = &iamTokenSource{client: s.internal.iam, keys: s.internal.keys}
	return nil
}

// setupPubSub creates the publisher used to republish events
func (s *Service) setupPubSub() error {
	if s.internal.config.RepublishTopic == "" {
		return nil
	}
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}
	s.internal.publisher, err = pubsub.New(s.Context, pubsub.Config{
		GCPProjectID: s.internal.config.GCPProjectID,
	}, opts...)
	return err
}

// setupRouter initializes the HTTP router for the service.
func (s *Service) setupRouter() (err error) {
	s.internal.router, err = router.New(s.Context, router.Config{
		Host:   s.internal.config.Host,
		Logger: s.Log,
	})
	return err
}

// setupSignals opens the store block state is persisted in
func (s *Service) setupSignals() error {
	config := s.internal.config
	if config.Signals != nil {
		s.internal.signals = config.Signals
		return nil
	}

	switch config.SignalsBackend {
	case SignalsGCS:
		opts, err := s.clientOptions()
		if err != nil {
			return err
		}
		s.internal.storage, err = storage.NewClient(s.Context, opts...)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		s.internal.signals, err = signals.NewGCSStore(s.internal.storage, config.SignalsBucket, config.SignalsPrefix)
		return err
	case SignalsCloudSQL:
		raw, err := s.internal.keys.ServiceAccountKey(s.Context)
		if err != nil {
			return fmt.Errorf("failed to read service account key: %w", err)
		}
		s.internal.sql, err = signals.OpenCloudSQL(s.Context, config.cloudSQLConfig(),
			cloudsqlconn.WithIAMAuthN(),
			cloudsqlconn.WithCredentialsJSON([]byte(raw)))
		if err != nil {
			return err
		}
		s.internal.signals = s.internal.sql
		return nil
	default:
		s.internal.signals = signals.NewMemory()
		return nil
	}
}

// setupVerifier picks the verifier push tokens are checked with
func (s *Service) setupVerifier() (err error) {
	if s.internal.config.Verifier != nil {
		s.internal.verifier = s.internal.config.Verifier
		return nil
	}
	s.internal.verifier, err = auth.NewGoogleVerifier(s.Context, option.WithoutAuthentication())
	return err
}

// setupSink combines every configured destination of events
func (s *Service) setupSink() {
	config := s.internal.config
	sinks := events.Fanout{events.LogSink{Log: s.Log}}

	if s.internal.publisher != nil {
		sink, err := events.NewPubSubSink(s.internal.publisher, config.RepublishTopic)
		if err != nil {
			s.Log.Error("failed to create Pub/Sub republish sink", slog.Any("error", err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if s.internal.tasks != nil {
		sink, err := events.NewTaskSink(s.internal.tasks, config.taskConfig())
		if err != nil {
			s.Log.Error("failed to create Cloud Tasks sink", slog.Any("error", err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if config.StreamPath != "" {
		s.internal.stream = events.NewStream(s.Log)
		sinks = append(sinks, s.internal.stream)
	}
	sinks = append(sinks, config.Sinks...)

	s.internal.sink = sinks
}

// teardown gracefully shuts down the service's components concurrently within
// timeout. The first error encountered is returned.
func (s *Service) teardown(timeout time.Duration) error {

	// Define the components we want to tear down
	type Component struct {
		Name     string
		Function func() error
	}
	components := []Component{
		{"Cloud SQL", s.teardownCloudSQL},
		{"Cloud Storage", s.teardownCloudStorage},
		{"Cloud Tasks", s.teardownCloudTasks},
		{"Event Stream", s.teardownStream},
		{"IAM Client", s.teardownIAMClient},
		{"Pub/Sub", s.teardownPubSub},
		{"Router", s.teardownRouter},
		{"Secret Manager", s.teardownKeys},
	}

	// Create a context with a timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Launch the teardown of each component in a separate goroutine
	var g errgroup.Group
	for _, c := range components {
		c := c
		g.Go(func() error {
			if err := c.Function(); err != nil {
				return fmt.Errorf("failed to tear down %s: %w", c.Name, err)
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	// Wait until either the timeout occurs or all components have finished tearing down
	var err error
	select {
	case <-ctx.Done():
		err = errors.New("teardown timed out")
	case err = <-done:
	}

	// Flush the logs last
	if flushErr := logger.Flush(s.Log); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

// teardownCloudSQL closes the Cloud SQL database connection if it is open
func (s *Service) teardownCloudSQL() error {
	if s.internal.sql != nil {
		return s.internal.sql.Close()
	}
	return nil
}

func (s *Service) teardownCloudStorage() error {
	if s.internal.storage != nil {
		return s.internal.storage.Close()
	}
	return nil
}

func (s *Service) teardownCloudTasks() error {
	if s.internal.tasks != nil {
		return s.internal.tasks.Close()
	}
	return nil
}

func (s *Service) teardownStream() error {
	if s.internal.stream != nil {
		return s.internal.stream.Close()
	}
	return nil
}

func (s *Service) teardownIAMClient() error {
	if s.internal.iam != nil {
		return s.internal.iam.Close()
	}
	return nil
}

func (s *Service) teardownPubSub() error {
	if s.internal.publisher != nil {
		return s.internal.publisher.Close()
	}
	return nil
}

// teardownRouter stops accepting new connections while allowing deliveries in
// flight to complete
func (s *Service) teardownRouter() error {
	if s.internal.router != nil {
		return s.internal.router.Shutdown(context.Background())
	}
	return nil
}

func (s *Service) teardownKeys() error {
	if closer, ok := s.internal.keys.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
