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
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/storage"
	"github.com/albeebe/pushbridge/internal/delivery"
	"github.com/albeebe/pushbridge/internal/events"
	"github.com/albeebe/pushbridge/internal/pubsub"
	"github.com/albeebe/pushbridge/internal/router"
	"github.com/albeebe/pushbridge/internal/signals"
	"github.com/albeebe/pushbridge/internal/subscription"
	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
)

// Signals backends
const (
	SignalsMemory   = "memory"
	SignalsGCS      = "gcs"
	SignalsCloudSQL = "cloudsql"
)

// Service hosts push subscription blocks: it provisions their subscriptions,
// serves their push endpoints and drains them when they go away.
type Service struct {
	Context  context.Context
	Log      *slog.Logger
	Name     string
	internal *internal
}

// Config configures a Service. The fields after Blocks replace the Google
// backed defaults, mostly for tests and the Pub/Sub emulator.
type Config struct {
	GCPProjectID         string        // Project of the signals bucket, Cloud SQL instance, queue and republish topic
	Host                 string        // Address the service listens on, e.g. ":8080"
	PublicURL            string        // Externally reachable base URL push endpoints are derived from
	ServiceAccountKey    string        // JSON service account key the subscriptions are created and pushed as
	ServiceAccountSecret string        // Secret Manager secret holding the key, used when ServiceAccountKey is empty
	SignalsBackend       string        // memory, gcs or cloudsql
	SignalsBucket        string        // Bucket for the gcs backend
	SignalsPrefix        string        // Object prefix for the gcs backend
	CloudSQLConnection   string        // Cloud SQL instance connection string "project:region:instance"
	CloudSQLDatabase     string        // Database within the Cloud SQL instance
	CloudSQLUser         string        // IAM database user
	RepublishTopic       string        // Topic every event is republished to, optional
	TaskQueue            string        // Cloud Tasks queue receiving a task per event, optional
	TaskCallbackURL      string        // URL the tasks POST events to
	TaskServiceAccount   string        // Service account signing the tasks' OIDC tokens
	TaskTimeout          time.Duration // Dispatch deadline of each task
	StreamPath           string        // Path of the websocket event stream, empty to disable
	StreamAllowedEmails  []string      // Identities whose ID tokens may read the event stream
	DrainOnShutdown      bool          // Drain every block's subscription when Run returns
	Blocks               []BlockConfig // Blocks hosted by the service

	Logger      *slog.Logger               // Defaults to a development or Cloud Logging logger
	Clients     subscription.ClientFactory // Defaults to Pub/Sub clients authenticated with the key
	IDGenerator subscription.IDGenerator   // Defaults to random ids
	Keys        gcpcredentials.Source      // Defaults to ServiceAccountKey or ServiceAccountSecret
	Signals     signals.Store              // Defaults to the configured backend
	Sinks       []events.Sink              // Additional event sinks
	TokenSource auth.TokenSource           // Mints probe tokens, defaults to the IAM credentials API
	Verifier    auth.Verifier              // Defaults to Google's identity token verifier
}

// BlockConfig describes one block. It can't change once the block is provisioned.
type BlockConfig struct {
	ID             string `json:"id" validate:"required,blockid"`                    // Unique id of the block, part of its push endpoint
	TopicID        string `json:"topicId" validate:"required"`                       // Topic id, or full topic name, to subscribe to
	SubscriptionID string `json:"subscriptionId" validate:"omitempty,min=3,max=255"` // Optional subscription id, generated when empty
}

// State holds callbacks invoked as Run progresses
type State struct {
	Starting    func()          // Called when the service is starting
	Running     func()          // Called when the service is serving deliveries
	Terminating func(err error) // Called when the service is terminating, with an optional error if it was due to a failure
}

// Health is the body of the health endpoint
type Health struct {
	Status string            `json:"status"`
	Blocks map[string]string `json:"blocks"` // Signals status by block id
}

type block struct {
	config  BlockConfig
	handler *delivery.Handler
}

type internal struct {
	blocks      map[string]*block
	blocksMux   sync.RWMutex
	cancel      context.CancelFunc
	config      *Config
	iam         *credentials.IamCredentialsClient
	keys        gcpcredentials.Source
	manager     *subscription.Manager
	publisher   *pubsub.PubSub
	router      *router.Router
	signals     signals.Store
	sink        events.Sink
	sql         *signals.SQLStore
	storage     *storage.Client
	stream      *events.Stream
	tasks       *cloudtasks.Client
	tokenSource auth.TokenSource
	verifier    auth.Verifier
}

// validate checks the Config struct for required fields and
// returns an error if any required fields are missing
func (config *Config) validate() error {

	if config.Host == "" {
		return fmt.Errorf("Host is empty")
	}

	if config.PublicURL == "" {
		return fmt.Errorf("PublicURL is empty")
	}
	u, err := url.Parse(config.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PublicURL '%s' is not an absolute URL", config.PublicURL)
	}

	if config.Keys == nil && config.ServiceAccountKey == "" && config.ServiceAccountSecret == "" {
		return fmt.Errorf("ServiceAccountKey or ServiceAccountSecret must be provided")
	}

	if config.ServiceAccountSecret != "" && config.ServiceAccountKey == "" && config.GCPProjectID == "" && !strings.HasPrefix(config.ServiceAccountSecret, "projects/") {
		return fmt.Errorf("GCPProjectID must be provided to read ServiceAccountSecret")
	}

	if config.Signals == nil {
		switch config.SignalsBackend {
		case "", SignalsMemory:
		case SignalsGCS:
			if config.SignalsBucket == "" {
				return fmt.Errorf("SignalsBucket must be provided for the %s signals backend", SignalsGCS)
			}
		case SignalsCloudSQL:
			sqlConfig := config.cloudSQLConfig()
			if err := sqlConfig.Validate(); err != nil {
				return fmt.Errorf("invalid Cloud SQL config: %w", err)
			}
		default:
			return fmt.Errorf("unknown SignalsBackend '%s'", config.SignalsBackend)
		}
	}

	if config.RepublishTopic != "" && config.GCPProjectID == "" {
		return fmt.Errorf("GCPProjectID must be provided when RepublishTopic is specified")
	}

	if config.TaskQueue != "" {
		taskConfig := config.taskConfig()
		if err := taskConfig.Validate(); err != nil {
			return fmt.Errorf("invalid Cloud Tasks config: %w", err)
		}
	}

	if config.StreamPath != "" {
		if !strings.HasPrefix(config.StreamPath, "/") {
			return fmt.Errorf("StreamPath must start with '/'")
		}
		if len(config.StreamAllowedEmails) == 0 {
			return fmt.Errorf("StreamAllowedEmails must be provided when StreamPath is specified")
		}
	}

	return nil
}

func (config *Config) cloudSQLConfig() signals.CloudSQLConfig {
	return signals.CloudSQLConfig{
		Connection: config.CloudSQLConnection,
		Database:   config.CloudSQLDatabase,
		User:       config.CloudSQLUser,
	}
}

func (config *Config) taskConfig() events.TaskConfig {
	return events.TaskConfig{
		Queue:          config.TaskQueue,
		CallbackURL:    config.TaskCallbackURL,
		ServiceAccount: config.TaskServiceAccount,
		Timeout:        config.TaskTimeout,
	}
}
