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

// Command pushbridge hosts Pub/Sub push subscription blocks. Configuration is
// read from PUSHBRIDGE_ prefixed environment variables, optionally loaded from
// a .env file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/albeebe/pushbridge"
	"github.com/albeebe/pushbridge/internal/environment"
	"github.com/urfave/cli/v2"
)

const (
	serviceName = "pushbridge"
	envPrefix   = "PUSHBRIDGE_"
)

// env is the environment the service is configured from
type env struct {
	GCPProjectID         string
	Host                 string `default:":8080"`
	PublicURL            string `required:"true"`
	ServiceAccountKey    string
	ServiceAccountSecret string
	SignalsBackend       string `default:"memory"`
	SignalsBucket        string
	SignalsPrefix        string `default:"pushbridge/"`
	CloudSQLConnection   string
	CloudSQLDatabase     string
	CloudSQLUser         string
	RepublishTopic       string
	TaskQueue            string
	TaskCallbackURL      string
	TaskServiceAccount   string
	TaskTimeout          time.Duration `default:"30s"`
	StreamPath           string
	StreamAllowedEmails  []string
	DrainOnShutdown      bool     `default:"false"`
	Blocks               []string // id:topic[:subscription], comma separated
}

var opts struct {
	EnvFile string
	Block   string
	Data    string
	Output  string
}

func main() {
	app := &cli.App{
		Name:                 serviceName,
		Usage:                "Bridge Pub/Sub push subscriptions into an event stream",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "dotenv file loaded before reading the environment",
				Value:       ".env",
				EnvVars:     []string{envPrefix + "ENV_FILE"},
				Destination: &opts.EnvFile,
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "sync every block and serve push deliveries",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "create the push subscription of every block",
				Action: syncBlocks,
			},
			{
				Name:   "drain",
				Usage:  "delete the push subscription of every block",
				Action: drainBlocks,
			},
			{
				Name:   "probe",
				Usage:  "send a signed test delivery to a block's public endpoint",
				Action: probe,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "block",
						Usage:       "id of the block to probe",
						Required:    true,
						Destination: &opts.Block,
					},
					&cli.StringFlag{
						Name:        "data",
						Usage:       "message data, JSON or text",
						Value:       `{"probe":true}`,
						Destination: &opts.Data,
					},
				},
			},
			{
				Name:   "env",
				Usage:  "write a .env template holding every variable and its default",
				Action: writeEnv,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "output",
						Usage:       "file to write",
						Value:       ".env",
						Destination: &opts.Output,
					},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func serve(c *cli.Context) error {
	s, err := newService()
	if err != nil {
		return err
	}
	s.Run(pushbridge.State{
		Starting: func() {
			s.Log.Info("starting", slog.Any("blocks", s.Blocks()))
		},
		Running: func() {
			s.Log.Info("serving push deliveries", slog.String("host", s.Config().Host))
		},
		Terminating: func(err error) {
			if err != nil {
				s.Log.Error("terminating", slog.Any("error", err))
				return
			}
			s.Log.Info("terminating")
		},
	})
	return nil
}

func syncBlocks(c *cli.Context) error {
	s, err := newService()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SyncAll(c.Context)
}

func drainBlocks(c *cli.Context) error {
	s, err := newService()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.DrainAll(c.Context)
}

func probe(c *cli.Context) error {
	s, err := newService()
	if err != nil {
		return err
	}
	defer s.Close()

	// Data that isn't JSON is sent as text
	var data interface{}
	if err := json.Unmarshal([]byte(opts.Data), &data); err != nil {
		data = opts.Data
	}

	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()
	status, err := s.Probe(ctx, opts.Block, data)
	if err != nil {
		return err
	}
	fmt.Printf("%s responded %d %s\n", s.Endpoint(opts.Block), status, http.StatusText(status))
	if status != http.StatusOK {
		return cli.Exit("probe was not accepted", 1)
	}
	return nil
}

func writeEnv(c *cli.Context) error {
	if err := environment.WriteDefaults(&env{}, envPrefix, opts.Output); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", opts.Output)
	return nil
}

// newService builds the service from the environment
func newService() (*pushbridge.Service, error) {

	// Load the environment variables
	var e env
	if err := environment.Load(&e, envPrefix, opts.EnvFile); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Parse the blocks
	blocks := make([]pushbridge.BlockConfig, 0, len(e.Blocks))
	for _, b := range e.Blocks {
		block, err := pushbridge.ParseBlock(b)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return pushbridge.New(serviceName, pushbridge.Config{
		GCPProjectID:         e.GCPProjectID,
		Host:                 e.Host,
		PublicURL:            e.PublicURL,
		ServiceAccountKey:    e.ServiceAccountKey,
		ServiceAccountSecret: e.ServiceAccountSecret,
		SignalsBackend:       e.SignalsBackend,
		SignalsBucket:        e.SignalsBucket,
		SignalsPrefix:        e.SignalsPrefix,
		CloudSQLConnection:   e.CloudSQLConnection,
		CloudSQLDatabase:     e.CloudSQLDatabase,
		CloudSQLUser:         e.CloudSQLUser,
		RepublishTopic:       e.RepublishTopic,
		TaskQueue:            e.TaskQueue,
		TaskCallbackURL:      e.TaskCallbackURL,
		TaskServiceAccount:   e.TaskServiceAccount,
		TaskTimeout:          e.TaskTimeout,
		StreamPath:           e.StreamPath,
		StreamAllowedEmails:  e.StreamAllowedEmails,
		DrainOnShutdown:      e.DrainOnShutdown,
		Blocks:               blocks,
	})
}
