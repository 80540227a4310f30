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

package signals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"cloud.google.com/go/cloudsqlconn/mysql/mysql"
)

const mysqlDriver = "pushbridge-cloudsql-mysql"

var registerDriver sync.Once
var registerDriverErr error

const createTable = `CREATE TABLE IF NOT EXISTS block_signals (
	block_id          VARCHAR(128) NOT NULL PRIMARY KEY,
	status            VARCHAR(32)  NOT NULL,
	topic_name        VARCHAR(255) NOT NULL,
	subscription_name VARCHAR(255) NOT NULL,
	description       TEXT         NOT NULL,
	updated_at        DATETIME(6)  NOT NULL
)`

// CloudSQLConfig identifies a Cloud SQL for MySQL database
type CloudSQLConfig struct {
	Connection string // Instance connection name in the format "project:region:instance"
	Database   string // Name of the database within the instance
	User       string // Database user, an IAM principal when IAM authentication is used
}

// SQLStore keeps Signals in the block_signals table of a MySQL database
type SQLStore struct {
	db *sql.DB
}

// Validate checks the CloudSQLConfig struct for required fields
func (c *CloudSQLConfig) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("Connection is empty")
	}
	if c.Database == "" {
		return fmt.Errorf("Database is empty")
	}
	if c.User == "" {
		return fmt.Errorf("User is empty")
	}
	return nil
}

// OpenCloudSQL connects to Cloud SQL through the Cloud SQL Go connector and
// returns a store backed by it.
func OpenCloudSQL(ctx context.Context, config CloudSQLConfig, opts ...cloudsqlconn.Option) (*SQLStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Set up the driver, once per process
	registerDriver.Do(func() {
		_, registerDriverErr = mysql.RegisterDriver(mysqlDriver, opts...)
	})
	if registerDriverErr != nil {
		return nil, fmt.Errorf("failed to register driver: %w", registerDriverErr)
	}

	// Open the connection to the database
	dsn := fmt.Sprintf("%s:@%s(%s)/%s?parseTime=true", config.User, mysqlDriver, config.Connection, config.Database)
	db, err := sql.Open(mysqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	// Verify the connection to the database
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLStore(ctx, db)
}

// NewSQLStore creates the block_signals table if needed and returns a store using db
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create block_signals table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, blockID string) (Signals, error) {
	if err := ValidateBlockID(blockID); err != nil {
		return Signals{}, err
	}

	var sig Signals
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status, topic_name, subscription_name, description, updated_at FROM block_signals WHERE block_id = ?`,
		blockID,
	).Scan(&status, &sig.TopicName, &sig.SubscriptionName, &sig.Description, &sig.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Unprovisioned(), nil
	}
	if err != nil {
		return Signals{}, fmt.Errorf("failed to load signals for block '%s': %w", blockID, err)
	}
	sig.Status = Status(status)
	return sig.normalize(), nil
}

func (s *SQLStore) Save(ctx context.Context, blockID string, sig Signals) error {
	if err := ValidateBlockID(blockID); err != nil {
		return err
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO block_signals (block_id, status, topic_name, subscription_name, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), topic_name = VALUES(topic_name),
			subscription_name = VALUES(subscription_name), description = VALUES(description), updated_at = VALUES(updated_at)`,
		blockID, string(sig.normalize().Status), sig.TopicName, sig.SubscriptionName, sig.Description, sig.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save signals for block '%s': %w", blockID, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context, blockID string) error {
	if err := ValidateBlockID(blockID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM block_signals WHERE block_id = ?`, blockID); err != nil {
		return fmt.Errorf("failed to clear signals for block '%s': %w", blockID, err)
	}
	return nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
