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

// Package signals persists the per-block state that survives between lifecycle
// events: the provisioning status and the remote topic and subscription names.
package signals

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the provisioning state of a block's subscription
type Status string

const (
	StatusUnprovisioned Status = "unprovisioned"
	StatusProvisioned   Status = "provisioned"
	StatusFailed        Status = "failed"
)

// ErrInvalidBlockID is returned for block ids that can't be used as storage keys
var ErrInvalidBlockID = errors.New("invalid block id")

// Signals is the persisted state of one block
type Signals struct {
	Status           Status    `json:"status"`                     // Provisioning status
	TopicName        string    `json:"topicName,omitempty"`        // Canonical name of the topic
	SubscriptionName string    `json:"subscriptionName,omitempty"` // Canonical name of the subscription, set once provisioned
	Description      string    `json:"description,omitempty"`      // Reason for the last failure
	UpdatedAt        time.Time `json:"updatedAt"`                  // Time of the last update
}

// Store persists Signals by block id. Load returns unprovisioned Signals when
// nothing was stored for the block.
type Store interface {
	Load(ctx context.Context, blockID string) (Signals, error)
	Save(ctx context.Context, blockID string, s Signals) error
	Clear(ctx context.Context, blockID string) error
}

// Provisioned reports whether a subscription was recorded. A recorded
// subscription name is never provisioned again.
func (s Signals) Provisioned() bool {
	return s.SubscriptionName != ""
}

// Unprovisioned returns the zero state of a block
func Unprovisioned() Signals {
	return Signals{Status: StatusUnprovisioned}
}

// normalize fills in the status for records written without one
func (s Signals) normalize() Signals {
	if s.Status == "" {
		if s.Provisioned() {
			s.Status = StatusProvisioned
		} else {
			s.Status = StatusUnprovisioned
		}
	}
	return s
}

// ValidateBlockID restricts ids to characters safe in object names and SQL keys
func ValidateBlockID(blockID string) error {
	if blockID == "" || len(blockID) > 128 {
		return fmt.Errorf("%w: '%s'", ErrInvalidBlockID, blockID)
	}
	for _, r := range blockID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: '%s'", ErrInvalidBlockID, blockID)
		}
	}
	return nil
}
