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

package gcpcredentials

import (
	"context"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
)

// Credential is a validated service account identity
type Credential struct {
	ClientEmail string // Email of the service account, used as the OIDC signer of push deliveries
	PrivateKey  string // PEM encoded private key
	ProjectID   string // Project the service account belongs to
	raw         []byte // Original key, used to build Google credentials
}

// Source supplies the raw service account key. Implementations must return the
// current value on every call, since the key may be rotated while running.
type Source interface {
	ServiceAccountKey(ctx context.Context) (string, error)
}

// Static is a Source holding a key that was supplied through configuration
type Static string

// SecretManager is a Source that reads the key from Google Secret Manager
type SecretManager struct {
	client  *secretmanager.Client                                // Lazily created Secret Manager client
	connect func(context.Context) (*secretmanager.Client, error) // Creates the client, retried until it succeeds
	mux     sync.Mutex                                           // Guards client creation
	name    string                                               // Fully qualified secret version name
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email" validate:"required"`
	PrivateKey  string `json:"private_key" validate:"required"`
	ProjectID   string `json:"project_id" validate:"required"`
}
