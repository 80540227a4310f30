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
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// ServiceAccountKey returns the configured key
func (s Static) ServiceAccountKey(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.New("service account key is empty")
	}
	return string(s), nil
}

// NewSecretManager returns a Source reading the given secret. The name may be a
// fully qualified version ("projects/p/secrets/s/versions/3"), a secret
// ("projects/p/secrets/s"), in which case the latest version is used, or a bare
// secret id combined with projectID.
func NewSecretManager(projectID, name string, opts ...option.ClientOption) (*SecretManager, error) {
	if name == "" {
		return nil, errors.New("secret name is empty")
	}

	// Qualify the name
	if !strings.HasPrefix(name, "projects/") {
		if projectID == "" {
			return nil, fmt.Errorf("a project id is required to resolve secret '%s'", name)
		}
		name = fmt.Sprintf("projects/%s/secrets/%s", projectID, name)
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}

	s := &SecretManager{name: name}
	s.connect = func(ctx context.Context) (*secretmanager.Client, error) {
		return secretmanager.NewClient(ctx, opts...)
	}
	return s, nil
}

// ServiceAccountKey reads the secret on every call so rotations are picked up
// without a restart.
func (s *SecretManager) ServiceAccountKey(ctx context.Context) (string, error) {
	client, err := s.secretClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret '%s': %w", s.name, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret '%s' has no payload", s.name)
	}
	return string(resp.GetPayload().GetData()), nil
}

// Name returns the fully qualified secret version being read
func (s *SecretManager) Name() string {
	return s.name
}

// Close releases the Secret Manager client
func (s *SecretManager) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// secretClient returns the client, creating it on first use. A failed attempt
// is retried by the next call. The client outlives the request that created
// it, so it isn't bound to the caller's cancellation.
func (s *SecretManager) secretClient(ctx context.Context) (*secretmanager.Client, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.connect(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}
