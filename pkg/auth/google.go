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

package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// NewGoogleVerifier returns a Verifier for identity tokens signed by Google, such
// as the OIDC tokens attached to Pub/Sub push deliveries.
func NewGoogleVerifier(ctx context.Context, opts ...option.ClientOption) (*GoogleVerifier, error) {

	// Ensure the context is not nil
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}

	validator, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create id token validator: %w", err)
	}

	return &GoogleVerifier{
		validator: validator,
		issuers:   GoogleIssuers,
	}, nil
}

// Verify checks the token's signature and expiry against Google's public certificates
// and confirms it was issued by Google. The audience is deliberately not checked here.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	payload, err := g.validator.Validate(ctx, token, "")
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if payload == nil {
		return nil, ErrClaimsMissing
	}
	if !isAllowedIssuer(payload.Issuer, g.issuers) {
		return nil, describeIssuer(payload.Issuer)
	}

	claims, err := claimsFromMap(payload.Claims)
	if err != nil {
		return nil, err
	}

	// The typed payload fields are authoritative
	claims.Issuer = payload.Issuer
	claims.Audience = payload.Audience
	claims.Subject = payload.Subject
	return claims, nil
}
