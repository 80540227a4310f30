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
	"errors"
	"fmt"
	"net/http"
)

// NewTokenClient creates an HTTP client that attaches an identity token minted for
// audience to each request.
func NewTokenClient(source TokenSource, audience string) (*http.Client, error) {
	if source == nil {
		return nil, errors.New("a TokenSource is required")
	}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	tc := TokenClient{
		audience:     audience,
		roundTripper: http.DefaultTransport,
		source:       source,
	}
	return &http.Client{
		Transport: &tc,
	}, nil
}

// RoundTrip mints an identity token, attaches it as a bearer token, and forwards
// the request using the configured roundTripper.
func (tc *TokenClient) RoundTrip(r *http.Request) (*http.Response, error) {

	// Mint the token
	token, err := tc.source.IDToken(r.Context(), tc.audience)
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, fmt.Errorf("failed to get an identity token: %w", err)
	}
	if token == "" {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, errors.New("an identity token was expected but not received")
	}

	// RoundTrippers must not modify the original request
	clone := r.Clone(r.Context())
	clone.Header.Set("Authorization", "Bearer "+token)

	// Execute the request, ensuring roundTripper is not nil
	if tc.roundTripper == nil {
		return nil, fmt.Errorf("roundTripper is not initialized")
	}
	return tc.roundTripper.RoundTrip(clone)
}
