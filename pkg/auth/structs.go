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
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/api/idtoken"
)

// Claims are the identity claims of a verified token
type Claims struct {
	Issuer        string    // Authority that signed the token
	Subject       string    // Unique id of the signer
	Audience      string    // Recipient the token was minted for
	Email         string    // Email of the signer
	EmailVerified bool      // Whether the issuer verified the email
	Expires       time.Time // Expiry of the token
}

// GoogleVerifier verifies Google-signed identity tokens
type GoogleVerifier struct {
	validator *idtoken.Validator // Fetches and caches Google's signing certificates
	issuers   []string           // Accepted issuers
}

// KeyVerifier verifies RS256 tokens against keys from a KeySource
type KeyVerifier struct {
	issuers        []string           // Accepted issuers, empty to accept any
	keys           map[string]*Key    // Cached keys by kid
	mux            sync.RWMutex       // Guards keys and nextKeyRefresh
	nextKeyRefresh time.Time          // Time after which keys are refetched
	now            func() time.Time   // Clock, replaced in tests
	refresher      singleflight.Group // Collapses concurrent refreshes into one
	source         KeySource          // Provider of trusted keys
}

// TokenClient is an http.RoundTripper attaching an identity token to each request
type TokenClient struct {
	audience     string            // Audience the token is minted for
	roundTripper http.RoundTripper // Transport performing the request
	source       TokenSource       // Mints the token
}

// Key is a public key trusted by a KeyVerifier
type Key struct {
	Kid string `json:"kid"` // Kid is the unique identifier for the key.
	Iat int64  `json:"iat"` // Iat is the issued-at time in Unix time (seconds since the epoch).
	Exp int64  `json:"exp"` // Exp is the expiration time in Unix time, zero for keys that never expire.
	Alg string `json:"alg"` // Alg specifies the algorithm used with the key (e.g., "RS256").
	Pem string `json:"pem"` // Pem contains the RSA public key in PEM format.
}

// StaticKeys is a KeySource with a fixed set of keys
type StaticKeys []*Key

// Validate checks the key has everything needed to verify a token
func (k *Key) Validate() error {
	if k.Kid == "" {
		return fmt.Errorf("kid is empty")
	}
	if k.Alg == "" {
		return fmt.Errorf("alg is empty")
	}
	if k.Pem == "" {
		return fmt.Errorf("pem is empty")
	}
	return nil
}
