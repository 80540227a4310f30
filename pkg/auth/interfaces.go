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
	"time"
)

// Verifier checks an identity token's signature, expiry and issuer and returns
// its claims. Audience and identity matching is left to the caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// KeySource supplies the public keys a KeyVerifier trusts.
type KeySource interface {
	// RefreshKeys retrieves the current keys and the time after which they should be fetched again.
	RefreshKeys(ctx context.Context) (keys []*Key, nextRefresh time.Time, err error)
}

// TokenSource mints identity tokens for outgoing requests.
type TokenSource interface {
	IDToken(ctx context.Context, audience string) (string, error)
}
