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

package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/albeebe/pushbridge/pkg/auth/authtest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	email    = "bridge@acme-prod.iam.gserviceaccount.com"
	audience = "https://flows.example.com/blocks/orders/push"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer  spaced ", "spaced", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Token Bearer abc", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := auth.ExtractBearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}

	_, ok := auth.ExtractBearerToken(nil)
	assert.False(t, ok)
}

func TestAuthenticate(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)
	verifier := signer.Verifier()
	const audience = "https://bridge.example.com/events"
	allowed := []string{"Reader@acme.iam.gserviceaccount.com"}

	request := func(token string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, audience, nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		return r
	}

	claims, err := auth.Authenticate(context.Background(), verifier,
		request(signer.Token("reader@acme.iam.gserviceaccount.com", audience, true)), audience, allowed)
	require.NoError(t, err)
	assert.Equal(t, "reader@acme.iam.gserviceaccount.com", claims.Email)

	tests := []struct {
		name    string
		token   string
		allowed []string
		want    error
	}{
		{"no token", "", allowed, auth.ErrUnauthenticated},
		{"garbage token", "not-a-jwt", allowed, auth.ErrUnauthenticated},
		{"other audience", signer.Token("reader@acme.iam.gserviceaccount.com", "https://elsewhere.example.com", true), allowed, auth.ErrUnauthenticated},
		{"email not allowed", signer.Token("intruder@evil.iam.gserviceaccount.com", audience, true), allowed, auth.ErrForbidden},
		{"email not verified", signer.Token("reader@acme.iam.gserviceaccount.com", audience, false), allowed, auth.ErrForbidden},
		{"nobody allowed", signer.Token("reader@acme.iam.gserviceaccount.com", audience, true), nil, auth.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), verifier, request(tt.token), audience, tt.allowed)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = auth.Authenticate(context.Background(), nil, request(""), audience, allowed)
	assert.Error(t, err)
}

func TestKeyVerifier_Verify(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)

	claims, err := signer.Verifier().Verify(context.Background(), signer.Token(email, audience, true))
	require.NoError(t, err)

	assert.Equal(t, email, claims.Email)
	assert.Equal(t, audience, claims.Audience)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, authtest.Issuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expires, time.Minute)
}

func TestKeyVerifier_Rejects(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)
	other, err := authtest.NewSigner("key-1")
	require.NoError(t, err)

	now := time.Now()
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", signer.Sign(jwt.MapClaims{
			"iss": authtest.Issuer, "aud": audience, "email": email,
			"exp": now.Add(-time.Minute).Unix(),
		})},
		{"no expiry", signer.Sign(jwt.MapClaims{
			"iss": authtest.Issuer, "aud": audience, "email": email,
		})},
		{"wrong issuer", signer.Sign(jwt.MapClaims{
			"iss": "https://evil.example.com", "aud": audience, "email": email,
			"exp": now.Add(time.Hour).Unix(),
		})},
		{"foreign key with same kid", other.Token(email, audience, true)},
	}

	verifier := signer.Verifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.Verify(context.Background(), tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestKeyVerifier_UnknownKid(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)
	stranger, err := authtest.NewSigner("key-2")
	require.NoError(t, err)

	_, err = signer.Verifier().Verify(context.Background(), stranger.Token(email, audience, true))
	assert.ErrorContains(t, err, "key not found")
}

type countingSource struct {
	calls atomic.Int32
	keys  []*auth.Key
	err   error
}

func (c *countingSource) RefreshKeys(ctx context.Context) ([]*auth.Key, time.Time, error) {
	c.calls.Add(1)
	return c.keys, time.Now().Add(time.Hour), c.err
}

func TestKeyVerifier_CachesKeys(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)
	source := &countingSource{keys: []*auth.Key{signer.Key}}

	verifier, err := auth.NewKeyVerifier(source)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := verifier.Verify(context.Background(), signer.Token(email, audience, true))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestKeyVerifier_SourceError(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)
	source := &countingSource{err: errors.New("jwks unavailable")}

	verifier, err := auth.NewKeyVerifier(source)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signer.Token(email, audience, true))
	assert.ErrorContains(t, err, "jwks unavailable")
}

func TestKeyVerifier_StringEmailVerified(t *testing.T) {
	signer, err := authtest.NewSigner("key-1")
	require.NoError(t, err)

	token := signer.Sign(jwt.MapClaims{
		"iss": authtest.Issuer, "aud": []string{audience}, "email": email,
		"email_verified": "true", "exp": time.Now().Add(time.Hour).Unix(),
	})
	claims, err := signer.Verifier().Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, audience, claims.Audience)
}

func TestNewKeyVerifier_RequiresSource(t *testing.T) {
	_, err := auth.NewKeyVerifier(nil)
	assert.Error(t, err)
}

type fixedTokens string

func (f fixedTokens) IDToken(ctx context.Context, audience string) (string, error) {
	if f == "" {
		return "", errors.New("no token")
	}
	return string(f) + "|" + audience, nil
}

func TestTokenClient(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := auth.NewTokenClient(fixedTokens("tok"), "aud")
	require.NoError(t, err)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "Bearer tok|aud", got)

	failing, err := auth.NewTokenClient(fixedTokens(""), "aud")
	require.NoError(t, err)
	_, err = failing.Get(server.URL)
	assert.ErrorContains(t, err, "no token")

	_, err = auth.NewTokenClient(nil, "aud")
	assert.Error(t, err)
	_, err = auth.NewTokenClient(fixedTokens("tok"), "")
	assert.Error(t, err)
}
