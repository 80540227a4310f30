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

// Package authtest mints RS256 identity tokens for tests, trusted by an
// auth.KeyVerifier built from the same Signer.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the default issuer of minted tokens
const Issuer = "https://accounts.google.com"

// Signer holds a private key and the matching auth.Key
type Signer struct {
	Key        *auth.Key
	privateKey *rsa.PrivateKey
}

// NewSigner generates a fresh 2048 bit RSA key identified by kid
func NewSigner(kid string) (*Signer, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return &Signer{
		Key: &auth.Key{
			Kid: kid,
			Iat: time.Now().Unix(),
			Alg: "RS256",
			Pem: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
		},
		privateKey: privateKey,
	}, nil
}

// Verifier returns a KeyVerifier trusting only this signer's key
func (s *Signer) Verifier() *auth.KeyVerifier {
	v, _ := auth.NewKeyVerifier(auth.StaticKeys{s.Key}, Issuer)
	return v
}

// Token mints a token for email and audience, valid for an hour
func (s *Signer) Token(email, audience string, emailVerified bool) string {
	return s.Sign(jwt.MapClaims{
		"iss":            Issuer,
		"sub":            "1234567890",
		"aud":            audience,
		"email":          email,
		"email_verified": emailVerified,
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	})
}

// Sign mints a token with arbitrary claims
func (s *Signer) Sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.Key.Kid
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		panic(fmt.Sprintf("authtest: failed to sign token: %v", err))
	}
	return signed
}
