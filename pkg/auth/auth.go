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
	"net/http"
	"regexp"
	"strings"
	"time"
)

var errorAlgInvalid = errors.New("alg is invalid")
var errorAlgMissing = errors.New("alg is missing")
var errorKidMissing = errors.New("kid is missing")
var errorKeyNotFound = errors.New("key not found")

// ErrIssuerInvalid is returned when a token was not issued by the expected authority
var ErrIssuerInvalid = errors.New("token issuer is invalid")

// ErrClaimsMissing is returned when a verified token carries no usable claims
var ErrClaimsMissing = errors.New("token claims are missing")

// GoogleIssuers are the issuers Google signs identity tokens with
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// ErrUnauthenticated is returned when a request carries no valid token for the audience
var ErrUnauthenticated = errors.New("request is not authenticated")

// ErrForbidden is returned when a verified identity isn't allowed
var ErrForbidden = errors.New("identity is not allowed")

var bearerPattern = regexp.MustCompile(`^Bearer (.+)$`)

// Authenticate verifies the request's bearer token, minted for audience, and
// checks its verified email is one of allowedEmails. Errors wrap
// ErrUnauthenticated or ErrForbidden.
func Authenticate(ctx context.Context, verifier Verifier, r *http.Request, audience string, allowedEmails []string) (*Claims, error) {
	if verifier == nil {
		return nil, errors.New("a Verifier is required")
	}

	// Verify the token
	token, ok := ExtractBearerToken(r)
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	claims, err := verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrClaimsMissing)
	}
	if claims.Audience != audience {
		return nil, fmt.Errorf("%w: token audience '%s' doesn't match", ErrUnauthenticated, claims.Audience)
	}

	// Check the identity
	if !claims.EmailVerified {
		return nil, fmt.Errorf("%w: email '%s' isn't verified", ErrForbidden, claims.Email)
	}
	for _, email := range allowedEmails {
		if strings.EqualFold(email, claims.Email) {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrForbidden, claims.Email)
}

// ExtractBearerToken returns the token from an "Authorization: Bearer <token>" header.
// The scheme is matched literally.
func ExtractBearerToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	match := bearerPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if match == nil {
		return "", false
	}
	token := strings.TrimSpace(match[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// claimsFromMap pulls the identity claims out of a decoded token payload
func claimsFromMap(m map[string]interface{}) (*Claims, error) {
	if len(m) == 0 {
		return nil, ErrClaimsMissing
	}

	claims := &Claims{
		Issuer:        stringClaim(m, "iss"),
		Subject:       stringClaim(m, "sub"),
		Audience:      audienceClaim(m["aud"]),
		Email:         stringClaim(m, "email"),
		EmailVerified: boolClaim(m, "email_verified"),
	}
	if exp, ok := numericClaim(m, "exp"); ok {
		claims.Expires = time.Unix(exp, 0)
	}
	return claims, nil
}

func stringClaim(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

// boolClaim accepts both JSON booleans and the string form some issuers use
func boolClaim(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func numericClaim(m map[string]interface{}, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// audienceClaim returns the audience when exactly one is present. Tokens naming
// several audiences are treated as having none.
func audienceClaim(v interface{}) string {
	switch aud := v.(type) {
	case string:
		return aud
	case []string:
		if len(aud) == 1 {
			return aud[0]
		}
	case []interface{}:
		if len(aud) == 1 {
			s, _ := aud[0].(string)
			return s
		}
	}
	return ""
}

func isAllowedIssuer(issuer string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if issuer == a {
			return true
		}
	}
	return false
}

func describeIssuer(issuer string) error {
	return fmt.Errorf("%w: '%s'", ErrIssuerInvalid, issuer)
}
