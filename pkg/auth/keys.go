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
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewKeyVerifier returns a Verifier for RS256 tokens signed by keys from source.
// When issuers is empty any issuer is accepted.
func NewKeyVerifier(source KeySource, issuers ...string) (*KeyVerifier, error) {
	if source == nil {
		return nil, errors.New("a KeySource is required")
	}
	return &KeyVerifier{
		issuers: issuers,
		keys:    map[string]*Key{},
		now:     time.Now,
		source:  source,
	}, nil
}

// Verify parses the token, verifies its signature and expiry, and checks the issuer
func (v *KeyVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {

	// Parse, validate, and verify the tokens signature
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify the token has the required headers
		alg, ok := token.Header["alg"].(string)
		if !ok || alg == "" {
			return nil, errorAlgMissing
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errorKidMissing
		}

		// Get the key the token was signed with
		key, err := v.keyWithID(ctx, kid)
		if err != nil {
			return nil, err
		}

		// Confirm the tokens algorithm matches the keys algorithm
		if !strings.EqualFold(key.Alg, alg) {
			return nil, errorAlgInvalid
		}

		// Parse the key
		publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(key.Pem))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key from key.pem: %w", err)
		}
		return publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", describeJWTError(err), err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	// Extract the claims
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrClaimsMissing
	}
	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return nil, err
	}
	if !isAllowedIssuer(claims.Issuer, v.issuers) {
		return nil, describeIssuer(claims.Issuer)
	}
	return claims, nil
}

// keyWithID returns the key with the given id, refreshing the keys once when the
// id is unknown or the refresh time has passed.
func (v *KeyVerifier) keyWithID(ctx context.Context, kid string) (*Key, error) {
	v.mux.RLock()
	key, ok := v.keys[kid]
	stale := v.now().After(v.nextKeyRefresh)
	v.mux.RUnlock()

	if !ok || stale {
		if err := v.refreshKeys(ctx); err != nil {
			// A stale but known key is still usable
			if !ok {
				return nil, err
			}
		} else {
			v.mux.RLock()
			key, ok = v.keys[kid]
			v.mux.RUnlock()
		}
	}
	if !ok || key == nil {
		return nil, errorKeyNotFound
	}
	if key.Exp != 0 && v.now().Unix() > key.Exp {
		return nil, errorKeyNotFound
	}
	return key, nil
}

// refreshKeys fetches the keys from the source. Concurrent callers share one fetch.
func (v *KeyVerifier) refreshKeys(ctx context.Context) error {
	_, err, _ := v.refresher.Do("keys", func() (interface{}, error) {
		keys, nextRefresh, err := v.source.RefreshKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh keys: %w", err)
		}

		// Validate the keys and place them into a map using key.Kid as the map key
		keyMap := make(map[string]*Key, len(keys))
		for _, key := range keys {
			if err := key.Validate(); err != nil {
				return nil, fmt.Errorf("key is invalid: %w", err)
			}
			keyMap[key.Kid] = key
		}

		v.mux.Lock()
		defer v.mux.Unlock()
		v.keys = keyMap
		v.nextKeyRefresh = nextRefresh
		return nil, nil
	})
	return err
}

// RefreshKeys returns the static keys. They are never refetched.
func (s StaticKeys) RefreshKeys(ctx context.Context) ([]*Key, time.Time, error) {
	return s, time.Now().Add(24 * time.Hour), nil
}

func describeJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "token is missing a required claim"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token is not valid yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "token used before being issued"
	case errors.Is(err, errorAlgInvalid):
		return "value for 'alg' header is invalid"
	case errors.Is(err, errorAlgMissing):
		return "token header is missing an 'alg' value"
	case errors.Is(err, errorKidMissing):
		return "token header is missing a 'kid' value"
	case errors.Is(err, errorKeyNotFound):
		return "key not found"
	default:
		return "token is invalid"
	}
}
