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

package subscription

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// IDLength is the length of generated subscription ids
	IDLength = 10

	letters  = "abcdefghijklmnopqrstuvwxyz"
	alphabet = letters + "0123456789"
)

// RandomIDs generates lowercase alphanumeric ids from a cryptographic source.
// The first character is always a letter since Pub/Sub ids must start with one.
type RandomIDs struct {
	Length int       // Defaults to IDLength
	Reader io.Reader // Defaults to crypto/rand.Reader
}

// NewID returns a fresh id
func (g RandomIDs) NewID() (string, error) {
	length := g.Length
	if length <= 0 {
		length = IDLength
	}
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}

	id := make([]byte, length)
	for i := range id {
		chars := alphabet
		if i == 0 {
			chars = letters
		}
		n, err := rand.Int(reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate subscription id: %w", err)
		}
		id[i] = chars[n.Int64()]
	}
	return string(id), nil
}

// FixedID always returns the same id
type FixedID string

// NewID returns the id
func (f FixedID) NewID() (string, error) {
	return string(f), nil
}
