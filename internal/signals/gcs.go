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

package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSStore keeps each block's Signals as a JSON object in a Cloud Storage bucket
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStore stores objects named "<prefix>/<blockID>.json" in bucket
func NewGCSStore(client *storage.Client, bucket, prefix string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage client is nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket is empty")
	}
	return &GCSStore{
		bucket: client.Bucket(bucket),
		prefix: prefix,
	}, nil
}

func (g *GCSStore) Load(ctx context.Context, blockID string) (Signals, error) {
	if err := ValidateBlockID(blockID); err != nil {
		return Signals{}, err
	}

	reader, err := g.bucket.Object(g.objectName(blockID)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Unprovisioned(), nil
	}
	if err != nil {
		return Signals{}, fmt.Errorf("failed to open signals for block '%s': %w", blockID, err)
	}
	defer reader.Close()

	return decode(reader)
}

func (g *GCSStore) Save(ctx context.Context, blockID string, s Signals) error {
	if err := ValidateBlockID(blockID); err != nil {
		return err
	}

	writer := g.bucket.Object(g.objectName(blockID)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if err := json.NewEncoder(writer).Encode(s); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write signals for block '%s': %w", blockID, err)
	}

	// The object is only committed on Close
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to save signals for block '%s': %w", blockID, err)
	}
	return nil
}

func (g *GCSStore) Clear(ctx context.Context, blockID string) error {
	if err := ValidateBlockID(blockID); err != nil {
		return err
	}
	err := g.bucket.Object(g.objectName(blockID)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to clear signals for block '%s': %w", blockID, err)
	}
	return nil
}

func (g *GCSStore) objectName(blockID string) string {
	return path.Join(g.prefix, blockID+".json")
}

func decode(r io.Reader) (Signals, error) {
	var s Signals
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Signals{}, fmt.Errorf("failed to decode signals: %w", err)
	}
	return s.normalize(), nil
}
