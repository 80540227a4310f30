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
	"context"
	"fmt"

	"github.com/albeebe/pushbridge/internal/pubsub"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
	"google.golang.org/api/option"
)

// GoogleClients returns a ClientFactory connecting to Pub/Sub as the service
// account in the credential, in the credential's project. Extra options are
// appended to the credential's own.
func GoogleClients(extra ...option.ClientOption) ClientFactory {
	return ClientFactoryFunc(func(ctx context.Context, cred *gcpcredentials.Credential) (pubsub.Client, error) {
		opts, err := cred.ClientOptions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build client options: %w", err)
		}
		return pubsub.NewGoogleClient(ctx, cred.ProjectID, append(opts, extra...)...)
	})
}
