// Copyright (c) 2024 Alan Beebe [www.alanbeebe.com]
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
// Created: October 1, 2024

package pushbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"github.com/albeebe/pushbridge/internal/delivery"
	"github.com/albeebe/pushbridge/internal/router"
	"github.com/albeebe/pushbridge/internal/signals"
	"github.com/albeebe/pushbridge/pkg/auth"
	"github.com/albeebe/pushbridge/pkg/gcpcredentials"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	gax "github.com/googleapis/gax-go/v2"
)

var validate = newValidator()

// newValidator returns a validator that knows the "blockid" tag
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("blockid", func(fl validator.FieldLevel) bool {
		return signals.ValidateBlockID(fl.Field().String()) == nil
	})
	return v
}

// Returns true if we're currently running on GCP
func runningInProduction() bool {
	return metadata.OnGCE()
}

// blockPath returns the path of a block's push endpoint
// resolveProjectID returns the configured project, else the project of the
// configured service account key, else the project lookup reports
func resolveProjectID(ctx context.Context, config *Config, lookup func(context.Context) (string, error)) (string, error) {
	if config.GCPProjectID != "" {
		return config.GCPProjectID, nil
	}
	if config.ServiceAccountKey != "" {
		if cred, err := gcpcredentials.Load(config.ServiceAccountKey); err == nil {
			return cred.ProjectID, nil
		}
	}
	projectID, err := lookup(ctx)
	if err != nil {
		return "", err
	}
	if projectID == "" {
		return "", errors.New("GCPProjectID is empty and no project could be found")
	}
	return projectID, nil
}

func blockPath(blockID string) string {
	return "/blocks/" + blockID + "/push"
}

// validateBlock checks a block's configuration, reporting the first invalid field
func validateBlock(b BlockConfig) error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return fmt.Errorf("block '%s': %s failed the '%s' check", b.ID, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("block '%s': %w", b.ID, err)
}

// ParseBlock parses "id:topic" or "id:topic:subscription" into a BlockConfig
func ParseBlock(s string) (BlockConfig, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return BlockConfig{}, fmt.Errorf("block '%s' must be formatted as id:topic[:subscription]", s)
	}
	b := BlockConfig{ID: parts[0], TopicID: parts[1]}
	if len(parts) == 3 {
		b.SubscriptionID = parts[2]
	}
	if err := validateBlock(b); err != nil {
		return BlockConfig{}, err
	}
	return b, nil
}

// idTokenGenerator is the part of the IAM credentials client used to mint tokens
type idTokenGenerator interface {
	GenerateIdToken(ctx context.Context, req *credentialspb.GenerateIdTokenRequest, opts ...gax.CallOption) (*credentialspb.GenerateIdTokenResponse, error)
}

// iamTokenSource mints identity tokens for the service account in the key,
// the same identity Pub/Sub signs push deliveries as
type iamTokenSource struct {
	client idTokenGenerator
	keys   gcpcredentials.Source
}

// IDToken generates an identity token for audience through the IAM credentials API
func (t *iamTokenSource) IDToken(ctx context.Context, audience string) (string, error) {

	// Validate that an audience is provided
	if audience == "" {
		return "", errors.New("audience is required")
	}

	// Find the service account to impersonate
	raw, err := t.keys.ServiceAccountKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read service account key: %w", err)
	}
	cred, err := gcpcredentials.Load(raw)
	if err != nil {
		return "", err
	}

	// Generate the ID token
	resp, err := t.client.GenerateIdToken(ctx, &credentialspb.GenerateIdTokenRequest{
		Name:         fmt.Sprintf("projects/-/serviceAccounts/%s", cred.ClientEmail),
		Audience:     audience,
		IncludeEmail: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate ID token: %w", err)
	}
	return resp.Token, nil
}

// probeEnvelope builds a push body carrying data as a Pub/Sub message would
func probeEnvelope(data interface{}, subscription string) ([]byte, string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode probe data: %w", err)
	}
	messageID := "probe-" + uuid.NewString()
	body, err := json.Marshal(delivery.Envelope{
		Message: &delivery.Message{
			Data:        base64.StdEncoding.EncodeToString(payload),
			MessageID:   messageID,
			PublishTime: time.Now().UTC().Format(time.RFC3339Nano),
			Attributes:  map[string]string{"probe": "true"},
		},
		Subscription: subscription,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode probe envelope: %w", err)
	}
	return body, messageID, nil
}

// healthHandler reports the signals status of every block
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{Status: "ok", Blocks: map[string]string{}}
	statusCode := http.StatusOK
	for _, id := range s.Blocks() {
		sig, err := s.internal.signals.Load(r.Context(), id)
		if err != nil {
			s.Log.Error("failed to load signals", slog.String("block_id", id), slog.Any("error", err))
			health.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		health.Blocks[id] = string(sig.Status)
	}
	if err := router.SendJSON(w, statusCode, health); err != nil {
		s.Log.Error("failed to send response", slog.Any("error", err))
	}
}

// addAuthenticatedEndpoint registers handler behind a bearer ID token check. The
// token must be minted for the endpoint's public URL by one of allowedEmails.
// Requests without a valid token get a 401, identities that aren't allowed a 403.
func (s *Service) addAuthenticatedEndpoint(method, relativePath string, handler http.Handler, allowedEmails []string) error {
	audience := strings.TrimRight(s.internal.config.PublicURL, "/") + relativePath

	wrappedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.Authenticate(r.Context(), s.internal.verifier, r, audience, allowedEmails)
		if err != nil {
			s.Log.Warn("rejected request", slog.String("path", relativePath), slog.Any("error", err))
			if errors.Is(err, auth.ErrForbidden) {
				sendResponse(w, http.StatusForbidden, "forbidden")
				return
			}
			sendResponse(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.Log.Info("authenticated request", slog.String("path", relativePath), slog.String("email", claims.Email))
		handler.ServeHTTP(w, r)
	})

	return s.internal.router.RegisterHandler(method, relativePath, wrappedHandler)
}

// sendResponse writes a JSON message with the status code
func sendResponse(w http.ResponseWriter, statusCode int, message string) {
	_ = router.SendJSON(w, statusCode, map[string]string{"message": message})
}
