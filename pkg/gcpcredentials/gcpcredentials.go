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

package gcpcredentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Scopes requested for every client built from a service account key.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/pubsub",
}

// ErrInvalidCredential is returned when a service account key is not valid JSON,
// or when any of client_email, private_key or project_id is missing or not a string.
var ErrInvalidCredential = errors.New("Invalid Service Credentials Key")

var validate = newValidator()

// newValidator reports field errors using the JSON names found in the key file.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Load parses and validates a service account key. It has no side effects and
// is safe to call repeatedly; callers are expected to call it on every operation
// since the key comes from mutable configuration.
func Load(raw string) (*Credential, error) {

	// Reject anything that isn't a JSON object up front
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrInvalidCredential
	}

	// Non-string values fail here with an UnmarshalTypeError
	var key serviceAccountKey
	if err := json.Unmarshal([]byte(trimmed), &key); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, describeJSONError(err))
	}

	// Every field must be present
	if err := validate.Struct(key); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, describeValidationError(err))
	}

	return &Credential{
		ClientEmail: key.ClientEmail,
		PrivateKey:  key.PrivateKey,
		ProjectID:   key.ProjectID,
		raw:         []byte(trimmed),
	}, nil
}

// ClientOptions returns the options needed to authenticate Google Cloud clients
// as the service account described by the credential.
func (c *Credential) ClientOptions(ctx context.Context) ([]option.ClientOption, error) {
	if c == nil || len(c.raw) == 0 {
		return nil, ErrInvalidCredential
	}

	creds, err := google.CredentialsFromJSON(ctx, c.raw, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to build google credentials: %w", err)
	}

	return []option.ClientOption{
		option.WithCredentials(creds),
	}, nil
}

// String never includes the private key.
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (project %s)", c.ClientEmail, c.ProjectID)
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field '%s' must be a string", typeErr.Field)
	}
	return "key is not valid JSON"
}

func describeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err.Error()
	}
	missing := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		missing = append(missing, fieldErr.Field())
	}
	return fmt.Sprintf("missing %s", strings.Join(missing, ", "))
}
