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

package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, config Config) *Router {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if config.Host == "" {
		config.Host = "127.0.0.1:0"
	}
	r, err := New(ctx, config)
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Host: ":8080"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{})
	assert.ErrorContains(t, err, "host is empty")

	_, err = New(context.Background(), Config{Host: ":8080", Cors: &Cors{AllowOrigins: []string{"*"}, AllowCredentials: true}})
	assert.ErrorContains(t, err, "credentials")
}

func TestRegisterHandler(t *testing.T) {
	r := newTestRouter(t, Config{})
	require.NoError(t, r.RegisterHandler("post", "/blocks/orders/push", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/blocks/orders/push", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	// Unknown routes fall through to the 404 handler
	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/blocks/unknown/push", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Error(t, r.RegisterHandler("TRACE", "/x", http.NotFoundHandler()))
	assert.Error(t, r.RegisterHandler("GET", "/x", nil))
}

func TestNoRouteHandler(t *testing.T) {
	r := newTestRouter(t, Config{NoRouteHandler: func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}})
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestCors(t *testing.T) {
	r := newTestRouter(t, Config{Cors: &Cors{
		AllowOrigins: []string{"https://console.example.com"},
		AllowMethods: []string{"GET"},
		MaxAge:       time.Hour,
	}})
	require.NoError(t, r.RegisterHandler("GET", "/healthz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSendJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, SendJSON(w, http.StatusCreated, nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestIsClientDisconnected(t *testing.T) {
	assert.False(t, isClientDisconnected(nil))
	assert.True(t, isClientDisconnected(errors.New("write tcp: broken pipe")))
	assert.True(t, isClientDisconnected(errors.New("read: connection reset by peer")))
	assert.False(t, isClientDisconnected(errors.New("permission denied")))
}

func TestShutdownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, err := New(ctx, Config{Host: "127.0.0.1:0"})
	require.NoError(t, err)
	errs := r.ListenAndServe()
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server didn't shut down")
	}
}
