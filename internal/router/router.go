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
// Created: September 30, 2024

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// New creates a Router serving HTTP/1.1 and cleartext HTTP/2, with optional
// CORS support and a custom 404 handler. The server shuts down gracefully when
// ctx is canceled.
func New(ctx context.Context, config Config) (*Router, error) {

	// Ensure the context is not nil
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	// Validate the provided configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize the Router struct
	router := &Router{ctx: ctx, log: config.Logger}
	if router.log == nil {
		router.log = slog.Default()
	}

	// Set Gin mode to release
	gin.SetMode(gin.ReleaseMode)

	// Create a new Gin router with HTTP/2 support
	router.engine = gin.New()
	router.engine.UseH2C = true
	router.engine.Use(gin.Recovery())

	// Set up the 404 route
	if config.NoRouteHandler != nil {
		router.engine.NoRoute(gin.WrapF(config.NoRouteHandler))
	} else {
		router.engine.NoRoute(func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		})
	}

	// Apply CORS middleware
	if config.Cors != nil {
		router.engine.Use(cors.New(cors.Config{
			AllowOrigins:     config.Cors.AllowOrigins,
			AllowMethods:     config.Cors.AllowMethods,
			AllowHeaders:     config.Cors.AllowHeaders,
			ExposeHeaders:    config.Cors.ExposeHeaders,
			AllowCredentials: config.Cors.AllowCredentials,
			MaxAge:           config.Cors.MaxAge,
		}))
	}

	// Set up the HTTP server
	router.server = &http.Server{
		Addr: config.Host,
		Handler: h2c.NewHandler(
			router.engine,
			&http2.Server{},
		),
	}

	// Gracefully shutdown the server when the context is canceled
	go router.awaitContextDone()

	return router, nil
}

// Handler returns the router's http.Handler
func (r *Router) Handler() http.Handler {
	return r.server.Handler
}

// ListenAndServe starts the HTTP server in a separate goroutine and returns a channel that captures any errors.
func (r *Router) ListenAndServe() chan error {
	errorChan := make(chan error, 1)
	go func() {
		errorChan <- r.server.ListenAndServe()
	}()
	return errorChan
}

// RegisterHandler registers a handler for the specified HTTP method and path.
func (r *Router) RegisterHandler(method, relativePath string, handler http.Handler) error {
	if handler == nil {
		return fmt.Errorf("handler for path '%s' is nil", relativePath)
	}
	wrappedHandler := gin.WrapH(handler)

	// Validate and register the handler based on the HTTP method
	switch strings.ToUpper(method) {
	case "DELETE":
		r.engine.DELETE(relativePath, wrappedHandler)
	case "GET":
		r.engine.GET(relativePath, wrappedHandler)
	case "HEAD":
		r.engine.HEAD(relativePath, wrappedHandler)
	case "PATCH":
		r.engine.PATCH(relativePath, wrappedHandler)
	case "POST":
		r.engine.POST(relativePath, wrappedHandler)
	case "PUT":
		r.engine.PUT(relativePath, wrappedHandler)
	default:
		return fmt.Errorf("invalid http method '%s' for path '%s'", strings.ToUpper(method), relativePath)
	}
	return nil
}

// SendJSON writes statusCode and body, encoded as JSON. A client that
// disconnected mid-write isn't treated as an error.
func SendJSON(w http.ResponseWriter, statusCode int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body == nil {
		return nil
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		if isClientDisconnected(err) {
			return nil
		}
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for ongoing connections to finish.
func (r *Router) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.server.Shutdown(ctx)
}
