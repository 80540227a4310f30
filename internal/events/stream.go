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

package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 5 * time.Second

// Stream broadcasts events to connected websocket clients. Clients that can't
// keep up are disconnected.
type Stream struct {
	clients  map[*streamClient]struct{}
	log      *slog.Logger
	mux      sync.RWMutex
	upgrader websocket.Upgrader
}

type streamClient struct {
	blockID string // Only events for this block are sent, all when empty
	conn    *websocket.Conn
	mux     sync.Mutex // A websocket connection supports one concurrent writer
}

// NewStream returns a Stream with no clients
func NewStream(log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	return &Stream{
		clients: map[*streamClient]struct{}{},
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects. The optional "block" query parameter filters by block id.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade request to a websocket", slog.Any("error", err))
		return
	}

	client := &streamClient{blockID: r.URL.Query().Get("block"), conn: conn}
	s.mux.Lock()
	s.clients[client] = struct{}{}
	s.mux.Unlock()

	// Read until the client goes away; incoming messages are ignored
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	s.remove(client)
}

// Emit sends the event to every interested client
func (s *Stream) Emit(ctx context.Context, event Event) error {
	s.mux.RLock()
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		if c.blockID == "" || c.blockID == event.BlockID {
			clients = append(clients, c)
		}
	}
	s.mux.RUnlock()

	for _, c := range clients {
		c.mux.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		err := c.conn.WriteJSON(event)
		c.mux.Unlock()
		if err != nil {
			s.log.Warn("dropping event stream client", slog.Any("error", err))
			s.remove(c)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (s *Stream) Clients() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.clients)
}

// Close disconnects all clients
func (s *Stream) Close() error {
	s.mux.Lock()
	clients := s.clients
	s.clients = map[*streamClient]struct{}{}
	s.mux.Unlock()

	for c := range clients {
		c.mux.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.mux.Unlock()
		_ = c.conn.Close()
	}
	return nil
}

func (s *Stream) remove(c *streamClient) {
	s.mux.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mux.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}
