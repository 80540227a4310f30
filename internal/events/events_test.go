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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = Event{
	BlockID:     "orders",
	Data:        map[string]interface{}{"x": float64(1)},
	MessageID:   "1234",
	PublishTime: "2026-10-16T12:00:00.000Z",
}

type recordingSink struct {
	mux    sync.Mutex
	events []Event
	err    error
}

func (r *recordingSink) Emit(ctx context.Context, event Event) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestFanout(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	require.NoError(t, Fanout{a, b}.Emit(context.Background(), sample))
	assert.Equal(t, []Event{sample}, a.events)
	assert.Equal(t, []Event{sample}, b.events)
}

func TestFanout_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok, bad := &recordingSink{}, &recordingSink{err: boom}

	err := Fanout{ok, bad}.Emit(context.Background(), sample)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.events, 1)

	assert.NoError(t, Fanout{}.Emit(context.Background(), sample))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, sink.Emit(context.Background(), sample))
	assert.Contains(t, buf.String(), `"message_id":"1234"`)
	assert.Contains(t, buf.String(), `"block_id":"orders"`)
}

type fakePublisher struct {
	topic      string
	message    interface{}
	attributes map[string]string
	err        error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, message interface{}, attributes map[string]string) (string, error) {
	f.topic, f.message, f.attributes = topic, message, attributes
	return "republished-1", f.err
}

func TestPubSubSink(t *testing.T) {
	publisher := &fakePublisher{}
	sink, err := NewPubSubSink(publisher, "orders-events")
	require.NoError(t, err)

	require.NoError(t, sink.Emit(context.Background(), sample))
	assert.Equal(t, "orders-events", publisher.topic)
	assert.Equal(t, sample, publisher.message)
	assert.Equal(t, "1234", publisher.attributes["source_message_id"])

	publisher.err = errors.New("unavailable")
	assert.ErrorContains(t, sink.Emit(context.Background(), sample), "unavailable")

	_, err = NewPubSubSink(nil, "t")
	assert.Error(t, err)
	_, err = NewPubSubSink(publisher, "")
	assert.Error(t, err)
}

func TestTaskSink(t *testing.T) {
	var got *taskspb.CreateTaskRequest
	sink := &TaskSink{
		config: TaskConfig{
			Queue:          "projects/acme/locations/us-central1/queues/events",
			CallbackURL:    "https://downstream.example.com/events",
			ServiceAccount: "bridge@acme.iam.gserviceaccount.com",
			Timeout:        time.Minute,
		},
		create: func(ctx context.Context, req *taskspb.CreateTaskRequest) (*taskspb.Task, error) {
			got = req
			return req.Task, nil
		},
	}

	require.NoError(t, sink.Emit(context.Background(), sample))
	require.NotNil(t, got)
	assert.Equal(t, "projects/acme/locations/us-central1/queues/events", got.Parent)

	httpReq := got.Task.GetHttpRequest()
	require.NotNil(t, httpReq)
	assert.Equal(t, "https://downstream.example.com/events", httpReq.Url)
	assert.Equal(t, taskspb.HttpMethod_POST, httpReq.HttpMethod)
	assert.Equal(t, "bridge@acme.iam.gserviceaccount.com", httpReq.GetOidcToken().ServiceAccountEmail)
	assert.Equal(t, "https://downstream.example.com/events", httpReq.GetOidcToken().Audience)
	assert.Equal(t, time.Minute, got.Task.DispatchDeadline.AsDuration())

	var decoded Event
	require.NoError(t, json.Unmarshal(httpReq.Body, &decoded))
	assert.Equal(t, sample, decoded)
}

func TestTaskConfig_Validate(t *testing.T) {
	config := TaskConfig{Queue: "q", CallbackURL: "https://x"}
	assert.ErrorContains(t, config.Validate(), "ServiceAccount")

	_, err := NewTaskSink(nil, config)
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	stream := NewStream(nil)
	server := httptest.NewServer(stream)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	all, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer all.Close()
	filtered, _, err := websocket.DefaultDialer.Dial(url+"?block=invoices", nil)
	require.NoError(t, err)
	defer filtered.Close()

	require.Eventually(t, func() bool { return stream.Clients() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, stream.Emit(context.Background(), sample))

	var received Event
	require.NoError(t, all.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, all.ReadJSON(&received))
	assert.Equal(t, sample, received)

	// The filtered client only sees events for its block
	require.NoError(t, filtered.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	assert.Error(t, filtered.ReadJSON(&received))

	require.NoError(t, all.Close())
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, stream.Close())
	assert.Equal(t, 0, stream.Clients())
}
