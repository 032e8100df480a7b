package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-service/internal/services"
)

type fakeJetStream struct {
	failures int
	calls    int
	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("no responders")
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: StreamName, Sequence: uint64(f.calls)}, nil
}

func newTestClient(js publisher) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Client{
		js:      js,
		logger:  logger.WithField("component", "nats"),
		backoff: func(int) time.Duration { return time.Millisecond },
	}
}

func TestPublish_SendsJSONEvent(t *testing.T) {
	js := &fakeJetStream{}
	client := newTestClient(js)

	event := &services.Event{ID: "evt-1", Type: services.EventTenantRegistered, Data: map[string]string{"code": "ABC12345"}}
	require.NoError(t, client.Publish(context.Background(), services.EventTenantRegistered, event))

	require.Len(t, js.payloads, 1)
	assert.Equal(t, []string{services.EventTenantRegistered}, js.subjects)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(js.payloads[0], &decoded))
	assert.Equal(t, "evt-1", decoded["id"])
	assert.Equal(t, services.EventTenantRegistered, decoded["event_type"])
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	js := &fakeJetStream{failures: 2}
	client := newTestClient(js)

	err := client.Publish(context.Background(), "billing.test", &services.Event{ID: "evt-2"})
	require.NoError(t, err)
	assert.Equal(t, 3, js.calls)
}

func TestPublish_GivesUpAfterMaxAttempts(t *testing.T) {
	js := &fakeJetStream{failures: 10}
	client := newTestClient(js)

	err := client.Publish(context.Background(), "billing.test", &services.Event{ID: "evt-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, maxPublishAttempts, js.calls)
}

func TestPublish_StopsOnCancelledContext(t *testing.T) {
	js := &fakeJetStream{failures: 10}
	client := newTestClient(js)
	client.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Publish(ctx, "billing.test", &services.Event{ID: "evt-4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, js.calls)
}

func TestPublish_NilClient(t *testing.T) {
	var client *Client
	assert.Error(t, client.Publish(context.Background(), "billing.test", &services.Event{}))
	assert.False(t, client.IsConnected())
	client.Close()
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, exponentialBackoff(1))
	assert.Equal(t, 2*time.Second, exponentialBackoff(2))
	assert.Equal(t, 4*time.Second, exponentialBackoff(3))
}
