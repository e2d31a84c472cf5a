package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/labdepot/labdepot/internal/pubsub"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_NilJetStream(t *testing.T) {
	_, err := NewPublisher(context.Background(), nil, pubsub.PublisherOptions{})
	assert.Error(t, err)
}

func TestNewPublisher_EnsuresStream(t *testing.T) {
	js := new(MockJetStream)
	js.On("CreateOrUpdateStream", mock.Anything, jetstream.StreamConfig{
		Name:     "NOTIFICATIONS",
		Subjects: []string{"notifications.>"},
		Storage:  jetstream.FileStorage,
	}).Return(nil, nil)

	_, err := NewPublisher(context.Background(), js, pubsub.PublisherOptions{
		StreamName:    "NOTIFICATIONS",
		SubjectPrefix: "notifications",
		Storage:       pubsub.FileStorage,
	})
	require.NoError(t, err)
	js.AssertExpectations(t)
}

func TestNewPublisher_StreamError(t *testing.T) {
	js := new(MockJetStream)
	js.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, errors.New("no stream"))

	_, err := NewPublisher(context.Background(), js, pubsub.PublisherOptions{StreamName: "S"})
	assert.ErrorContains(t, err, "failed to ensure stream")
}

func TestPublisher_Publish(t *testing.T) {
	js := new(MockJetStream)
	js.On("Publish", mock.Anything, "notifications.lab-1", []byte(`{}`)).Return(&jetstream.PubAck{Stream: "S"}, nil)

	var gotSubject string
	var gotErr error
	pub, err := NewPublisher(context.Background(), js, pubsub.PublisherOptions{
		SubjectPrefix: "notifications",
		RetryAttempts: 2,
		OnPublish: func(subject string, err error, _ time.Duration) {
			gotSubject = subject
			gotErr = err
		},
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "lab-1", []byte(`{}`)))
	assert.Equal(t, "notifications.lab-1", gotSubject)
	assert.NoError(t, gotErr)
	assert.NoError(t, pub.Close())
	js.AssertExpectations(t)
}

func TestPublisher_PublishError(t *testing.T) {
	js := new(MockJetStream)
	js.On("Publish", mock.Anything, "lab-1", mock.Anything).Return(nil, errors.New("timeout"))

	pub, err := NewPublisher(context.Background(), js, pubsub.PublisherOptions{})
	require.NoError(t, err)

	err = pub.Publish(context.Background(), "lab-1", nil)
	assert.ErrorContains(t, err, "failed to publish to lab-1")
}

func TestProvider_Lifecycle(t *testing.T) {
	js := new(MockJetStream)
	original := JetStreamNew
	JetStreamNew = func(*nats.Conn) (JetStream, error) { return js, nil }
	defer func() { JetStreamNew = original }()

	conn := &fakeConn{}
	p := NewProvider("nats://test:4222", nil)
	p.natsConnect = func(string, ...nats.Option) (natsConnection, *nats.Conn, error) {
		return conn, nil, nil
	}

	_, err := p.NewPublisher(context.Background(), pubsub.PublisherOptions{})
	assert.Error(t, err)

	require.NoError(t, p.Connect(context.Background()))
	pub, err := p.NewPublisher(context.Background(), pubsub.PublisherOptions{})
	require.NoError(t, err)
	assert.NotNil(t, pub)

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestProvider_ConnectErrors(t *testing.T) {
	p := NewProvider("nats://test:4222", nil)
	p.natsConnect = func(string, ...nats.Option) (natsConnection, *nats.Conn, error) {
		return nil, nil, errors.New("refused")
	}
	assert.ErrorContains(t, p.Connect(context.Background()), "failed to connect to NATS")

	original := JetStreamNew
	JetStreamNew = func(*nats.Conn) (JetStream, error) { return nil, errors.New("no js") }
	defer func() { JetStreamNew = original }()

	conn := &fakeConn{}
	p.natsConnect = func(string, ...nats.Option) (natsConnection, *nats.Conn, error) {
		return conn, nil, nil
	}
	assert.ErrorContains(t, p.Connect(context.Background()), "failed to create JetStream")
	assert.True(t, conn.closed)
}
