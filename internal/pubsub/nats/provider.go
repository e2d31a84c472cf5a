package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labdepot/labdepot/internal/pubsub"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// natsConnection abstracts the nats.Conn for testing purposes
type natsConnection interface {
	Close()
}

type natsConnectFunc func(url string, opts ...nats.Option) (natsConnection, *nats.Conn, error)

var defaultNatsConnect natsConnectFunc = func(url string, opts ...nats.Option) (natsConnection, *nats.Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, err
	}
	return nc, nc, nil
}

// JetStreamNew is a variable to allow mocking in tests.
var JetStreamNew = func(nc *nats.Conn) (JetStream, error) {
	return jetstream.New(nc)
}

// Provider manages the NATS connection lifecycle and creates publishers.
type Provider struct {
	url         string
	name        string
	nc          natsConnection
	js          JetStream
	natsConnect natsConnectFunc
	logger      *slog.Logger
}

// NewProvider creates an unconnected provider.
func NewProvider(url string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		url:         url,
		name:        "labdepot",
		natsConnect: defaultNatsConnect,
		logger:      logger.With("component", "nats"),
	}
}

// Connect establishes the NATS connection and initializes JetStream.
func (p *Provider) Connect(ctx context.Context) error {
	nc, conn, err := p.natsConnect(p.url, nats.Name(p.name), nats.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.nc = nc

	js, err := JetStreamNew(conn)
	if err != nil {
		nc.Close()
		p.nc = nil
		return fmt.Errorf("failed to create JetStream: %w", err)
	}
	p.js = js

	p.logger.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewPublisher creates a new Publisher backed by NATS JetStream.
func (p *Provider) NewPublisher(ctx context.Context, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewPublisher(ctx, p.js, opts)
}

// Close closes the NATS connection.
func (p *Provider) Close() error {
	if p.nc != nil {
		p.logger.Info("Closing NATS connection...")
		p.nc.Close()
		p.nc = nil
		p.js = nil
	}
	return nil
}
