package mongo

import (
	"context"
	"time"

	"github.com/labdepot/labdepot/internal/storage/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Provider owns a MongoDB client connection.
type Provider struct {
	client *mongo.Client
	dbName string
}

// NewProvider connects to MongoDB and verifies the connection with a ping.
func NewProvider(ctx context.Context, cfg config.MongoConfig) (*Provider, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)

	if clientOpts.ConnectTimeout == nil {
		timeout := cfg.ConnectTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		clientOpts.SetConnectTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Provider{
		client: client,
		dbName: cfg.DatabaseName,
	}, nil
}

// Client returns the underlying MongoDB client
func (p *Provider) Client() *mongo.Client {
	return p.client
}

// Database returns the configured database handle.
func (p *Provider) Database() *mongo.Database {
	return p.client.Database(p.dbName)
}

// Close closes the MongoDB connection
func (p *Provider) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}
