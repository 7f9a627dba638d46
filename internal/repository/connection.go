package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoOptions configures the client behind every repository.
type MongoOptions struct {
	URI      string
	Database string
	AppName  string
	// ConnectTimeout bounds both dialing and the startup ping.
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetRetryWrites(true)
	if o.AppName != "" {
		opts.SetAppName(o.AppName)
	}
	if o.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 && o.MinPoolSize <= o.MaxPoolSize {
		opts.SetMinPoolSize(o.MinPoolSize)
	}
	return opts
}

// ConnectMongoDB opens a client and waits for the primary to answer. The
// client is disconnected again when the ping fails.
func ConnectMongoDB(ctx context.Context, o MongoOptions) (*mongo.Database, error) {
	if o.Database == "" {
		return nil, errors.New("mongo database name is empty")
	}
	opts := o.clientOptions()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, *opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(o.Database), nil
}
