package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultServerSelectionTimeout = 5 * time.Second

// MongoClient manages the connection to MongoDB
type MongoClient struct {
	client *mongo.Client
}

// NewMongoClient connects to MongoDB and verifies the server answers a ping.
// A zero timeout uses the default server selection timeout.
func NewMongoClient(ctx context.Context, uri string, timeout time.Duration) (*MongoClient, error) {
	if timeout <= 0 {
		timeout = defaultServerSelectionTimeout
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", classifyMongoError(err))
	}

	// Test the connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", classifyMongoError(err))
	}

	return &MongoClient{client: client}, nil
}

// Close closes the database connection
func (c *MongoClient) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Database returns a handle to the named database
func (c *MongoClient) Database(name string) *mongo.Database {
	return c.client.Database(name)
}

// MongoDatabaseName returns the database named in the URI path, if any
func MongoDatabaseName(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return cs.Database, nil
}
