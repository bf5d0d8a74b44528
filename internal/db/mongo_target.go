package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/auth"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/tordrt/docschema/internal/schema"
)

// MongoDB server error codes
const (
	mongoCodeUnauthorized          = 13
	mongoCodeAuthenticationFailed  = 18
	mongoCodeNamespaceNotFound     = 26
	mongoCodeNamespaceExists       = 48
	mongoCodeIndexAlreadyExists    = 68
	mongoCodeIndexOptionsConflict  = 85
	mongoCodeIndexKeySpecsConflict = 86
	mongoCodeDuplicateKey          = 11000
	mongoCodeDuplicateKeyLegacy    = 11001
)

// mongoOps are the driver calls MongoTarget makes, replaceable in tests
type mongoOps struct {
	listCollections  func(ctx context.Context, db *mongo.Database) ([]string, error)
	createCollection func(ctx context.Context, db *mongo.Database, name string) error
	listIndexes      func(ctx context.Context, db *mongo.Database, collection string) ([]*mongo.IndexSpecification, error)
	createIndex      func(ctx context.Context, db *mongo.Database, collection string, model mongo.IndexModel) error
}

func defaultMongoOps() mongoOps {
	return mongoOps{
		listCollections: func(ctx context.Context, db *mongo.Database) ([]string, error) {
			return db.ListCollectionNames(ctx, bson.D{})
		},
		createCollection: func(ctx context.Context, db *mongo.Database, name string) error {
			return db.CreateCollection(ctx, name)
		},
		listIndexes: func(ctx context.Context, db *mongo.Database, collection string) ([]*mongo.IndexSpecification, error) {
			return db.Collection(collection).Indexes().ListSpecifications(ctx)
		},
		createIndex: func(ctx context.Context, db *mongo.Database, collection string, model mongo.IndexModel) error {
			_, err := db.Collection(collection).Indexes().CreateOne(ctx, model)
			return err
		},
	}
}

// MongoTarget provisions collections and indexes in one MongoDB database
type MongoTarget struct {
	db  *mongo.Database
	ops mongoOps
}

// NewMongoTarget creates a target for the given database handle
func NewMongoTarget(db *mongo.Database) *MongoTarget {
	return &MongoTarget{db: db, ops: defaultMongoOps()}
}

// Engine returns "mongodb"
func (t *MongoTarget) Engine() string {
	return "mongodb"
}

// ListCollections returns the names of existing collections
func (t *MongoTarget) ListCollections(ctx context.Context) ([]string, error) {
	names, err := t.ops.listCollections(ctx, t.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", classifyMongoError(err))
	}
	return names, nil
}

// CreateCollection creates an empty collection
func (t *MongoTarget) CreateCollection(ctx context.Context, name string) error {
	if err := t.ops.createCollection(ctx, t.db, name); err != nil {
		return fmt.Errorf("failed to create collection: %w", classifyMongoError(err))
	}
	return nil
}

// ListIndexes returns the indexes of a collection, including _id_
func (t *MongoTarget) ListIndexes(ctx context.Context, collection string) ([]schema.Index, error) {
	specs, err := t.ops.listIndexes(ctx, t.db, collection)
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == mongoCodeNamespaceNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list indexes: %w", classifyMongoError(err))
	}

	indexes := make([]schema.Index, 0, len(specs))
	for _, spec := range specs {
		keys, err := mongoKeys(spec.KeysDocument)
		if err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", spec.Name, err)
		}
		indexes = append(indexes, schema.Index{
			Name:   spec.Name,
			Keys:   keys,
			Unique: spec.Unique != nil && *spec.Unique,
		})
	}

	return indexes, nil
}

// CreateIndex creates the index under its given name
func (t *MongoTarget) CreateIndex(ctx context.Context, collection string, index schema.Index) error {
	if err := t.ops.createIndex(ctx, t.db, collection, mongoIndexModel(index)); err != nil {
		return fmt.Errorf("failed to create index: %w", classifyMongoError(err))
	}
	return nil
}

func mongoIndexModel(index schema.Index) mongo.IndexModel {
	keys := make(bson.D, 0, len(index.Keys))
	for _, k := range index.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: int32(k.Direction)})
	}

	opts := options.Index().SetName(index.Name)
	if index.Unique {
		opts.SetUnique(true)
	}

	return mongo.IndexModel{Keys: keys, Options: opts}
}

// mongoKeys converts an index key document. Special index types (text,
// hashed, 2dsphere) have no direction and are kept with Direction 0 so they
// never compare equal to a planned index.
func mongoKeys(raw bson.Raw) ([]schema.Key, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, err
	}

	keys := make([]schema.Key, 0, len(elems))
	for _, e := range elems {
		var n float64
		v := e.Value()
		switch v.Type {
		case bson.TypeInt32:
			n = float64(v.Int32())
		case bson.TypeInt64:
			n = float64(v.Int64())
		case bson.TypeDouble:
			n = v.Double()
		}

		var dir schema.Direction
		switch {
		case n > 0:
			dir = schema.Ascending
		case n < 0:
			dir = schema.Descending
		}
		keys = append(keys, schema.Key{Field: e.Key(), Direction: dir})
	}

	return keys, nil
}

// classifyMongoError wraps err with the matching schema sentinel
func classifyMongoError(err error) error {
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case mongoCodeUnauthorized, mongoCodeAuthenticationFailed:
			return fmt.Errorf("%w: %w", schema.ErrAuthorization, err)
		case mongoCodeNamespaceExists:
			return fmt.Errorf("%w: %w", schema.ErrAlreadyExists, err)
		case mongoCodeIndexAlreadyExists, mongoCodeIndexOptionsConflict, mongoCodeIndexKeySpecsConflict:
			return fmt.Errorf("%w: %w", schema.ErrConflict, err)
		case mongoCodeDuplicateKey, mongoCodeDuplicateKeyLegacy:
			return fmt.Errorf("%w: %w", schema.ErrDataConflict, err)
		}
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w: %w", schema.ErrAuthorization, err)
	}

	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", schema.ErrDataConflict, err)
	}

	var selErr topology.ServerSelectionError
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.As(err, &selErr) {
		return fmt.Errorf("%w: %w", schema.ErrConnectivity, err)
	}

	return err
}
