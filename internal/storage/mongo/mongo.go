// Package mongo implements the storage repositories on MongoDB
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"clinicapi/internal/config"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/storage"
)

// Collection names
const (
	UsersCollection    = "users"
	LicenseCollection  = "licenses"
	AuditCollection    = "auditlogs"
	SettingsCollection = "settings"
)

// singletonID keys documents of which at most one may exist
const singletonID = "default"

// Open connects to MongoDB, creates the indexes the repositories rely on
// and returns a Store over the configured database.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*storage.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(cfg.Name)
	if err := ensureIndexes(connectCtx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	logger.Info("Connected to MongoDB", slog.String("database", cfg.Name))
	return NewStore(client, db), nil
}

// NewStore wraps an open database. The client is disconnected on Close.
func NewStore(client *mongo.Client, db *mongo.Database) *storage.Store {
	store := storage.NewStore("mongo",
		func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		func(ctx context.Context) error { return client.Disconnect(ctx) },
	)
	store.Users = &UserRepository{coll: db.Collection(UsersCollection)}
	store.Licenses = &LicenseRepository{coll: db.Collection(LicenseCollection)}
	store.Audit = &AuditRepository{coll: db.Collection(AuditCollection)}
	store.Records = &RecordRepository{db: db}
	store.Settings = &SettingsRepository{coll: db.Collection(SettingsCollection)}
	return store
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		LicenseCollection: {
			{Keys: bson.D{{Key: "singleton", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		SettingsCollection: {
			{Keys: bson.D{{Key: "singleton", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		AuditCollection: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "module", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// parseID converts a hex id. Malformed ids cannot exist and report not found.
func parseID(resource, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, storage.NotFound(resource, id)
	}
	return oid, nil
}

// normalize converts driver types into plain JSON-friendly values
func normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		return normalizeDoc(val)
	case map[string]any:
		return normalizeDoc(val)
	case bson.D:
		return normalizeDoc(val.Map())
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}

func normalizeDoc(doc map[string]any) storage.Record {
	if doc == nil {
		return nil
	}
	out := make(storage.Record, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// storageError wraps a driver fault. The collection is logged, never rendered.
func storageError(op, collection string, err error) error {
	return apierrors.NewStorageError(op, err).WithContext("collection", collection)
}
