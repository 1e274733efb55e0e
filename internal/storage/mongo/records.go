package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinicapi/internal/storage"
)

// RecordRepository stores clinic documents, one collection per data module
type RecordRepository struct {
	db *mongo.Database
}

// List returns documents in insertion order
func (r *RecordRepository) List(ctx context.Context, collection string, limit int) ([]storage.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storageError("find", collection, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageError("decode", collection, err)
	}

	records := make([]storage.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, normalizeDoc(doc))
	}
	return records, nil
}

// Get returns one document
func (r *RecordRepository) Get(ctx context.Context, collection, id string) (storage.Record, error) {
	oid, err := parseID(collection, id)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	if err := r.db.Collection(collection).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound(collection, id)
		}
		return nil, storageError("find", collection, err)
	}
	return normalizeDoc(doc), nil
}

// Insert stores a new document under a fresh ObjectID
func (r *RecordRepository) Insert(ctx context.Context, collection string, doc storage.Record) (storage.Record, error) {
	stored := storage.StripSystemFields(doc)
	now := time.Now().UTC().Truncate(time.Millisecond)
	stored["_id"] = primitive.NewObjectID()
	stored["createdAt"] = now
	stored["updatedAt"] = now

	if _, err := r.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return nil, storageError("insert", collection, err)
	}
	return normalizeDoc(stored), nil
}

// Update sets the given fields
func (r *RecordRepository) Update(ctx context.Context, collection, id string, doc storage.Record) (storage.Record, error) {
	oid, err := parseID(collection, id)
	if err != nil {
		return nil, err
	}

	set := storage.StripSystemFields(doc)
	set["updatedAt"] = time.Now().UTC()

	var updated bson.M
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = r.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).
		Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound(collection, id)
		}
		return nil, storageError("update", collection, err)
	}
	return normalizeDoc(updated), nil
}

// Delete removes a document
func (r *RecordRepository) Delete(ctx context.Context, collection, id string) error {
	oid, err := parseID(collection, id)
	if err != nil {
		return err
	}

	res, err := r.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storageError("delete", collection, err)
	}
	if res.DeletedCount == 0 {
		return storage.NotFound(collection, id)
	}
	return nil
}

// Count returns the number of documents in a collection
func (r *RecordRepository) Count(ctx context.Context, collection string) (int64, error) {
	n, err := r.db.Collection(collection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, storageError("count", collection, err)
	}
	return n, nil
}

// SettingsRepository stores the clinic settings singleton
type SettingsRepository struct {
	coll *mongo.Collection
}

// Get returns the saved settings
func (r *SettingsRepository) Get(ctx context.Context) (storage.Record, error) {
	var doc bson.M
	if err := r.coll.FindOne(ctx, singletonFilter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return storage.Record{}, nil
		}
		return nil, storageError("find settings", r.coll.Name(), err)
	}
	delete(doc, "_id")
	delete(doc, "singleton")
	return normalizeDoc(doc), nil
}

// Put replaces the settings
func (r *SettingsRepository) Put(ctx context.Context, doc storage.Record) (storage.Record, error) {
	stored := storage.StripSystemFields(doc)
	stored["singleton"] = singletonID
	stored["updatedAt"] = time.Now().UTC()

	if _, err := r.coll.ReplaceOne(ctx, singletonFilter, stored, options.Replace().SetUpsert(true)); err != nil {
		return nil, storageError("save settings", r.coll.Name(), err)
	}
	delete(stored, "singleton")
	return normalizeDoc(stored), nil
}
