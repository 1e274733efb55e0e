package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

type licenseDoc struct {
	Singleton      string    `bson:"singleton"`
	LicenseKey     string    `bson:"licenseKey,omitempty"`
	IsActive       bool      `bson:"isActive"`
	EnabledModules []string  `bson:"enabledModules"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func (d licenseDoc) license() *domain.License {
	return &domain.License{
		LicenseKey:     d.LicenseKey,
		IsActive:       d.IsActive,
		EnabledModules: toModuleSet(d.EnabledModules),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// LicenseRepository keeps the license singleton. A unique index on the
// singleton field backs the insert-if-absent upsert.
type LicenseRepository struct {
	coll *mongo.Collection
}

var singletonFilter = bson.M{"singleton": singletonID}

// Get returns the license
func (r *LicenseRepository) Get(ctx context.Context) (*domain.License, error) {
	var doc licenseDoc
	if err := r.coll.FindOne(ctx, singletonFilter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound("license", "")
		}
		return nil, storageError("find license", r.coll.Name(), err)
	}
	return doc.license(), nil
}

// Ensure inserts candidate when no license exists
func (r *LicenseRepository) Ensure(ctx context.Context, candidate domain.License) (*domain.License, bool, error) {
	now := time.Now().UTC()
	onInsert := bson.M{
		"isActive":       candidate.IsActive,
		"enabledModules": fromModuleSet(candidate.EnabledModules),
		"createdAt":      now,
		"updatedAt":      now,
	}
	if candidate.LicenseKey != "" {
		onInsert["licenseKey"] = candidate.LicenseKey
	}

	created := false
	res, err := r.coll.UpdateOne(ctx, singletonFilter,
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true))
	switch {
	case err == nil:
		created = res.UpsertedCount == 1
	case mongo.IsDuplicateKeyError(err):
		// a concurrent upsert won the insert
	default:
		return nil, false, storageError("ensure license", r.coll.Name(), err)
	}

	lic, err := r.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	return lic, created, nil
}

// SetKeyIfMissing stores key when the license has none
func (r *LicenseRepository) SetKeyIfMissing(ctx context.Context, key string) (*domain.License, bool, error) {
	filter := bson.M{
		"singleton": singletonID,
		"$or": bson.A{
			bson.M{"licenseKey": bson.M{"$exists": false}},
			bson.M{"licenseKey": ""},
			bson.M{"licenseKey": nil},
		},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"licenseKey": key,
		"updatedAt":  time.Now().UTC(),
	}})
	if err != nil {
		return nil, false, storageError("backfill license key", r.coll.Name(), err)
	}

	lic, err := r.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	return lic, res.ModifiedCount == 1, nil
}

// Update applies a partial update
func (r *LicenseRepository) Update(ctx context.Context, upd domain.LicenseUpdate) (*domain.License, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.IsActive != nil {
		set["isActive"] = *upd.IsActive
	}
	if upd.EnabledModules != nil {
		set["enabledModules"] = fromModuleSet(*upd.EnabledModules)
	}
	return r.findAndSet(ctx, set)
}

// ReplaceKey overwrites the license key
func (r *LicenseRepository) ReplaceKey(ctx context.Context, key string) (*domain.License, error) {
	return r.findAndSet(ctx, bson.M{"licenseKey": key, "updatedAt": time.Now().UTC()})
}

func (r *LicenseRepository) findAndSet(ctx context.Context, set bson.M) (*domain.License, error) {
	var doc licenseDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.coll.FindOneAndUpdate(ctx, singletonFilter, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound("license", "")
		}
		return nil, storageError("update license", r.coll.Name(), err)
	}
	return doc.license(), nil
}
