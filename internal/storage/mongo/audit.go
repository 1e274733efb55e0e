package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinicapi/pkg/contracts/domain"
)

type auditDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	User         string             `bson:"user,omitempty"`
	Action       string             `bson:"action"`
	Module       string             `bson:"module"`
	ResourceID   string             `bson:"resourceId,omitempty"`
	ResourceType string             `bson:"resourceType"`
	Changes      bson.M             `bson:"changes,omitempty"`
	IPAddress    string             `bson:"ipAddress"`
	UserAgent    string             `bson:"userAgent"`
	Timestamp    time.Time          `bson:"timestamp"`
}

// AuditRepository appends audit entries to the auditlogs collection
type AuditRepository struct {
	coll *mongo.Collection
}

// Insert stores an entry
func (r *AuditRepository) Insert(ctx context.Context, entry *domain.AuditLogEntry) error {
	doc := auditDoc{
		ID:           primitive.NewObjectID(),
		User:         entry.User,
		Action:       string(entry.Action),
		Module:       entry.Module,
		ResourceID:   entry.ResourceID,
		ResourceType: entry.ResourceType,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Timestamp:    entry.Timestamp,
	}
	if entry.Changes != nil {
		doc.Changes = bson.M(entry.Changes)
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return storageError("insert audit entry", r.coll.Name(), err)
	}
	entry.ID = doc.ID.Hex()
	return nil
}

// List returns matching entries, newest first
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	query := bson.M{}
	if filter.Module != "" {
		query["module"] = filter.Module
	}
	if filter.Action != "" {
		query["action"] = string(filter.Action)
	}
	if filter.User != "" {
		query["user"] = filter.User
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, storageError("find audit entries", r.coll.Name(), err)
	}

	var docs []auditDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageError("decode audit entries", r.coll.Name(), err)
	}

	entries := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		entry := domain.AuditLogEntry{
			ID:           doc.ID.Hex(),
			User:         doc.User,
			Action:       domain.AuditAction(doc.Action),
			Module:       doc.Module,
			ResourceID:   doc.ResourceID,
			ResourceType: doc.ResourceType,
			IPAddress:    doc.IPAddress,
			UserAgent:    doc.UserAgent,
			Timestamp:    doc.Timestamp.UTC(),
		}
		if doc.Changes != nil {
			entry.Changes = normalizeDoc(doc.Changes)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
