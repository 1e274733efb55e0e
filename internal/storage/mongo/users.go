package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"passwordHash,omitempty"`
	Role         string             `bson:"role"`
	IsActive     bool               `bson:"isActive"`
	Permissions  []string           `bson:"permissions"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d userDoc) identity() domain.Identity {
	return domain.Identity{
		ID:          d.ID.Hex(),
		Role:        domain.Role(d.Role),
		IsActive:    d.IsActive,
		Permissions: toModuleSet(d.Permissions),
	}
}

// UserRepository stores accounts in the users collection
type UserRepository struct {
	coll *mongo.Collection
}

// FindIdentity loads a user without its password hash
func (r *UserRepository) FindIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	oid, err := parseID("user", id)
	if err != nil {
		return nil, err
	}

	var doc userDoc
	opts := options.FindOne().SetProjection(bson.M{"passwordHash": 0})
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound("user", id)
		}
		return nil, storageError("find user", r.coll.Name(), err)
	}

	identity := doc.identity()
	return &identity, nil
}

// FindByEmail loads a full user
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound("user", "")
		}
		return nil, storageError("find user by email", r.coll.Name(), err)
	}

	return &domain.User{
		Identity:     doc.identity(),
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Name:         user.Name,
		Email:        strings.ToLower(user.Email),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		IsActive:     user.IsActive,
		Permissions:  fromModuleSet(user.Permissions),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.Duplicate("user", "email")
		}
		return storageError("insert user", r.coll.Name(), err)
	}

	user.ID = doc.ID.Hex()
	user.CreatedAt, user.UpdatedAt = now, now
	return nil
}

func toModuleSet(values []string) domain.ModuleSet {
	keys := make([]domain.ModuleKey, 0, len(values))
	for _, v := range values {
		keys = append(keys, domain.ModuleKey(v))
	}
	return domain.NewModuleSet(keys...)
}

func fromModuleSet(set domain.ModuleSet) []string {
	out := make([]string, 0, len(set))
	for _, m := range set {
		out = append(out, m.String())
	}
	return out
}
