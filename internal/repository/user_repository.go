package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(usersCollection),
	}
}

func (m *mongoUserRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var user domain.User

	opts := options.FindOne().SetProjection(bson.M{"password": 0})
	err := m.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (m *mongoUserRepository) SaveCart(ctx context.Context, id primitive.ObjectID, cart domain.Cart, expectedVersion int64) (int64, error) {
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}

	filter := bson.M{"_id": id, "version": expectedVersion}
	if expectedVersion == 0 {
		// documents written before versioning have no version field
		filter = bson.M{
			"_id": id,
			"$or": bson.A{
				bson.M{"version": 0},
				bson.M{"version": bson.M{"$exists": false}},
			},
		}
	}

	update := bson.M{
		"$set": bson.M{
			"cart":      cart,
			"updatedAt": time.Now(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to save cart: %w", err)
	}

	if result.MatchedCount == 0 {
		n, errCount := m.collection.CountDocuments(ctx, bson.M{"_id": id})
		if errCount != nil {
			return 0, fmt.Errorf("failed to check user: %w", errCount)
		}
		if n == 0 {
			return 0, ErrUserNotFound
		}
		return 0, ErrVersionConflict
	}

	return expectedVersion + 1, nil
}

func (m *mongoUserRepository) AddFavourite(ctx context.Context, id, productID primitive.ObjectID) error {
	filter := bson.M{"_id": id, "favouriteProducts": bson.M{"$ne": productID}}
	return m.updateRefs(ctx, id, filter, appendRef("favouriteProducts", productID), ErrAlreadyFavourite)
}

func (m *mongoUserRepository) RemoveFavourite(ctx context.Context, id, productID primitive.ObjectID) error {
	filter := bson.M{"_id": id, "favouriteProducts": productID}
	update := bson.M{
		"$pull": bson.M{"favouriteProducts": productID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	return m.updateRefs(ctx, id, filter, update, ErrNotFavourite)
}

func (m *mongoUserRepository) MarkReviewed(ctx context.Context, id, productID primitive.ObjectID) error {
	filter := bson.M{"_id": id, "reviewedProducts": bson.M{"$ne": productID}}
	return m.updateRefs(ctx, id, filter, appendRef("reviewedProducts", productID), nil)
}

func (m *mongoUserRepository) UnmarkReviewed(ctx context.Context, id, productID primitive.ObjectID) error {
	filter := bson.M{"_id": id, "reviewedProducts": productID}
	update := bson.M{"$pull": bson.M{"reviewedProducts": productID}}
	return m.updateRefs(ctx, id, filter, update, nil)
}

// appendRef pushes productID onto field, which may be missing or null on
// documents that never had the list.
func appendRef(field string, productID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			field: bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$" + field, bson.A{}}},
				bson.A{productID},
			}},
			"updatedAt": time.Now(),
		}}},
	}
}

// updateRefs edits one of the product reference lists. The cart version is
// left alone: these lists never race with cart saves. When filter matches
// nothing but the user exists, unchanged is returned.
func (m *mongoUserRepository) updateRefs(ctx context.Context, id primitive.ObjectID, filter bson.M, update interface{}, unchanged error) error {
	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return unchanged
}
