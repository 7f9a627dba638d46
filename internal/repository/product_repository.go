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

type mongoProductRepository struct {
	collection *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{
		collection: db.Collection(productsCollection),
	}
}

func (m *mongoProductRepository) GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	var product domain.Product

	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

func (m *mongoProductRepository) GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	products := make(map[primitive.ObjectID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	cursor, err := m.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		p := &domain.Product{}
		if err := cursor.Decode(p); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products[p.ID] = p
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration error: %w", err)
	}

	return products, nil
}

func (m *mongoProductRepository) AddReview(ctx context.Context, productID primitive.ObjectID, review domain.Review) (*domain.Product, error) {
	if review.ID.IsZero() {
		review.ID = primitive.NewObjectID()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}

	filter := bson.M{"_id": productID, "reviews.user": bson.M{"$ne": review.UserID}}
	// $literal keeps user text starting with "$" from being read as a field path.
	reviews := bson.M{"$concatArrays": bson.A{
		bson.M{"$ifNull": bson.A{"$reviews", bson.A{}}},
		bson.A{bson.M{"$literal": review}},
	}}

	return m.updateReviews(ctx, productID, filter, reviews, ErrAlreadyReviewed)
}

func (m *mongoProductRepository) DeleteReview(ctx context.Context, productID, userID primitive.ObjectID) (*domain.Product, error) {
	filter := bson.M{"_id": productID, "reviews.user": userID}
	reviews := bson.M{"$filter": bson.M{
		"input": "$reviews",
		"cond":  bson.M{"$ne": bson.A{"$$this.user", userID}},
	}}

	return m.updateReviews(ctx, productID, filter, reviews, ErrReviewNotFound)
}

// updateReviews replaces the reviews array and derives numReviews and rating
// from it inside one pipeline update.
func (m *mongoProductRepository) updateReviews(ctx context.Context, productID primitive.ObjectID, filter bson.M, reviews bson.M, unmatched error) (*domain.Product, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"reviews": reviews}}},
		{{Key: "$set", Value: bson.M{
			"numReviews": bson.M{"$size": "$reviews"},
			"rating":     bson.M{"$ifNull": bson.A{bson.M{"$avg": "$reviews.rating"}, 0}},
			"updatedAt":  time.Now(),
		}}},
	}

	var product domain.Product
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&product)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update reviews: %w", err)
	}

	n, errCount := m.collection.CountDocuments(ctx, bson.M{"_id": productID})
	if errCount != nil {
		return nil, fmt.Errorf("failed to check product: %w", errCount)
	}
	if n == 0 {
		return nil, ErrProductNotFound
	}
	return nil, unmatched
}
