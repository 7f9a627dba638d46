package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestProduct_RecomputeRating(t *testing.T) {
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()
	p := &Product{Rating: 4, NumReviews: 9}

	p.RecomputeRating()
	assert.Equal(t, 0, p.NumReviews)
	assert.Equal(t, 0.0, p.Rating)

	p.Reviews = []Review{{UserID: alice, Rating: 5}, {UserID: bob, Rating: 2}}
	p.RecomputeRating()
	assert.Equal(t, 2, p.NumReviews)
	assert.Equal(t, 3.5, p.Rating)

	assert.True(t, p.ReviewedBy(alice))
	assert.False(t, p.ReviewedBy(primitive.NewObjectID()))
}
