package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User owns the cart. Version is bumped on every cart save and guards
// against concurrent whole-cart replacement.
type User struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Username          string               `bson:"username" json:"username"`
	Email             string               `bson:"email" json:"email"`
	Password          string               `bson:"password" json:"-"`
	IsAdmin           bool                 `bson:"isAdmin" json:"isAdmin"`
	FavouriteProducts []primitive.ObjectID `bson:"favouriteProducts" json:"favouriteProducts"`
	ReviewedProducts  []primitive.ObjectID `bson:"reviewedProducts" json:"reviewedProducts"`
	Cart              Cart                 `bson:"cart" json:"cart"`
	Version           int64                `bson:"version" json:"-"`
	CreatedAt         time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt" json:"updatedAt"`
}
