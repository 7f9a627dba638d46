package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    primitive.ObjectID `bson:"user" json:"user"`
	Name      string             `bson:"name" json:"name"`
	Rating    float64            `bson:"rating" json:"rating"`
	Comment   string             `bson:"comment" json:"comment"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// Product is the catalog record. Quantity is the stock count the cart checks
// requested quantities against.
type Product struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name         string             `bson:"name" json:"name"`
	Image        string             `bson:"image" json:"image"`
	Brand        string             `bson:"brand" json:"brand"`
	Description  string             `bson:"description" json:"description"`
	CategoryID   primitive.ObjectID `bson:"category" json:"category"`
	Price        float64            `bson:"price" json:"price"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	CountInStock int                `bson:"countInStock" json:"countInStock"`
	Reviews      []Review           `bson:"reviews" json:"reviews"`
	Rating       float64            `bson:"rating" json:"rating"`
	NumReviews   int                `bson:"numReviews" json:"numReviews"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ProductSnapshot is the denormalized copy of a product kept on a cart line.
// It is display data only: checkout always re-reads the catalog.
type ProductSnapshot struct {
	ID         primitive.ObjectID `bson:"_id" json:"_id"`
	Name       string             `bson:"name" json:"name"`
	Image      string             `bson:"image" json:"image"`
	Brand      string             `bson:"brand" json:"brand"`
	CategoryID primitive.ObjectID `bson:"category" json:"category"`
	Price      float64            `bson:"price" json:"price"`
	Stock      int                `bson:"quantity" json:"quantity"`
}

func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:         p.ID,
		Name:       p.Name,
		Image:      p.Image,
		Brand:      p.Brand,
		CategoryID: p.CategoryID,
		Price:      p.Price,
		Stock:      p.Quantity,
	}
}

// ReviewedBy reports whether userID already left a review.
func (p *Product) ReviewedBy(userID primitive.ObjectID) bool {
	for _, r := range p.Reviews {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// RecomputeRating derives Rating and NumReviews from Reviews. No reviews
// means a zero rating.
func (p *Product) RecomputeRating() {
	p.NumReviews = len(p.Reviews)
	if p.NumReviews == 0 {
		p.Rating = 0
		return
	}
	sum := 0.0
	for _, r := range p.Reviews {
		sum += r.Rating
	}
	p.Rating = sum / float64(p.NumReviews)
}
