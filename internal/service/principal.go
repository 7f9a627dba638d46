package service

import "go.mongodb.org/mongo-driver/bson/primitive"

// Principal is the authenticated caller. Services take it explicitly and
// never read request state of their own.
type Principal struct {
	UserID   primitive.ObjectID
	Username string
	IsAdmin  bool
}

func (p Principal) CanAccess(owner primitive.ObjectID) bool {
	return p.IsAdmin || p.UserID == owner
}
