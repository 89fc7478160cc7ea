package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Wallet holds a user's balances. Balances are integer minor units.
type Wallet struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID           string             `bson:"userId" json:"userId"`
	AvailableBalance int64              `bson:"availableBalance" json:"availableBalance"`
	BonusBalance     int64              `bson:"bonusBalance" json:"bonusBalance"`
	IsLocked         bool               `bson:"isLocked" json:"isLocked"`
	LockedReason     string             `bson:"lockedReason,omitempty" json:"lockedReason,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// WalletFilter narrows wallet listings in the admin area
type WalletFilter struct {
	UserID   string
	IsLocked *bool
}

// LockWalletRequest is the payload accepted by PUT /admin/users/:id/lock
type LockWalletRequest struct {
	Reason string `json:"reason"`
}
