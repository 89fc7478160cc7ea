package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StakeStatus represents the settlement state of a stake
type StakeStatus string

const (
	StakeStatusActive   StakeStatus = "active"
	StakeStatusWon      StakeStatus = "won"
	StakeStatusLost     StakeStatus = "lost"
	StakeStatusRefunded StakeStatus = "refunded"
)

// Stake is a user's single commitment of funds to one option of one poll.
// Amount and SelectedOptionID never change after creation.
type Stake struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	PollID           primitive.ObjectID `bson:"pollId" json:"pollId"`
	UserID           string             `bson:"userId" json:"userId"`
	SelectedOptionID primitive.ObjectID `bson:"selectedOptionId" json:"selectedOptionId"`
	Amount           int64              `bson:"amount" json:"amount"`
	Status           StakeStatus        `bson:"status" json:"status"`
	GrossWinnings    int64              `bson:"grossWinnings,omitempty" json:"grossWinnings,omitempty"`
	PlatformFee      int64              `bson:"platformFee,omitempty" json:"platformFee,omitempty"`
	NetWinnings      int64              `bson:"netWinnings,omitempty" json:"netWinnings,omitempty"`
	TransactionID    primitive.ObjectID `bson:"transactionId" json:"transactionId"`
	SettledAt        *time.Time         `bson:"settledAt,omitempty" json:"settledAt,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// StakeSettlement carries the outcome written onto a stake when its poll settles
type StakeSettlement struct {
	Status        StakeStatus
	GrossWinnings int64
	PlatformFee   int64
	NetWinnings   int64
	SettledAt     time.Time
}

// PlaceStakeRequest is the payload accepted by POST /stakes
type PlaceStakeRequest struct {
	PollID           string `json:"pollId" binding:"required"`
	SelectedOptionID string `json:"selectedOptionId" binding:"required"`
	Amount           int64  `json:"amount" binding:"required,gt=0"`
}

// PoolComposition is the read-only aggregate of a poll's non-refunded stakes.
// PerOptionTotal is keyed by the option id in hex.
type PoolComposition struct {
	PollID           primitive.ObjectID `json:"pollId"`
	PerOptionTotal   map[string]int64   `json:"perOptionTotal"`
	TotalPool        int64              `json:"totalPool"`
	ParticipantCount int64              `json:"participantCount"`
}

// WinningsProjection is the response of GET /public/stakes/calculate-winnings
type WinningsProjection struct {
	PollID              primitive.ObjectID `json:"pollId"`
	SelectedOptionID    primitive.ObjectID `json:"selectedOptionId"`
	Amount              int64              `json:"amount"`
	UserSharePercentage string             `json:"userSharePercentage"`
	GrossWinnings       int64              `json:"grossWinnings"`
	PlatformFee         int64              `json:"platformFee"`
	NetWinnings         int64              `json:"netWinnings"`
}
