package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NoWinnerPolicy decides what happens to the pool when nobody staked on the winning option
type NoWinnerPolicy string

const (
	// NoWinnerRetain keeps the undistributed pool as platform revenue
	NoWinnerRetain NoWinnerPolicy = "retain"
	// NoWinnerRefund returns every stake in full
	NoWinnerRefund NoWinnerPolicy = "refund"
)

// PlatformSettings holds the hot-reloadable limits, fees and toggles
type PlatformSettings struct {
	ID                        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	MinStakeAmount            int64              `bson:"minStakeAmount" json:"minStakeAmount" binding:"gt=0"`
	MaxStakeAmount            int64              `bson:"maxStakeAmount" json:"maxStakeAmount" binding:"gtefield=MinStakeAmount"`
	MinWithdrawalAmount       int64              `bson:"minWithdrawalAmount" json:"minWithdrawalAmount" binding:"gt=0"`
	PlatformFeePercentage     float64            `bson:"platformFeePercentage" json:"platformFeePercentage" binding:"gte=0,lte=100"`
	WithdrawalFeePercentage   float64            `bson:"withdrawalFeePercentage" json:"withdrawalFeePercentage" binding:"gte=0,lte=100"`
	WithdrawalTransferFee     int64              `bson:"withdrawalTransferFee" json:"withdrawalTransferFee" binding:"gte=0"`
	StakingEnabled            bool               `bson:"stakingEnabled" json:"stakingEnabled"`
	WithdrawalsEnabled        bool               `bson:"withdrawalsEnabled" json:"withdrawalsEnabled"`
	RequireWithdrawalApproval bool               `bson:"requireWithdrawalApproval" json:"requireWithdrawalApproval"`
	NoWinnerPolicy            NoWinnerPolicy     `bson:"noWinnerPolicy" json:"noWinnerPolicy" binding:"omitempty,oneof=retain refund"`
	UpdatedBy                 string             `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	CreatedAt                 time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt                 time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PlatformLimits is the public subset of PlatformSettings
type PlatformLimits struct {
	MinStakeAmount          int64   `json:"minStakeAmount"`
	MaxStakeAmount          int64   `json:"maxStakeAmount"`
	MinWithdrawalAmount     int64   `json:"minWithdrawalAmount"`
	PlatformFeePercentage   float64 `json:"platformFeePercentage"`
	WithdrawalFeePercentage float64 `json:"withdrawalFeePercentage"`
	WithdrawalTransferFee   int64   `json:"withdrawalTransferFee"`
	StakingEnabled          bool    `json:"stakingEnabled"`
	WithdrawalsEnabled      bool    `json:"withdrawalsEnabled"`
}

// Limits returns the public view of the settings
func (s *PlatformSettings) Limits() PlatformLimits {
	return PlatformLimits{
		MinStakeAmount:          s.MinStakeAmount,
		MaxStakeAmount:          s.MaxStakeAmount,
		MinWithdrawalAmount:     s.MinWithdrawalAmount,
		PlatformFeePercentage:   s.PlatformFeePercentage,
		WithdrawalFeePercentage: s.WithdrawalFeePercentage,
		WithdrawalTransferFee:   s.WithdrawalTransferFee,
		StakingEnabled:          s.StakingEnabled,
		WithdrawalsEnabled:      s.WithdrawalsEnabled,
	}
}

// DefaultPlatformSettings returns the settings used when none have been stored yet
func DefaultPlatformSettings() PlatformSettings {
	return PlatformSettings{
		MinStakeAmount:          100,
		MaxStakeAmount:          1_000_000,
		MinWithdrawalAmount:     1_000,
		PlatformFeePercentage:   10,
		WithdrawalFeePercentage: 1.5,
		WithdrawalTransferFee:   50,
		StakingEnabled:          true,
		WithdrawalsEnabled:      true,
		NoWinnerPolicy:          NoWinnerRetain,
	}
}
