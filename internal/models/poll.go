package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PollStatus represents the lifecycle state of a poll
type PollStatus string

const (
	PollStatusDraft     PollStatus = "draft"
	PollStatusActive    PollStatus = "active"
	PollStatusClosed    PollStatus = "closed"
	PollStatusResolved  PollStatus = "resolved"
	PollStatusCancelled PollStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed out of the status
func (s PollStatus) IsTerminal() bool {
	return s == PollStatusResolved || s == PollStatusCancelled
}

// Valid reports whether s is a known poll status
func (s PollStatus) Valid() bool {
	switch s {
	case PollStatusDraft, PollStatusActive, PollStatusClosed, PollStatusResolved, PollStatusCancelled:
		return true
	}
	return false
}

// Option limits for a single poll
const (
	MinPollOptions = 2
	MaxPollOptions = 29
)

// PollOption is one selectable outcome of a poll together with its pool totals
type PollOption struct {
	ID          primitive.ObjectID `bson:"id" json:"id"`
	Text        string             `bson:"text" json:"text"`
	TotalAmount int64              `bson:"totalAmount" json:"totalAmount"`
	StakeCount  int64              `bson:"stakeCount" json:"stakeCount"`
}

// SettlementKind identifies which settlement is running against a closed poll
type SettlementKind string

const (
	SettlementResolve SettlementKind = "resolve"
	SettlementCancel  SettlementKind = "cancel"
)

// SettlementMarker is stored on a poll while its payouts or refunds are being applied.
// A retried settlement must match the recorded kind and winning option.
//
// The fee and no-winner policy in force when the settlement started are pinned on the
// marker so a resumed settlement pays every stake under the same terms.
type SettlementMarker struct {
	Kind                  SettlementKind      `bson:"kind" json:"kind"`
	WinningOptionID       *primitive.ObjectID `bson:"winningOptionId,omitempty" json:"winningOptionId,omitempty"`
	PlatformFeePercentage float64             `bson:"platformFeePercentage" json:"platformFeePercentage"`
	NoWinnerPolicy        NoWinnerPolicy      `bson:"noWinnerPolicy,omitempty" json:"noWinnerPolicy,omitempty"`
	StartedBy             string              `bson:"startedBy" json:"startedBy"`
	StartedAt             time.Time           `bson:"startedAt" json:"startedAt"`
}

// Poll represents a prediction poll users can stake on
type Poll struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Title             string              `bson:"title" json:"title"`
	Description       string              `bson:"description" json:"description"`
	Category          string              `bson:"category" json:"category"`
	ShowName          string              `bson:"showName,omitempty" json:"showName,omitempty"`
	Season            string              `bson:"season,omitempty" json:"season,omitempty"`
	Options           []PollOption        `bson:"options" json:"options"`
	Status            PollStatus          `bson:"status" json:"status"`
	EndTime           *time.Time          `bson:"endTime,omitempty" json:"endTime"`
	TotalStakeAmount  int64               `bson:"totalStakeAmount" json:"totalStakeAmount"`
	TotalParticipants int64               `bson:"totalParticipants" json:"totalParticipants"`
	WinningOptionID   *primitive.ObjectID `bson:"winningOptionId,omitempty" json:"winningOptionId,omitempty"`
	Settlement        *SettlementMarker   `bson:"settlement,omitempty" json:"settlement,omitempty"`
	CreatedBy         string              `bson:"createdBy" json:"createdBy"`
	ClosedAt          *time.Time          `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
	ResolvedAt        *time.Time          `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	CancelledAt       *time.Time          `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Option returns the option with the given id, if present
func (p *Poll) Option(id primitive.ObjectID) (*PollOption, bool) {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i], true
		}
	}
	return nil, false
}

// AcceptsStakes reports whether the poll is open for new stakes at the given instant.
// Polls without an end time stay open until closed manually.
func (p *Poll) AcceptsStakes(now time.Time) bool {
	if p.Status != PollStatusActive {
		return false
	}
	return p.EndTime == nil || now.Before(*p.EndTime)
}

// CreatePollRequest is the payload accepted by POST /polls
type CreatePollRequest struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"max=2000"`
	Category    string     `json:"category" binding:"required,max=50"`
	Options     []string   `json:"options" binding:"required,min=2,max=29,uniqueoptions,dive,required,max=200"`
	EndTime     *time.Time `json:"endTime"`
	ShowName    string     `json:"showName"`
	Season      string     `json:"season"`
}

// ResolvePollRequest is the payload accepted by POST /polls/:id/resolve
type ResolvePollRequest struct {
	CorrectOptionID string `json:"correctOptionId" binding:"required"`
}

// PollStateChange describes a conditional lifecycle update applied by the repository
type PollStateChange struct {
	Status          PollStatus
	WinningOptionID *primitive.ObjectID
	// Settlement is written when SetSettlement is true; a nil value clears the marker.
	Settlement    *SettlementMarker
	SetSettlement bool
	ClosedAt      *time.Time
	ResolvedAt    *time.Time
	CancelledAt   *time.Time
}

// PollFilter narrows poll listings
type PollFilter struct {
	Search   string
	Status   PollStatus
	Category string
}

// OptionStats describes one option in GET /public/polls/:id/stats
type OptionStats struct {
	OptionID    primitive.ObjectID `json:"optionId"`
	Text        string             `json:"text"`
	StakeCount  int64              `json:"stakeCount"`
	TotalAmount int64              `json:"totalAmount"`
	Percentage  string             `json:"percentage"`
	Odds        string             `json:"odds"`
}

// PollStats is the response of GET /public/polls/:id/stats
type PollStats struct {
	PollID            primitive.ObjectID `json:"pollId"`
	Status            PollStatus         `json:"status"`
	TotalStakeAmount  int64              `json:"totalStakeAmount"`
	TotalParticipants int64              `json:"totalParticipants"`
	Options           []OptionStats      `json:"options"`
}
