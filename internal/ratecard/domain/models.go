// Package domain contains persistence models for billing rates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RateCard is a time-bounded hourly billing rate. A rate may be scoped to a
// case, an activity code, both, or neither; resolution picks the most
// specific active card. Cards are never mutated in place: superseding rates
// get a new card with a later EffectiveFrom, retiring ones get EffectiveTo.
type RateCard struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID       snowflake.ID  `gorm:"not null;index:idx_rate_cards_lookup,priority:1" json:"user_id"`
	CaseID       *snowflake.ID `gorm:"index:idx_rate_cards_lookup,priority:2" json:"case_id,omitempty"`
	ActivityCode *string       `gorm:"type:text;index:idx_rate_cards_lookup,priority:3" json:"activity_code,omitempty"`

	RatePerHour   float64    `gorm:"not null" json:"rate_per_hour"`
	EffectiveFrom time.Time  `gorm:"not null;index" json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RateCard) TableName() string { return "rate_cards" }

// ActiveAt reports whether the card's effective window covers the instant.
func (r RateCard) ActiveAt(at time.Time) bool {
	if r.EffectiveFrom.After(at) {
		return false
	}
	return r.EffectiveTo == nil || !r.EffectiveTo.Before(at)
}
