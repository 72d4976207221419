package model

import "time"

// Business is the minimal registry entry needed to authenticate and route
// inbound order webhooks. Full account configuration lives elsewhere.
type Business struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"size:255"`
	WebhookSecret string    `json:"-" gorm:"size:128"`
	Enabled       bool      `json:"enabled" gorm:"default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
