package model

import "time"

// OutboxMessage is one outbound notification and its delivery lifecycle.
// Rows are created by the job sweeper or the direct send API, advanced by the
// dispatcher and by provider webhooks, and never deleted here.
type OutboxMessage struct {
	ID                int64      `json:"id" gorm:"primaryKey"`
	PublicID          string     `json:"public_id" gorm:"size:36;uniqueIndex"`
	BusinessID        int64      `json:"business_id" gorm:"index"`
	Channel           string     `json:"channel" gorm:"size:16;index"`
	Recipient         string     `json:"recipient" gorm:"size:255"`
	Subject           string     `json:"subject" gorm:"size:255"`
	Content           string     `json:"content" gorm:"type:text"`
	OrderID           string     `json:"order_id" gorm:"size:64;index"`
	Platform          string     `json:"platform" gorm:"size:32"`
	Status            int        `json:"status" gorm:"index"`
	RetryCount        int        `json:"retry_count" gorm:"default:0"`
	RetryAt           *time.Time `json:"retry_at" gorm:"index"`
	ExternalMessageID string     `json:"external_message_id" gorm:"size:128;index"`
	ErrorMessage      string     `json:"error_message" gorm:"size:1024"`
	CreatedAt         time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

const (
	StatusPending   = 0
	StatusSent      = 1
	StatusDelivered = 2
	StatusOpened    = 3
	StatusClicked   = 4
	StatusFailed    = 5
	StatusBounced   = 6
)

// StatusRank orders statuses for monotonic updates. Failed and bounced share
// the top rank: both are absorbing, and neither replaces the other.
func StatusRank(status int) int {
	if status == StatusBounced {
		return StatusFailed
	}
	return status
}

var statusNames = map[int]string{
	StatusPending:   "pending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusOpened:    "opened",
	StatusClicked:   "clicked",
	StatusFailed:    "failed",
	StatusBounced:   "bounced",
}

func StatusName(status int) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "unknown"
}

func StatusByName(name string) (int, bool) {
	for status, n := range statusNames {
		if n == name {
			return status, true
		}
	}
	return 0, false
}
