package model

import "time"

// QueuedJob is a delayed notification-creation job. A job is keyed by its
// natural key (orderId+platform within a business); at most one non-cancelled
// job may exist per key. Jobs are immutable once fired.
//
// Active is a schema-level discriminator backing that invariant: true while
// the job is pending or fired, NULL once cancelled. The unique index on
// (business_id, natural_key, active) rejects a second live row for the same
// key even when two enqueues race, while any number of cancelled rows (NULL
// never collides) can accumulate for it.
type QueuedJob struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	BusinessID   int64      `json:"business_id" gorm:"uniqueIndex:uniq_live_job"`
	NaturalKey   string     `json:"natural_key" gorm:"size:128;uniqueIndex:uniq_live_job"`
	Active       *bool      `json:"-" gorm:"uniqueIndex:uniq_live_job"`
	Payload      string     `json:"payload" gorm:"type:text"`
	Status       string     `json:"status" gorm:"size:16;index"`
	ScheduledAt  time.Time  `json:"scheduled_at" gorm:"index"`
	CancelReason string     `json:"cancel_reason" gorm:"size:255"`
	CancelledAt  *time.Time `json:"cancelled_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobActive is the live-row marker for the uniq_live_job index.
func JobActive() *bool {
	active := true
	return &active
}

const (
	JobPending   = "pending"
	JobFired     = "fired"
	JobCancelled = "cancelled"
)

// JobNaturalKey builds the dedup key for an order on a platform.
func JobNaturalKey(orderID, platform string) string {
	return orderID + ":" + platform
}
