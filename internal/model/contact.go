package model

import "time"

// OrderContact stores the customer contact details captured from an order
// event, so the dispatcher can resolve a fallback email without calling the
// upstream platform again.
type OrderContact struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	BusinessID   int64     `json:"business_id" gorm:"index:idx_contact_order"`
	OrderID      string    `json:"order_id" gorm:"size:64;index:idx_contact_order"`
	Platform     string    `json:"platform" gorm:"size:32;index:idx_contact_order"`
	CustomerName string    `json:"customer_name" gorm:"size:255"`
	Phone        string    `json:"phone" gorm:"size:64"`
	Email        string    `json:"email" gorm:"size:255"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
