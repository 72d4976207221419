package repository

import (
	"context"
	"errors"

	"notiflow/internal/model"

	"gorm.io/gorm"
)

type ContactInterface interface {
	Upsert(ctx context.Context, contact *model.OrderContact) error
	GetByOrder(ctx context.Context, businessID int64, orderID, platform string) (*model.OrderContact, error)
}

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Upsert(ctx context.Context, contact *model.OrderContact) error {
	existing, err := r.GetByOrder(ctx, contact.BusinessID, contact.OrderID, contact.Platform)
	if err != nil {
		return err
	}
	if existing != nil {
		contact.ID = existing.ID
		contact.CreatedAt = existing.CreatedAt
	}
	return r.db.WithContext(ctx).Save(contact).Error
}

func (r *ContactRepository) GetByOrder(ctx context.Context, businessID int64, orderID, platform string) (*model.OrderContact, error) {
	var c model.OrderContact
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND order_id = ? AND platform = ?", businessID, orderID, platform).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
