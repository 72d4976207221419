package repository

import (
	"context"
	"errors"
	"time"

	"notiflow/internal/model"

	"gorm.io/gorm"
)

// rankExpr maps the stored status to its monotonic rank in SQL so every status
// write can be a single conditional UPDATE. Bounced (6) ranks with failed (5).
const rankExpr = "(CASE WHEN status = 6 THEN 5 ELSE status END)"

type MessageFilter struct {
	BusinessID int64
	Channel    string
	Status     *int
	Limit      int
	Offset     int
}

type MessageInterface interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetByID(ctx context.Context, id int64) (*model.OutboxMessage, error)
	GetByPublicID(ctx context.Context, publicID string) (*model.OutboxMessage, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.OutboxMessage, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64, externalID string) (bool, error)
	ScheduleRetry(ctx context.Context, id int64, newCount int, retryAt time.Time, errMsg string) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error)
	ApplyStatus(ctx context.Context, id int64, status int, errMsg string) (bool, error)
	List(ctx context.Context, filter MessageFilter) ([]model.OutboxMessage, error)
	CountPending(ctx context.Context) (int64, error)
	WithTx(tx *gorm.DB) MessageInterface
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.OutboxMessage, error) {
	var msg model.OutboxMessage
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) GetByPublicID(ctx context.Context, publicID string) (*model.OutboxMessage, error) {
	var msg model.OutboxMessage
	if err := r.db.WithContext(ctx).First(&msg, "public_id = ?", publicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) GetByExternalID(ctx context.Context, externalID string) (*model.OutboxMessage, error) {
	var msg model.OutboxMessage
	if err := r.db.WithContext(ctx).First(&msg, "external_message_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// FetchDue returns pending messages whose retry window has opened, oldest first.
func (r *MessageRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.OutboxMessage, error) {
	var msgs []model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND (retry_at IS NULL OR retry_at <= ?)", model.StatusPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkSent transitions pending → sent and records the provider id. Returns
// false when the row was no longer pending (e.g. a webhook got there first).
func (r *MessageRepository) MarkSent(ctx context.Context, id int64, externalID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]any{
			"status":              model.StatusSent,
			"external_message_id": externalID,
			"retry_at":            nil,
			"error_message":       "",
		})
	return res.RowsAffected > 0, res.Error
}

// ScheduleRetry bumps the retry counter and sets the next attempt time in one
// conditional write. The retry_count guard makes concurrent dispatcher ticks
// (or a racing webhook failure write) lose cleanly instead of double-counting.
func (r *MessageRepository) ScheduleRetry(ctx context.Context, id int64, newCount int, retryAt time.Time, errMsg string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ? AND retry_count = ?", id, model.StatusPending, newCount-1).
		Updates(map[string]any{
			"retry_count":   newCount,
			"retry_at":      retryAt,
			"error_message": errMsg,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id = ? AND "+rankExpr+" < ?", id, model.StatusRank(model.StatusFailed)).
		Updates(map[string]any{
			"status":        model.StatusFailed,
			"error_message": errMsg,
		})
	return res.RowsAffected > 0, res.Error
}

// ApplyStatus advances the status only if the new rank is strictly higher than
// the stored one. A single atomic conditional update: concurrent writers can
// never regress the row, and duplicate or out-of-order events affect 0 rows.
func (r *MessageRepository) ApplyStatus(ctx context.Context, id int64, status int, errMsg string) (bool, error) {
	updates := map[string]any{"status": status}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	res := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id = ? AND "+rankExpr+" < ?", id, model.StatusRank(status)).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *MessageRepository) List(ctx context.Context, filter MessageFilter) ([]model.OutboxMessage, error) {
	q := r.db.WithContext(ctx).Model(&model.OutboxMessage{})
	if filter.BusinessID != 0 {
		q = q.Where("business_id = ?", filter.BusinessID)
	}
	if filter.Channel != "" {
		q = q.Where("channel = ?", filter.Channel)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []model.OutboxMessage
	if err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("status = ?", model.StatusPending).Count(&n).Error
	return n, err
}

func (r *MessageRepository) WithTx(tx *gorm.DB) MessageInterface {
	return &MessageRepository{db: tx}
}
