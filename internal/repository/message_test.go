package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"notiflow/internal/model"
	"notiflow/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.InitLogger("test")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.OutboxMessage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var seedSeq atomic.Int64

func seedMessage(t *testing.T, repo *MessageRepository, status int) int64 {
	t.Helper()
	msg := &model.OutboxMessage{
		PublicID:   fmt.Sprintf("pub-%d", seedSeq.Add(1)),
		BusinessID: 1,
		Channel:    model.ChannelSMS,
		Recipient:  "+1555",
		Content:    "hi",
		Status:     status,
	}
	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	return msg.ID
}

// The full transition matrix: a write lands only when the new rank is strictly
// above the stored one. Failed and bounced share a rank, so neither can
// overwrite the other.
func TestApplyStatusRankMatrix(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	statuses := []int{
		model.StatusPending, model.StatusSent, model.StatusDelivered,
		model.StatusOpened, model.StatusClicked, model.StatusFailed, model.StatusBounced,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			id := seedMessage(t, repo, from)
			applied, err := repo.ApplyStatus(ctx, id, to, "")
			if err != nil {
				t.Fatalf("%s→%s: %v", model.StatusName(from), model.StatusName(to), err)
			}
			wantApplied := model.StatusRank(to) > model.StatusRank(from)
			if applied != wantApplied {
				t.Errorf("%s→%s: applied = %v, want %v",
					model.StatusName(from), model.StatusName(to), applied, wantApplied)
			}

			msg, _ := repo.GetByID(ctx, id)
			wantStatus := from
			if wantApplied {
				wantStatus = to
			}
			if msg.Status != wantStatus {
				t.Errorf("%s→%s: stored status = %s, want %s",
					model.StatusName(from), model.StatusName(to),
					model.StatusName(msg.Status), model.StatusName(wantStatus))
			}
		}
	}
}

func TestApplyStatusRecordsReason(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	id := seedMessage(t, repo, model.StatusSent)

	if _, err := repo.ApplyStatus(ctx, id, model.StatusBounced, "mailbox full"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	msg, _ := repo.GetByID(ctx, id)
	if msg.ErrorMessage != "mailbox full" {
		t.Fatalf("error_message = %q", msg.ErrorMessage)
	}
}

func TestMarkSentOnlyFromPending(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	id := seedMessage(t, repo, model.StatusPending)
	ok, err := repo.MarkSent(ctx, id, "ext-1")
	if err != nil || !ok {
		t.Fatalf("mark sent: ok=%v err=%v", ok, err)
	}

	// A second writer loses: the row is no longer pending.
	ok, err = repo.MarkSent(ctx, id, "ext-2")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if ok {
		t.Fatal("mark sent must be a no-op on a non-pending row")
	}
	msg, _ := repo.GetByID(ctx, id)
	if msg.ExternalMessageID != "ext-1" {
		t.Fatalf("external id overwritten: %s", msg.ExternalMessageID)
	}
}

func TestScheduleRetryGuardsCounter(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	id := seedMessage(t, repo, model.StatusPending)
	at := time.Now().Add(time.Minute)

	ok, err := repo.ScheduleRetry(ctx, id, 1, at, "boom")
	if err != nil || !ok {
		t.Fatalf("first retry: ok=%v err=%v", ok, err)
	}
	// Replaying the same transition affects nothing.
	ok, _ = repo.ScheduleRetry(ctx, id, 1, at, "boom")
	if ok {
		t.Fatal("duplicate retry write must lose")
	}
	ok, _ = repo.ScheduleRetry(ctx, id, 2, at, "boom again")
	if !ok {
		t.Fatal("next counter value must win")
	}
}

func TestFetchDueWindowAndOrder(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	makeMsg := func(createdAt time.Time, retryAt *time.Time, status int) int64 {
		msg := &model.OutboxMessage{
			PublicID: fmt.Sprintf("pub-%d", seedSeq.Add(1)), BusinessID: 1,
			Channel: model.ChannelSMS, Recipient: "+1555", Content: "hi",
			Status: status, RetryAt: retryAt, CreatedAt: createdAt,
		}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("create: %v", err)
		}
		return msg.ID
	}

	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)
	newer := makeMsg(now.Add(-time.Minute), nil, model.StatusPending)
	older := makeMsg(now.Add(-time.Hour), &past, model.StatusPending)
	makeMsg(now.Add(-time.Hour), &future, model.StatusPending) // window closed
	makeMsg(now.Add(-time.Hour), nil, model.StatusSent)        // already sent

	due, err := repo.FetchDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("fetch due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due messages, got %d", len(due))
	}
	if due[0].ID != older || due[1].ID != newer {
		t.Fatalf("due order wrong: got %d,%d want %d,%d", due[0].ID, due[1].ID, older, newer)
	}
}

func TestListFilters(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	seedMessage(t, repo, model.StatusPending)
	failedID := seedMessage(t, repo, model.StatusFailed)

	failed := model.StatusFailed
	msgs, err := repo.List(ctx, MessageFilter{BusinessID: 1, Status: &failed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != failedID {
		t.Fatalf("filter by status returned %d rows", len(msgs))
	}

	msgs, _ = repo.List(ctx, MessageFilter{Channel: model.ChannelEmail})
	if len(msgs) != 0 {
		t.Fatalf("filter by channel returned %d rows, want 0", len(msgs))
	}
}
