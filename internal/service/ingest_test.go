package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"notiflow/internal/model"
	"notiflow/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type ingestFixture struct {
	ingest   *IngestService
	messages *repository.MessageRepository
	jobs     *repository.JobRepository
	queue    *QueueService
	business *model.Business
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	db := newTestDB(t)
	messages := repository.NewMessageRepository(db)
	jobs := repository.NewJobRepository(db)
	contacts := repository.NewContactRepository(db)
	queue := NewQueueService(db, jobs, testObserver())

	// Unreachable redis: dedup fails open, which these tests rely on.
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  0,
	})

	return &ingestFixture{
		ingest:   NewIngestService(messages, contacts, queue, rdb, testObserver(), time.Hour),
		messages: messages,
		jobs:     jobs,
		queue:    queue,
		business: &model.Business{ID: 1, Name: "acme", Enabled: true},
	}
}

func (f *ingestFixture) seedSent(t *testing.T, externalID string) int64 {
	t.Helper()
	msg := &model.OutboxMessage{
		PublicID:   uuid.New().String(),
		BusinessID: 1,
		Channel:    model.ChannelSMS,
		Recipient:  "+1555",
		Content:    "hi",
		Status:     model.StatusPending,
	}
	if err := f.messages.Create(context.Background(), msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.messages.MarkSent(context.Background(), msg.ID, externalID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	return msg.ID
}

func (f *ingestFixture) status(t *testing.T, id int64) int {
	t.Helper()
	msg, err := f.messages.GetByID(context.Background(), id)
	if err != nil || msg == nil {
		t.Fatalf("load %d: %v", id, err)
	}
	return msg.Status
}

func TestProviderEventAdvancesStatus(t *testing.T) {
	f := newIngestFixture(t)
	id := f.seedSent(t, "ext-1")
	ctx := context.Background()

	result, err := f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.delivered", ExternalMessageID: "ext-1"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("result = %s, want applied", result)
	}
	if got := f.status(t, id); got != model.StatusDelivered {
		t.Fatalf("status = %s, want delivered", model.StatusName(got))
	}
}

// A late "sent" after "delivered" must not regress the row, and a duplicate
// "delivered" is equally inert.
func TestProviderEventMonotonic(t *testing.T) {
	f := newIngestFixture(t)
	id := f.seedSent(t, "ext-1")
	ctx := context.Background()

	f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.delivered", ExternalMessageID: "ext-1"})

	for _, event := range []string{"message.sent", "message.delivered"} {
		result, err := f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: event, ExternalMessageID: "ext-1"})
		if err != nil {
			t.Fatalf("handle %s: %v", event, err)
		}
		if result != ResultStale {
			t.Fatalf("%s result = %s, want stale", event, result)
		}
	}
	if got := f.status(t, id); got != model.StatusDelivered {
		t.Fatalf("status regressed to %s", model.StatusName(got))
	}
}

func TestProviderEventBounceIsAbsorbing(t *testing.T) {
	f := newIngestFixture(t)
	id := f.seedSent(t, "ext-1")
	ctx := context.Background()

	// Bounce beats even a click...
	f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.clicked", ExternalMessageID: "ext-1"})
	result, _ := f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.bounced", ExternalMessageID: "ext-1", Reason: "mailbox full"})
	if result != ResultApplied {
		t.Fatalf("bounce over clicked: result = %s, want applied", result)
	}
	if got := f.status(t, id); got != model.StatusBounced {
		t.Fatalf("status = %s, want bounced", model.StatusName(got))
	}

	// ...but not an already-terminal row.
	result, _ = f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.failed", ExternalMessageID: "ext-1"})
	if result != ResultStale {
		t.Fatalf("failed over bounced: result = %s, want stale", result)
	}
	if got := f.status(t, id); got != model.StatusBounced {
		t.Fatalf("terminal status overwritten: %s", model.StatusName(got))
	}
}

func TestProviderEventDeliveredAfterBounceIgnored(t *testing.T) {
	f := newIngestFixture(t)
	id := f.seedSent(t, "ext-1")
	ctx := context.Background()

	f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.bounced", ExternalMessageID: "ext-1"})
	result, _ := f.ingest.HandleProviderEvent(ctx, ProviderEvent{Event: "message.delivered", ExternalMessageID: "ext-1"})
	if result != ResultStale {
		t.Fatalf("result = %s, want stale", result)
	}
	if got := f.status(t, id); got != model.StatusBounced {
		t.Fatalf("status = %s, want bounced", model.StatusName(got))
	}
}

func TestProviderEventUnknownMessageIsNoop(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.ingest.HandleProviderEvent(context.Background(), ProviderEvent{Event: "message.delivered", ExternalMessageID: "never-seen"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultNoop {
		t.Fatalf("result = %s, want noop", result)
	}
}

func TestProviderEventUnknownNameIgnored(t *testing.T) {
	f := newIngestFixture(t)
	f.seedSent(t, "ext-1")

	result, err := f.ingest.HandleProviderEvent(context.Background(), ProviderEvent{Event: "message.sniffed", ExternalMessageID: "ext-1"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultIgnored {
		t.Fatalf("result = %s, want ignored", result)
	}
}

func TestOrderCompletedEnqueuesOnce(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	ev := OrderEvent{
		Event:    EventOrderCompleted,
		OrderID:  "order-1",
		Platform: "shopify",
		Customer: CustomerInfo{Name: "Ada", Phone: "+1555", Email: "ada@example.com"},
	}

	result, err := f.ingest.HandleOrderEvent(ctx, f.business, ev)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultEnqueued {
		t.Fatalf("result = %s, want enqueued", result)
	}

	result, err = f.ingest.HandleOrderEvent(ctx, f.business, ev)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if result != ResultDuplicate {
		t.Fatalf("redelivery result = %s, want duplicate", result)
	}

	due, _ := f.jobs.FetchDue(ctx, time.Now().Add(2*time.Hour), 10)
	if len(due) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(due))
	}
	if due[0].NaturalKey != "order-1:shopify" {
		t.Fatalf("natural key = %s", due[0].NaturalKey)
	}
}

func TestOrderCompletedPrefersSMS(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.ingest.HandleOrderEvent(ctx, f.business, OrderEvent{
		Event: EventOrderCompleted, OrderID: "order-2", Platform: "etsy",
		Customer: CustomerInfo{Phone: "+1555", Email: "a@b.c"},
	})
	f.ingest.HandleOrderEvent(ctx, f.business, OrderEvent{
		Event: EventOrderCompleted, OrderID: "order-3", Platform: "etsy",
		Customer: CustomerInfo{Email: "a@b.c"},
	})

	due, _ := f.jobs.FetchDue(ctx, time.Now().Add(2*time.Hour), 10)
	if len(due) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(due))
	}
	channels := map[string]string{}
	for _, job := range due {
		var payload JobPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		channels[job.NaturalKey] = payload.Channel
	}
	if channels["order-2:etsy"] != model.ChannelSMS {
		t.Fatal("phone present must route to sms")
	}
	if channels["order-3:etsy"] != model.ChannelEmail {
		t.Fatal("email-only must route to email")
	}
}

func TestOrderCompletedWithoutContactSkipped(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.ingest.HandleOrderEvent(context.Background(), f.business, OrderEvent{
		Event: EventOrderCompleted, OrderID: "order-4", Platform: "etsy",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultSkipped {
		t.Fatalf("result = %s, want skipped", result)
	}
}

func TestOrderCancelledStopsPendingJob(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.ingest.HandleOrderEvent(ctx, f.business, OrderEvent{
		Event: EventOrderCompleted, OrderID: "order-5", Platform: "shopify",
		Customer: CustomerInfo{Phone: "+1555"},
	})

	result, err := f.ingest.HandleOrderEvent(ctx, f.business, OrderEvent{
		Event: EventOrderCancelled, OrderID: "order-5", Platform: "shopify",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result != ResultCancelled {
		t.Fatalf("result = %s, want cancelled", result)
	}

	// Cancelling again finds nothing pending.
	result, _ = f.ingest.HandleOrderEvent(ctx, f.business, OrderEvent{
		Event: EventOrderCancelled, OrderID: "order-5", Platform: "shopify",
	})
	if result != ResultNoop {
		t.Fatalf("second cancel result = %s, want noop", result)
	}
}

func TestOrderEventUnknownNameIgnored(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.ingest.HandleOrderEvent(context.Background(), f.business, OrderEvent{
		Event: "order.gift_wrapped", OrderID: "order-6", Platform: "etsy",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultIgnored {
		t.Fatalf("result = %s, want ignored", result)
	}
}

func TestDedupFailsOpenWithoutRedis(t *testing.T) {
	f := newIngestFixture(t)

	if f.ingest.Dedup(context.Background(), "smsgw", "whk-1") {
		t.Fatal("dedup must fail open when redis is down")
	}
}
