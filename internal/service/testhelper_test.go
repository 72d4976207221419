package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"notiflow/internal/metrics"
	"notiflow/internal/model"
	"notiflow/internal/provider"
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
	// One in-memory database per test; a second connection would see an
	// empty schema.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.Business{},
		&model.OrderContact{},
		&model.QueuedJob{},
		&model.OutboxMessage{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeAdapter scripts send outcomes in order and records the messages it saw.
type fakeAdapter struct {
	name    string
	channel string

	mu      sync.Mutex
	results []provider.SendResult
	errs    []error
	sent    []model.OutboxMessage
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Channel() string { return f.channel }

func (f *fakeAdapter) Send(_ context.Context, msg *model.OutboxMessage) (provider.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *msg)
	idx := len(f.sent) - 1
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	res := provider.SendResult{Success: true, ExternalID: fmt.Sprintf("ext-%d", idx)}
	if idx < len(f.results) {
		res = f.results[idx]
	}
	return res, err
}

func (f *fakeAdapter) GetStatus(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeAdapter) VerifySignature(string, string, string, []byte) bool {
	return true
}

func (f *fakeAdapter) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// openGate never delays; tests for throttling live in internal/ratelimit.
type openGate struct{}

func (openGate) Acquire(context.Context, string) error { return nil }

func testObserver() metrics.DeliveryObserver { return metrics.NewNoopObserver() }
