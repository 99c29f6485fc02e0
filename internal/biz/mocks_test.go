package biz

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"TripWatch/internal/model"
	pkglog "TripWatch/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/mock"
)

// newTestHelper builds a LogHelper writing to stdout for action tests.
func newTestHelper() *pkglog.LogHelper {
	return pkglog.NewLogHelper(log.NewStdLogger(os.Stdout))
}

// MockHealthRepo is a mock implementation of HealthRepo for testing.
type MockHealthRepo struct {
	mock.Mock
}

func (m *MockHealthRepo) Upsert(ctx context.Context, h *model.ProviderHealth) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHealthRepo) Get(ctx context.Context, provider string) (*model.ProviderHealth, error) {
	args := m.Called(ctx, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderHealth), args.Error(1)
}

func (m *MockHealthRepo) List(ctx context.Context) ([]*model.ProviderHealth, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ProviderHealth), args.Error(1)
}

func (m *MockHealthRepo) ResetDegraded(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockHealthRepo) IncrementProbeError(ctx context.Context, provider string) (int32, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(int32), args.Error(1)
}

func (m *MockHealthRepo) GetProbeErrors(ctx context.Context, provider string) (int32, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(int32), args.Error(1)
}

func (m *MockHealthRepo) ResetProbeErrors(ctx context.Context, provider string) error {
	args := m.Called(ctx, provider)
	return args.Error(0)
}

// MockQuotaRepo is a mock implementation of QuotaRepo for testing.
type MockQuotaRepo struct {
	mock.Mock
}

func (m *MockQuotaRepo) IncrementUsage(ctx context.Context, provider string, n int64) (int64, error) {
	args := m.Called(ctx, provider, n)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuotaRepo) GetUsage(ctx context.Context, provider string) (int64, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuotaRepo) UpsertQuota(ctx context.Context, q *model.ProviderQuota) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *MockQuotaRepo) GetQuota(ctx context.Context, provider string) (*model.ProviderQuota, error) {
	args := m.Called(ctx, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderQuota), args.Error(1)
}

func (m *MockQuotaRepo) ListQuotas(ctx context.Context) ([]*model.ProviderQuota, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ProviderQuota), args.Error(1)
}

func (m *MockQuotaRepo) TrySetHalfOpen(ctx context.Context, provider string) (bool, error) {
	args := m.Called(ctx, provider)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuotaRepo) IsHalfOpen(ctx context.Context, provider string) (bool, error) {
	args := m.Called(ctx, provider)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuotaRepo) ResetBreaker(ctx context.Context, provider string) error {
	args := m.Called(ctx, provider)
	return args.Error(0)
}

// MockBookingRepo is a mock implementation of BookingRepo for testing.
type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) CountStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBookingRepo) ExpireStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockMaintenanceRepo is a mock implementation of MaintenanceRepo for testing.
type MockMaintenanceRepo struct {
	mock.Mock
}

func (m *MockMaintenanceRepo) OptimizeTables(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockActionQueueRepo is a mock implementation of ActionQueueRepo for testing.
type MockActionQueueRepo struct {
	mock.Mock
}

func (m *MockActionQueueRepo) Enqueue(ctx context.Context, a *model.EmittedAction) (int64, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockActionQueueRepo) Get(ctx context.Context, id int64) (*model.EmittedAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EmittedAction), args.Error(1)
}

func (m *MockActionQueueRepo) ListPending(ctx context.Context) ([]*model.EmittedAction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.EmittedAction), args.Error(1)
}

func (m *MockActionQueueRepo) MarkExecuted(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier for testing.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyEscalation(ctx context.Context, event *model.EscalationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockNotifier) NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockNotifier) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingLogRepo captures appended audit entries for assertions.
// Append carries no error return, so a plain recorder beats a mock here.
type recordingLogRepo struct {
	mu      sync.Mutex
	entries []*model.RecoveryLogEntry
}

func (r *recordingLogRepo) Append(ctx context.Context, entry *model.RecoveryLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingLogRepo) ListRecent(ctx context.Context, limit int) ([]*model.RecoveryLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, nil
}

func (r *recordingLogRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *recordingLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// fakeRotationRepo is an in-memory RotationRepo.
type fakeRotationRepo struct {
	mu    sync.Mutex
	order []string
}

func (f *fakeRotationRepo) GetOrder(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...), nil
}

func (f *fakeRotationRepo) SetOrder(ctx context.Context, order []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append([]string(nil), order...)
	return nil
}

// captureLogger records every log line so tests can assert on them.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Log(level log.Level, keyvals ...interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprint(keyvals...))
	return nil
}

func (l *captureLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
