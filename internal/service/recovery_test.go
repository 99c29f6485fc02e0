package service

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"TripWatch/internal/biz"
	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeHealthRepo is an in-memory HealthRepo.
type fakeHealthRepo struct {
	rows []*model.ProviderHealth
}

func (f *fakeHealthRepo) Upsert(ctx context.Context, h *model.ProviderHealth) error { return nil }
func (f *fakeHealthRepo) Get(ctx context.Context, provider string) (*model.ProviderHealth, error) {
	return nil, nil
}
func (f *fakeHealthRepo) List(ctx context.Context) ([]*model.ProviderHealth, error) {
	return f.rows, nil
}
func (f *fakeHealthRepo) ResetDegraded(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeHealthRepo) IncrementProbeError(ctx context.Context, provider string) (int32, error) {
	return 1, nil
}
func (f *fakeHealthRepo) GetProbeErrors(ctx context.Context, provider string) (int32, error) {
	return 0, nil
}
func (f *fakeHealthRepo) ResetProbeErrors(ctx context.Context, provider string) error { return nil }

// fakeQuotaRepo records usage increments.
type fakeQuotaRepo struct {
	usage map[string]int64
}

func (f *fakeQuotaRepo) IncrementUsage(ctx context.Context, provider string, n int64) (int64, error) {
	if f.usage == nil {
		f.usage = make(map[string]int64)
	}
	f.usage[provider] += n
	return f.usage[provider], nil
}
func (f *fakeQuotaRepo) GetUsage(ctx context.Context, provider string) (int64, error) {
	return f.usage[provider], nil
}
func (f *fakeQuotaRepo) UpsertQuota(ctx context.Context, q *model.ProviderQuota) error { return nil }
func (f *fakeQuotaRepo) GetQuota(ctx context.Context, provider string) (*model.ProviderQuota, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeQuotaRepo) ListQuotas(ctx context.Context) ([]*model.ProviderQuota, error) {
	return nil, nil
}
func (f *fakeQuotaRepo) TrySetHalfOpen(ctx context.Context, provider string) (bool, error) {
	return false, nil
}
func (f *fakeQuotaRepo) IsHalfOpen(ctx context.Context, provider string) (bool, error) {
	return false, nil
}
func (f *fakeQuotaRepo) ResetBreaker(ctx context.Context, provider string) error { return nil }

// fakeQueueRepo is an in-memory ActionQueueRepo.
type fakeQueueRepo struct{}

func (f *fakeQueueRepo) Enqueue(ctx context.Context, a *model.EmittedAction) (int64, error) {
	return 1, nil
}
func (f *fakeQueueRepo) Get(ctx context.Context, id int64) (*model.EmittedAction, error) {
	return nil, nil
}
func (f *fakeQueueRepo) ListPending(ctx context.Context) ([]*model.EmittedAction, error) {
	return nil, nil
}
func (f *fakeQueueRepo) MarkExecuted(ctx context.Context, id int64) error { return nil }

// fakeLogRepo swallows audit entries.
type fakeLogRepo struct{}

func (f *fakeLogRepo) Append(ctx context.Context, entry *model.RecoveryLogEntry) {}
func (f *fakeLogRepo) ListRecent(ctx context.Context, limit int) ([]*model.RecoveryLogEntry, error) {
	return nil, nil
}
func (f *fakeLogRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeNotifier swallows events.
type fakeNotifier struct{}

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, event *model.EscalationEvent) error {
	return nil
}
func (f *fakeNotifier) NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error {
	return nil
}
func (f *fakeNotifier) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	return nil
}

func setupService(t *testing.T, health *fakeHealthRepo, quotaRepo *fakeQuotaRepo) *RecoveryService {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)

	prober := biz.NewProberUsecase(health, nil, nil, logger)
	quota := biz.NewQuotaUsecase(quotaRepo, nil, nil, &fakeNotifier{}, logger)
	monitor := biz.NewMonitorUsecase(prober, quota, nil, &fakeQueueRepo{}, &fakeLogRepo{}, &fakeNotifier{}, nil, logger)

	return NewRecoveryService(prober, quota, nil, monitor, logger)
}

// Both timeout spellings on the wire resolve to the executor's duration
// override, with the documented timeout field winning over timeoutMs.
func TestExecuteRequest_TimeoutBinding(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected time.Duration
	}{
		{"timeout field", `{"action":"clear_cache","timeout":1500}`, 1500 * time.Millisecond},
		{"timeoutMs alias", `{"action":"clear_cache","timeoutMs":900}`, 900 * time.Millisecond},
		{"timeout wins over alias", `{"action":"clear_cache","timeout":1500,"timeoutMs":900}`, 1500 * time.Millisecond},
		{"absent leaves executor default", `{"action":"clear_cache"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ExecuteRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			r := req.recoveryRequest()
			assert.Equal(t, model.ActionName("clear_cache"), r.Action)
			assert.Equal(t, tt.expected, r.Timeout)
		})
	}
}

func TestRecordUsage_Validation(t *testing.T) {
	svc := setupService(t, &fakeHealthRepo{}, &fakeQuotaRepo{})

	_, err := svc.RecordUsage(context.Background(), &UsageRequest{Provider: "", Units: 10})
	assert.Error(t, err)

	_, err = svc.RecordUsage(context.Background(), &UsageRequest{Provider: "amadeus", Units: 0})
	assert.Error(t, err)

	_, err = svc.RecordUsage(context.Background(), &UsageRequest{Provider: "amadeus", Units: -5})
	assert.Error(t, err)
}

func TestRecordUsage_Accumulates(t *testing.T) {
	repo := &fakeQuotaRepo{}
	svc := setupService(t, &fakeHealthRepo{}, repo)

	reply, err := svc.RecordUsage(context.Background(), &UsageRequest{Provider: "amadeus", Units: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(100), reply.Usage)

	reply, err = svc.RecordUsage(context.Background(), &UsageRequest{Provider: "amadeus", Units: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(150), reply.Usage)
}

func TestListProviderHealth(t *testing.T) {
	health := &fakeHealthRepo{rows: []*model.ProviderHealth{
		{Provider: "amadeus", Status: model.HealthHealthy},
		{Provider: "sabre", Status: model.HealthDegraded},
	}}
	svc := setupService(t, health, &fakeQuotaRepo{})

	reply, err := svc.ListProviderHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, reply.Providers, 2)
	assert.Equal(t, "amadeus", reply.Providers[0].Provider)
}

func TestMonitorStatus_NotRunning(t *testing.T) {
	svc := setupService(t, &fakeHealthRepo{}, &fakeQuotaRepo{})

	status := svc.MonitorStatus(context.Background())
	assert.False(t, status.Running)
	assert.Equal(t, int64(0), status.Cycles)
}

func TestStartStopMonitor(t *testing.T) {
	svc := setupService(t, &fakeHealthRepo{}, &fakeQuotaRepo{})

	reply, err := svc.StartMonitor(context.Background())
	require.NoError(t, err)
	assert.True(t, reply.Success)

	// Starting twice is refused.
	_, err = svc.StartMonitor(context.Background())
	assert.Error(t, err)

	reply, err = svc.StopMonitor(context.Background())
	require.NoError(t, err)
	assert.True(t, reply.Success)

	_, err = svc.StopMonitor(context.Background())
	assert.Error(t, err)
}
