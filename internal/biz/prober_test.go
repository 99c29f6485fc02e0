package biz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func defaultThresholds() HealthThresholds {
	return HealthThresholds{
		HealthyLatencyMs:   1000,
		HealthyErrorCount:  2,
		DegradedLatencyMs:  3000,
		DegradedErrorCount: 5,
	}
}

// Classification is a pure function: same inputs, same status.
func TestClassify(t *testing.T) {
	th := defaultThresholds()

	tests := []struct {
		name       string
		latencyMs  int64
		errorCount int32
		expected   model.HealthStatus
	}{
		{"fast and clean", 120, 0, model.HealthHealthy},
		{"fast with tolerable errors", 500, 2, model.HealthHealthy},
		{"at healthy latency bound", 1000, 0, model.HealthDegraded},
		{"slow but usable", 2500, 4, model.HealthDegraded},
		{"fast but erroring", 200, 3, model.HealthDegraded},
		{"at degraded latency bound", 3000, 0, model.HealthUnhealthy},
		{"too many errors", 500, 6, model.HealthUnhealthy},
		{"slow and erroring", 5000, 10, model.HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.latencyMs, tt.errorCount, th)
			assert.Equal(t, tt.expected, got)

			// Determinism: a second call with the same inputs agrees.
			assert.Equal(t, got, Classify(tt.latencyMs, tt.errorCount, th))
		})
	}
}

func TestProbeURL(t *testing.T) {
	tests := []struct {
		baseURL    string
		healthPath string
		expected   string
	}{
		{"https://api.amadeus.test", "/v1/health", "https://api.amadeus.test/v1/health"},
		{"https://api.amadeus.test/", "v1/health", "https://api.amadeus.test/v1/health"},
		{"https://api.hotelbeds.test", "", "https://api.hotelbeds.test/health"},
	}

	for _, tt := range tests {
		got := probeURL(&conf.Provider{BaseUrl: tt.baseURL, HealthPath: tt.healthPath})
		assert.Equal(t, tt.expected, got)
	}
}

// A live probe against a healthy endpoint classifies healthy and persists
// the outcome.
func TestProbeAll_HealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := new(MockHealthRepo)
	repo.On("GetProbeErrors", mock.Anything, "amadeus").Return(int32(0), nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	providers := []*conf.Provider{
		{Name: "amadeus", BaseUrl: srv.URL, HealthPath: "/health", Enabled: true},
	}
	uc := NewProberUsecase(repo, nil, providers, log.NewStdLogger(os.Stdout))

	healths, err := uc.ProbeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, healths, 1)

	assert.Equal(t, "amadeus", healths[0].Provider)
	assert.Equal(t, model.HealthHealthy, healths[0].Status)
	assert.GreaterOrEqual(t, healths[0].ResponseTime, int64(0))
	repo.AssertCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// A 5xx answer counts as a probe failure and bumps the error window.
func TestProbeAll_FailingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := new(MockHealthRepo)
	repo.On("IncrementProbeError", mock.Anything, "hotelbeds").Return(int32(6), nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	providers := []*conf.Provider{
		{Name: "hotelbeds", BaseUrl: srv.URL, Enabled: true},
	}
	uc := NewProberUsecase(repo, nil, providers, log.NewStdLogger(os.Stdout))

	healths, err := uc.ProbeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, healths, 1)

	assert.Equal(t, model.HealthUnhealthy, healths[0].Status)
	assert.Equal(t, int32(6), healths[0].ErrorCount)
	repo.AssertCalled(t, "IncrementProbeError", mock.Anything, "hotelbeds")
}

// An unreachable provider does not disturb the probing of the others.
func TestProbeAll_ProviderIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := new(MockHealthRepo)
	repo.On("GetProbeErrors", mock.Anything, "amadeus").Return(int32(0), nil)
	repo.On("IncrementProbeError", mock.Anything, "sabre").Return(int32(1), nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	providers := []*conf.Provider{
		{Name: "amadeus", BaseUrl: srv.URL, Enabled: true},
		{Name: "sabre", BaseUrl: "http://127.0.0.1:1", Enabled: true},
	}
	mc := &conf.Monitor{ProbeRatePerSecond: 100}
	uc := NewProberUsecase(repo, mc, providers, log.NewStdLogger(os.Stdout))

	healths, err := uc.ProbeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, healths, 2)

	byName := map[string]*model.ProviderHealth{}
	for _, h := range healths {
		byName[h.Provider] = h
	}
	assert.Equal(t, model.HealthHealthy, byName["amadeus"].Status)
	assert.NotEqual(t, model.HealthHealthy, byName["sabre"].Status)
}

// Disabled providers are skipped entirely.
func TestProbeAll_DisabledProvidersSkipped(t *testing.T) {
	repo := new(MockHealthRepo)

	providers := []*conf.Provider{
		{Name: "legacy", BaseUrl: "http://127.0.0.1:1", Enabled: false},
	}
	uc := NewProberUsecase(repo, nil, providers, log.NewStdLogger(os.Stdout))

	healths, err := uc.ProbeAll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, healths)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// ProbeOne rejects names outside the configured provider list.
func TestProbeOne_UnknownProvider(t *testing.T) {
	repo := new(MockHealthRepo)
	uc := NewProberUsecase(repo, nil, nil, log.NewStdLogger(os.Stdout))

	_, err := uc.ProbeOne(context.Background(), "nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

// A slow endpoint classifies degraded by latency alone.
func TestProbeAll_SlowEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := new(MockHealthRepo)
	repo.On("GetProbeErrors", mock.Anything, "slowpoke").Return(int32(0), nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	providers := []*conf.Provider{
		{Name: "slowpoke", BaseUrl: srv.URL, Enabled: true},
	}
	// Threshold far below the handler's sleep forces the degraded class.
	mc := &conf.Monitor{HealthyLatencyMs: 10, DegradedLatencyMs: 10_000}
	uc := NewProberUsecase(repo, mc, providers, log.NewStdLogger(os.Stdout))

	healths, err := uc.ProbeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, healths, 1)
	assert.Equal(t, model.HealthDegraded, healths[0].Status)
}
