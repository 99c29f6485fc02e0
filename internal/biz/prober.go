package biz

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"
	"TripWatch/internal/observability"
	"TripWatch/pkg/httpclient"
	pkglog "TripWatch/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/time/rate"
)

// defaults applied when the monitor config leaves a threshold unset.
const (
	defaultProbeTimeout       = 5 * time.Second
	defaultProbeRate          = 5.0
	defaultHealthyLatencyMs   = 1000
	defaultHealthyErrorCount  = 2
	defaultDegradedLatencyMs  = 3000
	defaultDegradedErrorCount = 5
)

// HealthThresholds are the classification bounds for probe outcomes.
type HealthThresholds struct {
	HealthyLatencyMs   int64
	HealthyErrorCount  int32
	DegradedLatencyMs  int64
	DegradedErrorCount int32
}

// ProberUsecase issues synthetic health probes against every enabled
// provider and persists the classified outcome. Probes are real HTTP
// requests to each supplier's health endpoint, rate limited as a group so a
// long provider list cannot burst against sandbox environments.
type ProberUsecase struct {
	repo       HealthRepo
	providers  []*conf.Provider
	clients    map[string]*http.Client
	limiter    *rate.Limiter
	thresholds HealthThresholds
	logger     *pkglog.LogHelper
}

// NewProberUsecase creates a new prober use case. Providers with invalid
// proxy configuration fall back to a direct client with a warning instead of
// failing startup.
func NewProberUsecase(repo HealthRepo, mc *conf.Monitor, providers []*conf.Provider, logger log.Logger) *ProberUsecase {
	helper := pkglog.NewLogHelper(logger)

	timeout := defaultProbeTimeout
	probeRate := defaultProbeRate
	thresholds := HealthThresholds{
		HealthyLatencyMs:   defaultHealthyLatencyMs,
		HealthyErrorCount:  defaultHealthyErrorCount,
		DegradedLatencyMs:  defaultDegradedLatencyMs,
		DegradedErrorCount: defaultDegradedErrorCount,
	}
	if mc != nil {
		if mc.ProbeTimeout != nil {
			timeout = mc.ProbeTimeout.AsDuration()
		}
		if mc.ProbeRatePerSecond > 0 {
			probeRate = mc.ProbeRatePerSecond
		}
		if mc.HealthyLatencyMs > 0 {
			thresholds.HealthyLatencyMs = mc.HealthyLatencyMs
		}
		if mc.HealthyErrorCount > 0 {
			thresholds.HealthyErrorCount = mc.HealthyErrorCount
		}
		if mc.DegradedLatencyMs > 0 {
			thresholds.DegradedLatencyMs = mc.DegradedLatencyMs
		}
		if mc.DegradedErrorCount > 0 {
			thresholds.DegradedErrorCount = mc.DegradedErrorCount
		}
	}

	clients := make(map[string]*http.Client, len(providers))
	for _, p := range providers {
		client, err := httpclient.New(p.ProxyUrl, timeout)
		if err != nil {
			helper.Warnw("invalid proxy for provider, probing directly",
				"provider", p.Name, "error", err)
			client = &http.Client{Timeout: timeout}
		}
		clients[p.Name] = client
	}

	return &ProberUsecase{
		repo:       repo,
		providers:  providers,
		clients:    clients,
		limiter:    rate.NewLimiter(rate.Limit(probeRate), 1),
		thresholds: thresholds,
		logger:     helper,
	}
}

// Classify maps a probe measurement to a health status. The classification
// is a pure function of latency and the rolling error count, so the same
// inputs always produce the same status.
func Classify(responseTimeMs int64, errorCount int32, t HealthThresholds) model.HealthStatus {
	if responseTimeMs < t.HealthyLatencyMs && errorCount <= t.HealthyErrorCount {
		return model.HealthHealthy
	}
	if responseTimeMs < t.DegradedLatencyMs && errorCount <= t.DegradedErrorCount {
		return model.HealthDegraded
	}
	return model.HealthUnhealthy
}

// Thresholds returns the active classification bounds.
func (uc *ProberUsecase) Thresholds() HealthThresholds {
	return uc.thresholds
}

// ProbeAll probes every enabled provider concurrently and returns the
// classified outcomes. One provider failing, timing out, or panicking does
// not disturb the others; its outcome simply reports unhealthy.
func (uc *ProberUsecase) ProbeAll(ctx context.Context) ([]*model.ProviderHealth, error) {
	enabled := make([]*conf.Provider, 0, len(uc.providers))
	for _, p := range uc.providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		return nil, nil
	}

	results := make([]*model.ProviderHealth, len(enabled))
	var wg sync.WaitGroup
	for i, p := range enabled {
		wg.Add(1)
		go func(idx int, prov *conf.Provider) {
			defer wg.Done()
			results[idx] = uc.probeOne(ctx, prov)
		}(i, p)
	}
	wg.Wait()

	for _, h := range results {
		if err := uc.repo.Upsert(ctx, h); err != nil {
			uc.logger.Warnw("failed to persist probe outcome",
				"provider", h.Provider, "error", err)
		}
	}

	return results, nil
}

// ListHealth returns the persisted health rows.
func (uc *ProberUsecase) ListHealth(ctx context.Context) ([]*model.ProviderHealth, error) {
	return uc.repo.List(ctx)
}

// ProbeOne probes a single provider by name.
func (uc *ProberUsecase) ProbeOne(ctx context.Context, provider string) (*model.ProviderHealth, error) {
	for _, p := range uc.providers {
		if p.Name == provider {
			h := uc.probeOne(ctx, p)
			if err := uc.repo.Upsert(ctx, h); err != nil {
				uc.logger.Warnw("failed to persist probe outcome",
					"provider", h.Provider, "error", err)
			}
			return h, nil
		}
	}
	return nil, fmt.Errorf("unknown provider: %s", provider)
}

// probeOne issues one health request and classifies the outcome.
func (uc *ProberUsecase) probeOne(ctx context.Context, p *conf.Provider) (result *model.ProviderHealth) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Errorw("probe panicked", "provider", p.Name, "panic", r)
			result = &model.ProviderHealth{
				Provider:    p.Name,
				Status:      model.HealthUnhealthy,
				LastChecked: time.Now(),
			}
		}
	}()

	if err := uc.limiter.Wait(ctx); err != nil {
		return uc.failedProbe(ctx, p, 0, fmt.Errorf("probe rate wait: %w", err))
	}

	url := probeURL(p)
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return uc.failedProbe(ctx, p, 0, err)
	}

	resp, err := uc.clients[p.Name].Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return uc.failedProbe(ctx, p, elapsed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return uc.failedProbe(ctx, p, elapsed, fmt.Errorf("health endpoint returned status %d", resp.StatusCode))
	}

	// A success does not wipe the rolling error window; recent failures keep
	// weighing on the classification until the window expires on its own.
	errorCount, err := uc.repo.GetProbeErrors(ctx, p.Name)
	if err != nil {
		uc.logger.Warnw("failed to read probe errors (degraded mode)",
			"provider", p.Name, "error", err)
		errorCount = 0
	}

	h := &model.ProviderHealth{
		Provider:     p.Name,
		Status:       Classify(elapsed, errorCount, uc.thresholds),
		ResponseTime: elapsed,
		ErrorCount:   errorCount,
		LastChecked:  time.Now(),
	}

	observability.ProbeDuration.WithLabelValues(p.Name).Observe(float64(elapsed) / 1000)
	observability.ProviderHealthStatus.WithLabelValues(p.Name).Set(observability.HealthGaugeValue(string(h.Status)))

	uc.logger.Probe("provider probed",
		"provider", p.Name,
		"status", h.Status,
		"response_time_ms", elapsed)
	return h
}

// failedProbe records one probe failure and classifies with the bumped
// error count. Redis being down degrades to counting this failure alone.
func (uc *ProberUsecase) failedProbe(ctx context.Context, p *conf.Provider, elapsedMs int64, cause error) *model.ProviderHealth {
	errorCount, err := uc.repo.IncrementProbeError(ctx, p.Name)
	if err != nil {
		uc.logger.Warnw("failed to count probe error (degraded mode)",
			"provider", p.Name, "error", err)
		errorCount = 1
	}

	// A refused or timed-out probe has no meaningful latency; classify it
	// past the degraded bound so the error count decides.
	if elapsedMs == 0 {
		elapsedMs = uc.thresholds.DegradedLatencyMs
	}

	h := &model.ProviderHealth{
		Provider:     p.Name,
		Status:       Classify(elapsedMs, errorCount, uc.thresholds),
		ResponseTime: elapsedMs,
		ErrorCount:   errorCount,
		LastChecked:  time.Now(),
	}

	observability.ProbeErrors.WithLabelValues(p.Name).Inc()
	observability.ProviderHealthStatus.WithLabelValues(p.Name).Set(observability.HealthGaugeValue(string(h.Status)))

	uc.logger.Probe("provider probe failed",
		"provider", p.Name,
		"status", h.Status,
		"error_count", errorCount,
		"error", cause)
	return h
}

func probeURL(p *conf.Provider) string {
	base := strings.TrimRight(p.BaseUrl, "/")
	path := p.HealthPath
	if path == "" {
		path = "/health"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
