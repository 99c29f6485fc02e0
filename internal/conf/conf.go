// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the top-level configuration of the TripWatch service.
type Bootstrap struct {
	Server    *Server
	Data      *Data
	Monitor   *Monitor
	Providers []*Provider
	Notify    *Notify
	Log       *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

// Server_HTTP holds HTTP server configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Server_GRPC holds gRPC server configuration.
type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database holds relational database configuration.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis holds Redis configuration.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Monitor holds the coordinator loop configuration.
// Threshold values are deliberately configurable rather than compiled in;
// their defaults match the values the admin dashboard was tuned against.
type Monitor struct {
	// Interval between monitoring cycles.
	Interval *durationpb.Duration
	// ActionTimeout bounds a single recovery action execution.
	ActionTimeout *durationpb.Duration
	// QuotaWarningPercent triggers a failover action (severity high).
	QuotaWarningPercent float64
	// QuotaCriticalPercent escalates failover to critical and forces the
	// circuit breaker toward open.
	QuotaCriticalPercent float64
	// BreakerRecoveryPercent is the usage level below which a half-open
	// breaker may close again.
	BreakerRecoveryPercent float64
	// ErrorRateThreshold is the per-provider error rate (0..1) above which
	// an open breaker emits a circuit_break action.
	ErrorRateThreshold float64
	// AvailabilityFloor is the fleet-wide healthy ratio (0..1) below which
	// a system-wide restart is queued for human confirmation.
	AvailabilityFloor float64
	// HealthyLatencyMs and HealthyErrorCount bound the healthy class.
	HealthyLatencyMs  int64
	HealthyErrorCount int32
	// DegradedLatencyMs and DegradedErrorCount bound the degraded class.
	DegradedLatencyMs  int64
	DegradedErrorCount int32
	// ProbeRatePerSecond caps outbound probe requests across all providers.
	ProbeRatePerSecond float64
	// ProbeTimeout bounds a single provider probe request.
	ProbeTimeout *durationpb.Duration
	// StuckBookingAge is how long a booking may stay pending before the
	// fix_stuck_bookings action expires it.
	StuckBookingAge *durationpb.Duration
}

// Provider describes one external travel-supplier integration.
type Provider struct {
	// Name is the stable provider key, e.g. "amadeus" or "hotelbeds".
	Name string
	// BaseUrl is the root of the supplier API.
	BaseUrl string `mapstructure:"base_url"`
	// HealthPath is appended to BaseUrl for synthetic probes.
	HealthPath string `mapstructure:"health_path"`
	// ProxyUrl optionally routes probe traffic through a SOCKS5 or HTTP proxy.
	ProxyUrl string `mapstructure:"proxy_url"`
	// QuotaLimit is the supplier's request allowance per tracking window.
	QuotaLimit int64 `mapstructure:"quota_limit"`
	// Enabled providers are probed and evaluated each cycle.
	Enabled bool
}

// Notify holds escalation webhook configuration.
type Notify struct {
	WebhookUrl string `mapstructure:"webhook_url"`
	Timeout    *durationpb.Duration
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string `mapstructure:"output_file"`
}
