package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with TRIPWATCH_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or TRIPWATCH_DATA_DATABASE_SOURCE: MySQL connection string
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with TRIPWATCH_ prefix
	v.SetEnvPrefix("TRIPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without TRIPWATCH_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "TRIPWATCH_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "TRIPWATCH_DATA_REDIS_ADDR")
	_ = v.BindEnv("notify.webhook_url", "ESCALATION_WEBHOOK_URL", "TRIPWATCH_NOTIFY_WEBHOOK_URL")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Monitor: &Monitor{
			Interval:               durationpb.New(v.GetDuration("monitor.interval")),
			ActionTimeout:          durationpb.New(v.GetDuration("monitor.action_timeout")),
			QuotaWarningPercent:    v.GetFloat64("monitor.quota_warning_percent"),
			QuotaCriticalPercent:   v.GetFloat64("monitor.quota_critical_percent"),
			BreakerRecoveryPercent: v.GetFloat64("monitor.breaker_recovery_percent"),
			ErrorRateThreshold:     v.GetFloat64("monitor.error_rate_threshold"),
			AvailabilityFloor:      v.GetFloat64("monitor.availability_floor"),
			HealthyLatencyMs:       v.GetInt64("monitor.healthy_latency_ms"),
			HealthyErrorCount:      v.GetInt32("monitor.healthy_error_count"),
			DegradedLatencyMs:      v.GetInt64("monitor.degraded_latency_ms"),
			DegradedErrorCount:     v.GetInt32("monitor.degraded_error_count"),
			ProbeRatePerSecond:     v.GetFloat64("monitor.probe_rate_per_second"),
			ProbeTimeout:           durationpb.New(v.GetDuration("monitor.probe_timeout")),
			StuckBookingAge:        durationpb.New(v.GetDuration("monitor.stuck_booking_age")),
		},
		Notify: &Notify{
			WebhookUrl: v.GetString("notify.webhook_url"),
			Timeout:    durationpb.New(v.GetDuration("notify.timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Provider list comes from the config file only; there is no sane
	// environment-variable encoding for a list of structs.
	if err := v.UnmarshalKey("providers", &bc.Providers); err != nil {
		return nil, fmt.Errorf("failed to parse providers configuration: %w", err)
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 1*time.Minute)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 1*time.Minute)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Monitor defaults. The percentages mirror what the previous ops
	// runbook used; they are overridable per deployment.
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.action_timeout", 30*time.Second)
	v.SetDefault("monitor.quota_warning_percent", 90.0)
	v.SetDefault("monitor.quota_critical_percent", 95.0)
	v.SetDefault("monitor.breaker_recovery_percent", 80.0)
	v.SetDefault("monitor.error_rate_threshold", 0.5)
	v.SetDefault("monitor.availability_floor", 0.8)
	v.SetDefault("monitor.healthy_latency_ms", 1000)
	v.SetDefault("monitor.healthy_error_count", 2)
	v.SetDefault("monitor.degraded_latency_ms", 3000)
	v.SetDefault("monitor.degraded_error_count", 5)
	v.SetDefault("monitor.probe_rate_per_second", 5.0)
	v.SetDefault("monitor.probe_timeout", 5*time.Second)
	v.SetDefault("monitor.stuck_booking_age", 1*time.Hour)

	// Notify defaults: escalation webhook is optional, noop when unset.
	v.SetDefault("notify.timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or inconsistent fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	if bc.Monitor != nil {
		if bc.Monitor.QuotaWarningPercent >= bc.Monitor.QuotaCriticalPercent {
			return fmt.Errorf("monitor.quota_warning_percent (%.1f) must be below monitor.quota_critical_percent (%.1f)",
				bc.Monitor.QuotaWarningPercent, bc.Monitor.QuotaCriticalPercent)
		}
		if bc.Monitor.BreakerRecoveryPercent >= bc.Monitor.QuotaCriticalPercent {
			return fmt.Errorf("monitor.breaker_recovery_percent (%.1f) must be below monitor.quota_critical_percent (%.1f)",
				bc.Monitor.BreakerRecoveryPercent, bc.Monitor.QuotaCriticalPercent)
		}
	}

	for _, p := range bc.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers entry is missing a name")
		}
		if p.Enabled && p.BaseUrl == "" {
			return fmt.Errorf("provider %s is enabled but has no base_url", p.Name)
		}
	}

	return nil
}
