package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	switch cfg.GeofenceStore {
	case "file", "postgres", "redis":
	default:
		errs = append(errs, ValidationError{
			Field:   "GEOFENCE_STORE",
			Message: fmt.Sprintf("must be 'file', 'postgres' or 'redis', got %q", cfg.GeofenceStore),
		})
	}

	// The postgres store needs a connection string.
	if cfg.GeofenceStore == "postgres" && cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required when GEOFENCE_STORE=postgres",
		})
	}

	if cfg.GeofenceStore == "redis" && cfg.RedisAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "REDIS_ADDR",
			Message: "required when GEOFENCE_STORE=redis",
		})
	}

	errs = append(errs, validateDuration("TICK_INTERVAL", cfg.TickIntervalStr)...)
	errs = append(errs, validateDuration("DEFAULT_DWELL", cfg.DefaultDwellStr)...)
	errs = append(errs, validateDuration("SERVICE_TIME", cfg.ServiceTimeStr)...)
	errs = append(errs, validateDuration("WEBHOOK_TIMEOUT", cfg.WebhookTimeoutStr)...)
	errs = append(errs, validateDuration("CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr)...)
	errs = append(errs, validateDuration("ANALYTICS_WINDOW", cfg.AnalyticsWindowStr)...)
	errs = append(errs, validateDuration("ANALYTICS_RETENTION", cfg.AnalyticsRetentionStr)...)
	errs = append(errs, validateDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr)...)
	errs = append(errs, validateDuration("EXECUTOR_DRAIN_TIMEOUT", cfg.ExecutorDrainTimeoutStr)...)

	if cfg.AvgSpeedKmh <= 0 {
		errs = append(errs, ValidationError{
			Field:   "AVG_SPEED_KMH",
			Message: "must be positive",
		})
	}

	if cfg.EventBusBufferSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "EVENTBUS_BUFFER_SIZE",
			Message: "must be positive",
		})
	}

	// Webhook targets share one secret; warn loudly if targets are set without it.
	if cfg.WebhookSecret == "" && (cfg.OrderStatusURL != "" || cfg.NotifyURL != "" || cfg.PhotoRequestURL != "") {
		errs = append(errs, ValidationError{
			Field:   "WEBHOOK_SECRET",
			Message: "required when webhook target URLs are configured",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		}}
	}
	if d <= 0 {
		return ValidationErrors{{
			Field:   field,
			Message: "must be positive",
		}}
	}
	return nil
}
