package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the dispatchd application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	// GeofenceStore selects the durable backend: "file", "postgres" or "redis".
	GeofenceStore string `json:"geofence_store"`
	GeofenceFile  string `json:"geofence_file"`
	DatabaseURL   string `json:"database_url,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`

	HTTPAddr string `json:"http_addr"`

	TickIntervalStr string        `json:"tick_interval"`
	TickInterval    time.Duration `json:"-"`

	DefaultDwellStr string        `json:"default_dwell"`
	DefaultDwell    time.Duration `json:"-"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	AvgSpeedKmh    float64       `json:"avg_speed_kmh"`
	ServiceTimeStr string        `json:"service_time"`
	ServiceTime    time.Duration `json:"-"`

	MQTTBroker   string `json:"mqtt_broker,omitempty"`
	MQTTClientID string `json:"mqtt_client_id"`
	MQTTTopic    string `json:"mqtt_topic"`

	RabbitMQURL string `json:"rabbitmq_url,omitempty"`

	OrderStatusURL    string        `json:"order_status_url,omitempty"`
	NotifyURL         string        `json:"notify_url,omitempty"`
	PhotoRequestURL   string        `json:"photo_request_url,omitempty"`
	WebhookSecret     string        `json:"webhook_secret,omitempty"`
	WebhookTimeoutStr string        `json:"webhook_timeout"`
	WebhookTimeout    time.Duration `json:"-"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
	CircuitBreakerCooldown    time.Duration `json:"-"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	AnalyticsWindowStr    string        `json:"analytics_window"`
	AnalyticsWindow       time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`
	AnalyticsRetention    time.Duration `json:"-"`

	HTTPShutdownTimeoutStr  string        `json:"http_shutdown_timeout"`
	HTTPShutdownTimeout     time.Duration `json:"-"`
	ExecutorDrainTimeoutStr string        `json:"executor_drain_timeout"`
	ExecutorDrainTimeout    time.Duration `json:"-"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		GeofenceStore:             os.Getenv("GEOFENCE_STORE"),
		GeofenceFile:              os.Getenv("GEOFENCE_FILE"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		TickIntervalStr:           os.Getenv("TICK_INTERVAL"),
		DefaultDwellStr:           os.Getenv("DEFAULT_DWELL"),
		ServiceTimeStr:            os.Getenv("SERVICE_TIME"),
		MQTTBroker:                os.Getenv("MQTT_BROKER"),
		MQTTClientID:              os.Getenv("MQTT_CLIENT_ID"),
		MQTTTopic:                 os.Getenv("MQTT_TOPIC"),
		RabbitMQURL:               os.Getenv("RABBITMQ_URL"),
		OrderStatusURL:            os.Getenv("ORDER_STATUS_URL"),
		NotifyURL:                 os.Getenv("NOTIFY_URL"),
		PhotoRequestURL:           os.Getenv("PHOTO_REQUEST_URL"),
		WebhookSecret:             os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeoutStr:         os.Getenv("WEBHOOK_TIMEOUT"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		AnalyticsWindowStr:        os.Getenv("ANALYTICS_WINDOW"),
		AnalyticsRetentionStr:     os.Getenv("ANALYTICS_RETENTION"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		ExecutorDrainTimeoutStr:   os.Getenv("EXECUTOR_DRAIN_TIMEOUT"),
	}

	if bufStr := os.Getenv("EVENTBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := strconv.Atoi(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	if speedStr := os.Getenv("AVG_SPEED_KMH"); speedStr != "" {
		if f, err := strconv.ParseFloat(speedStr, 64); err == nil && f > 0 {
			cfg.AvgSpeedKmh = f
		} else {
			log.Printf("config: invalid AVG_SPEED_KMH %q (must be a positive number), using default 40", speedStr)
		}
	}
	if cfg.AvgSpeedKmh == 0 {
		cfg.AvgSpeedKmh = 40
	}

	// Zero is a valid setting here: it disables the breaker. Only an
	// unset or unparseable value falls back to the default.
	cfg.CircuitBreakerThreshold = 5
	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := strconv.Atoi(cbThreshStr); err == nil && n >= 0 {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}

	// Support platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}

	if cfg.GeofenceStore == "" {
		cfg.GeofenceStore = "file"
	}
	if cfg.GeofenceFile == "" {
		cfg.GeofenceFile = "data/geofences.json"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "5s"
	}
	if cfg.DefaultDwellStr == "" {
		cfg.DefaultDwellStr = "60s"
	}
	if cfg.ServiceTimeStr == "" {
		cfg.ServiceTimeStr = "30m"
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "dispatchd-monitor"
	}
	if cfg.MQTTTopic == "" {
		cfg.MQTTTopic = "/fleet/vehicle/+/location"
	}
	if cfg.WebhookTimeoutStr == "" {
		cfg.WebhookTimeoutStr = "30s"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.AnalyticsWindowStr == "" {
		cfg.AnalyticsWindowStr = "1m"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "24h"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.ExecutorDrainTimeoutStr == "" {
		cfg.ExecutorDrainTimeoutStr = "30s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.DefaultDwellStr); err == nil {
		cfg.DefaultDwell = d
	}
	if d, err := time.ParseDuration(cfg.ServiceTimeStr); err == nil {
		cfg.ServiceTime = d
	}
	if d, err := time.ParseDuration(cfg.WebhookTimeoutStr); err == nil {
		cfg.WebhookTimeout = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsWindowStr); err == nil {
		cfg.AnalyticsWindow = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ExecutorDrainTimeoutStr); err == nil {
		cfg.ExecutorDrainTimeout = d
	}

	return cfg
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	if masked.WebhookSecret != "" {
		masked.WebhookSecret = "***"
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
