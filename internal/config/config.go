// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jcmexdev/vendor-orchestration/internal/simulator"
	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

// Vendors holds one endpoint per vendor.
type Vendors struct {
	Fraud    vendor.Endpoint
	Tax      vendor.Endpoint
	Shipping vendor.Endpoint
	Payment  vendor.Endpoint
}

// Config is the orchestrator's configuration.
type Config struct {
	HTTPAddr string
	// DatabasePath empty keeps orders in memory.
	DatabasePath string
	// RedisAddr empty keeps the lock, callback registry and queue in process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Workers         int
	QueueCapacity   int
	LockExpiry      time.Duration
	ShutdownTimeout time.Duration
	CallbackBaseURL string
	Vendors         Vendors

	LogLevel        string
	OTelEnabled     bool
	OTelServiceName string
	OTelEndpoint    string
	OTelEnvironment string
	OTelSampleRatio float64

	// Warnings lists values that could not be parsed and were replaced by
	// their defaults. They are logged once the logger exists.
	Warnings []string
}

// Simulator is the vendor simulator's configuration.
type Simulator struct {
	Addr            string
	LogLevel        string
	OTelEnabled     bool
	OTelServiceName string
	OTelEndpoint    string
	Vendor          simulator.Config
	Warnings        []string
}

// Load reads the orchestrator's configuration.
func Load() Config {
	var e env
	cfg := Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabasePath:    getEnv("DATABASE_PATH", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         e.getInt("REDIS_DB", 0, 0),
		Workers:         e.getInt("WORKERS", 8, 1),
		QueueCapacity:   e.getInt("QUEUE_CAPACITY", 1024, 1),
		LockExpiry:      e.getDuration("LOCK_EXPIRY", 2*time.Minute),
		ShutdownTimeout: e.getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CallbackBaseURL: strings.TrimRight(getEnv("CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
		Vendors: Vendors{
			Fraud:    vendorEndpoint(vendor.NameFraud),
			Tax:      vendorEndpoint(vendor.NameTax),
			Shipping: vendorEndpoint(vendor.NameShipping),
			Payment:  vendorEndpoint(vendor.NamePayment),
		},
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OTelEnabled:     e.getBool("OTEL_ENABLED", false),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "vendor-orchestrator"),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnvironment: getEnv("OTEL_ENVIRONMENT", "local"),
		OTelSampleRatio: e.getRatio("OTEL_SAMPLE_RATIO", 1),
	}
	cfg.Warnings = e.warnings
	return cfg
}

// LoadSimulator reads the vendor simulator's configuration.
func LoadSimulator() Simulator {
	var e env
	def := simulator.DefaultConfig()
	cfg := Simulator{
		Addr:            getEnv("SIMULATOR_ADDR", ":9000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OTelEnabled:     e.getBool("OTEL_ENABLED", false),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "vendor-simulator"),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Vendor: simulator.Config{
			FailureRate:        e.getRatio("SIMULATOR_FAILURE_RATE", def.FailureRate),
			Latency:            e.getDuration("SIMULATOR_LATENCY", def.Latency),
			PaymentSuccessRate: e.getRatio("SIMULATOR_PAYMENT_SUCCESS_RATE", def.PaymentSuccessRate),
			AsyncPayments:      e.getBool("SIMULATOR_ASYNC_PAYMENTS", def.AsyncPayments),
			CallbackDelay:      e.getDuration("SIMULATOR_CALLBACK_DELAY", def.CallbackDelay),
			APIKey:             getEnv("SIMULATOR_API_KEY", def.APIKey),
		},
	}
	cfg.Warnings = e.warnings
	return cfg
}

func vendorEndpoint(name string) vendor.Endpoint {
	prefix := "VENDOR_" + strings.ToUpper(name)
	return vendor.Endpoint{
		BaseURL: strings.TrimRight(getEnv(prefix+"_BASE_URL", "http://localhost:9000/"+name+"-api"), "/"),
		APIKey:  getEnv(prefix+"_API_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// env collects a warning for every value it had to replace.
type env struct {
	warnings []string
}

func (e *env) warn(key, raw string, fallback any) {
	e.warnings = append(e.warnings, fmt.Sprintf("%s=%q is invalid, using %v", key, raw, fallback))
}

func (e *env) getInt(key string, fallback, minValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minValue {
		e.warn(key, raw, fallback)
		return fallback
	}
	return n
}

func (e *env) getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		e.warn(key, raw, fallback)
		return fallback
	}
	return d
}

func (e *env) getBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.warn(key, raw, fallback)
		return fallback
	}
	return b
}

// getRatio parses a float in [0, 1].
func (e *env) getRatio(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		e.warn(key, raw, fallback)
		return fallback
	}
	return f
}
