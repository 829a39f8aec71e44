// Package config loads engine settings from flags, SPINTA_* environment
// variables and an optional config file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/inspect"
	"github.com/04d4/spinta/internal/storage"
)

// EnvPrefix prefixes every environment variable: SPINTA_WORKERS,
// SPINTA_S3_ENDPOINT and so on.
const EnvPrefix = "SPINTA"

// Keys.
const (
	KeyWorkers          = "workers"
	KeyResourceWorkers  = "resource_workers"
	KeyCallTimeout      = "call_timeout"
	KeyConnectTimeout   = "connect_timeout"
	KeyGracePeriod      = "grace_period"
	KeySampleSize       = "sample_size"
	KeyFailureThreshold = "failure_threshold"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyS3Endpoint       = "s3.endpoint"
	KeyS3Region         = "s3.region"
	KeyS3AccessKey      = "s3.access_key"
	KeyS3SecretKey      = "s3.secret_key"
	KeyS3UseSSL         = "s3.use_ssl"
)

// DefaultSampleSize is the number of documents sampled per collection.
const DefaultSampleSize = 100

// Config holds engine settings.
type Config struct {
	Workers          int
	ResourceWorkers  int
	CallTimeout      time.Duration
	ConnectTimeout   time.Duration
	GracePeriod      time.Duration
	SampleSize       int
	FailureThreshold float64

	LogLevel  logrus.Level
	LogFormat string // "text" or "json"

	S3 storage.S3Config
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyWorkers, inspect.DefaultWorkers)
	v.SetDefault(KeyResourceWorkers, inspect.DefaultResourceWorkers)
	v.SetDefault(KeyCallTimeout, inspect.DefaultCallTimeout)
	v.SetDefault(KeyConnectTimeout, inspect.DefaultConnectTimeout)
	v.SetDefault(KeyGracePeriod, inspect.DefaultGracePeriod)
	v.SetDefault(KeySampleSize, DefaultSampleSize)
	v.SetDefault(KeyFailureThreshold, inspect.DefaultFailureThreshold)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyS3Region, "us-east-1")
	v.SetDefault(KeyS3UseSSL, false)
	// AutomaticEnv only sees keys that have a default.
	v.SetDefault(KeyS3Endpoint, "")
	v.SetDefault(KeyS3AccessKey, "")
	v.SetDefault(KeyS3SecretKey, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults, reading file when it is not
// empty.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load decodes and checks the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Workers:          v.GetInt(KeyWorkers),
		ResourceWorkers:  v.GetInt(KeyResourceWorkers),
		CallTimeout:      v.GetDuration(KeyCallTimeout),
		ConnectTimeout:   v.GetDuration(KeyConnectTimeout),
		GracePeriod:      v.GetDuration(KeyGracePeriod),
		SampleSize:       v.GetInt(KeySampleSize),
		FailureThreshold: v.GetFloat64(KeyFailureThreshold),
		LogFormat:        strings.ToLower(v.GetString(KeyLogFormat)),
		S3: storage.S3Config{
			Endpoint:        v.GetString(KeyS3Endpoint),
			Region:          v.GetString(KeyS3Region),
			UseSSL:          v.GetBool(KeyS3UseSSL),
			AccessKeyID:     v.GetString(KeyS3AccessKey),
			SecretAccessKey: v.GetString(KeyS3SecretKey),
		},
	}

	lvl, err := logrus.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	cfg.LogLevel = lvl

	switch {
	case cfg.Workers <= 0:
		return nil, fmt.Errorf("%s must be positive, got %d", KeyWorkers, cfg.Workers)
	case cfg.ResourceWorkers <= 0:
		return nil, fmt.Errorf("%s must be positive, got %d", KeyResourceWorkers, cfg.ResourceWorkers)
	case cfg.CallTimeout <= 0, cfg.ConnectTimeout <= 0, cfg.GracePeriod <= 0:
		return nil, fmt.Errorf("timeouts must be positive")
	case cfg.SampleSize <= 0:
		return nil, fmt.Errorf("%s must be positive, got %d", KeySampleSize, cfg.SampleSize)
	case cfg.FailureThreshold <= 0 || cfg.FailureThreshold > 1:
		return nil, fmt.Errorf("%s must be in (0, 1], got %g", KeyFailureThreshold, cfg.FailureThreshold)
	case cfg.LogFormat != "text" && cfg.LogFormat != "json":
		return nil, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, cfg.LogFormat)
	}
	return cfg, nil
}

// InspectOptions maps the settings onto inspector options.
func (c *Config) InspectOptions(log logrus.FieldLogger) inspect.Options {
	return inspect.Options{
		Workers:          c.Workers,
		ResourceWorkers:  c.ResourceWorkers,
		CallTimeout:      c.CallTimeout,
		ConnectTimeout:   c.ConnectTimeout,
		GracePeriod:      c.GracePeriod,
		FailureThreshold: c.FailureThreshold,
		Logger:           log,
	}
}

// TargetOptions are the connector options added to every target.
func (c *Config) TargetOptions() map[string]string {
	return map[string]string{endpoint.OptionSampleSize: strconv.Itoa(c.SampleSize)}
}

// RemoteStore returns the configured MinIO/S3 store, or nil when no
// endpoint is set.
func (c *Config) RemoteStore() (storage.ObjectStore, error) {
	if c.S3.Endpoint == "" {
		return nil, nil
	}
	client, err := storage.NewS3Client(c.S3)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Logger builds a logger from the log settings.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}
