// Package config provides configuration loading for the metrics emitter.
// It supports loading from properties/INI files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds all configuration options for the emitter.
type Config struct {
	// Vespa metrics endpoint.
	Endpoint     string
	FetchTimeout time.Duration

	// Emit behavior.
	Namespace string
	ChunkSize int

	// Sink selection: cloudwatch, otlp or kafka.
	Sink string

	// Client certificate material: none, ssm or file.
	CertSource string
	CertParam  string
	KeyParam   string
	SSMRegion  string
	CertFile   string
	KeyFile    string

	// Scheduling.
	EmitInterval time.Duration
	EmitJitter   time.Duration
	RunTimeout   time.Duration

	// Run journal.
	JournalPath string
	JournalKeep int

	// OTLP sink.
	OTLPEndpoint string
	OTLPProtocol string
	OTLPInsecure bool

	// Kafka sink.
	KafkaBrokers []string
	KafkaTopic   string

	// HTTP server.
	Port string
}

// defaultConfig returns a Config with hardcoded defaults. The certificate
// parameter names, region and chunk size reproduce the constants the emitter
// has always shipped with.
func defaultConfig() *Config {
	return &Config{
		Endpoint:     "http://localhost:8080",
		FetchTimeout: 20 * time.Second,
		Namespace:    "vespa-metrics",
		ChunkSize:    20,
		Sink:         "cloudwatch",
		CertSource:   "none",
		CertParam:    "album-recommendation-public-cert",
		KeyParam:     "album-recommendation-private-key",
		SSMRegion:    "us-east-1",
		EmitInterval: 1 * time.Minute,
		EmitJitter:   0,
		RunTimeout:   2 * time.Minute,
		JournalPath:  "/var/lib/vespa-emitter/journal.db",
		JournalKeep:  500,
		OTLPEndpoint: "localhost:4317",
		OTLPProtocol: "grpc",
		OTLPInsecure: true,
		KafkaTopic:   "vespa-metrics",
		Port:         "9464",
	}
}

// parseBool accepts the usual truthy spellings.
func parseBool(value string) bool {
	value = strings.ToLower(value)
	return value == "true" || value == "1" || value == "yes"
}

// parseBrokers splits a comma separated broker list.
func parseBrokers(value string) []string {
	parts := strings.Split(value, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func setString(section *ini.Section, key string, target *string) {
	if section.HasKey(key) {
		*target = section.Key(key).String()
	}
}

func setInt(section *ini.Section, key string, target *int) error {
	if !section.HasKey(key) {
		return nil
	}
	value, err := strconv.Atoi(section.Key(key).String())
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = value
	return nil
}

func setDuration(section *ini.Section, key string, target *time.Duration) error {
	if !section.HasKey(key) {
		return nil
	}
	value, err := time.ParseDuration(section.Key(key).String())
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = value
	return nil
}

func setBool(section *ini.Section, key string, target *bool) {
	if section.HasKey(key) {
		*target = parseBool(section.Key(key).String())
	}
}

// applyFile copies every present key from the file section into the config.
func (c *Config) applyFile(section *ini.Section) error {
	setString(section, "endpoint", &c.Endpoint)
	if err := setDuration(section, "fetch_timeout", &c.FetchTimeout); err != nil {
		return err
	}

	setString(section, "namespace", &c.Namespace)
	if err := setInt(section, "chunk_size", &c.ChunkSize); err != nil {
		return err
	}

	setString(section, "sink", &c.Sink)

	setString(section, "cert_source", &c.CertSource)
	setString(section, "cert_param", &c.CertParam)
	setString(section, "key_param", &c.KeyParam)
	setString(section, "ssm_region", &c.SSMRegion)
	setString(section, "cert_file", &c.CertFile)
	setString(section, "key_file", &c.KeyFile)

	if err := setDuration(section, "emit_interval", &c.EmitInterval); err != nil {
		return err
	}
	if err := setDuration(section, "emit_jitter", &c.EmitJitter); err != nil {
		return err
	}
	if err := setDuration(section, "run_timeout", &c.RunTimeout); err != nil {
		return err
	}

	setString(section, "journal_path", &c.JournalPath)
	if err := setInt(section, "journal_keep", &c.JournalKeep); err != nil {
		return err
	}

	setString(section, "otlp_endpoint", &c.OTLPEndpoint)
	setString(section, "otlp_protocol", &c.OTLPProtocol)
	setBool(section, "otlp_insecure", &c.OTLPInsecure)

	if section.HasKey("kafka_brokers") {
		c.KafkaBrokers = parseBrokers(section.Key("kafka_brokers").String())
	}
	setString(section, "kafka_topic", &c.KafkaTopic)

	setString(section, "port", &c.Port)
	return nil
}

func envString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func envInt(name string, target *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*target = value
	return nil
}

func envDuration(name string, target *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*target = value
	return nil
}

func envBool(name string, target *bool) {
	if value := os.Getenv(name); value != "" {
		*target = parseBool(value)
	}
}

// applyEnvironment copies every set environment variable into the config.
func (c *Config) applyEnvironment() error {
	envString("VESPA_ENDPOINT", &c.Endpoint)
	if err := envDuration("FETCH_TIMEOUT", &c.FetchTimeout); err != nil {
		return err
	}

	envString("METRICS_NAMESPACE", &c.Namespace)
	if err := envInt("CHUNK_SIZE", &c.ChunkSize); err != nil {
		return err
	}

	envString("METRICS_SINK", &c.Sink)

	envString("CERT_SOURCE", &c.CertSource)
	envString("CERT_PARAM", &c.CertParam)
	envString("KEY_PARAM", &c.KeyParam)
	envString("SSM_REGION", &c.SSMRegion)
	envString("CERT_FILE", &c.CertFile)
	envString("KEY_FILE", &c.KeyFile)

	if err := envDuration("EMIT_INTERVAL", &c.EmitInterval); err != nil {
		return err
	}
	if err := envDuration("EMIT_JITTER", &c.EmitJitter); err != nil {
		return err
	}
	if err := envDuration("RUN_TIMEOUT", &c.RunTimeout); err != nil {
		return err
	}

	envString("JOURNAL_PATH", &c.JournalPath)
	if err := envInt("JOURNAL_KEEP", &c.JournalKeep); err != nil {
		return err
	}

	envString("OTLP_ENDPOINT", &c.OTLPEndpoint)
	envString("OTLP_PROTOCOL", &c.OTLPProtocol)
	envBool("OTLP_INSECURE", &c.OTLPInsecure)

	if value := os.Getenv("KAFKA_BROKERS"); value != "" {
		c.KafkaBrokers = parseBrokers(value)
	}
	envString("KAFKA_TOPIC", &c.KafkaTopic)

	envString("PORT", &c.Port)
	return nil
}

// LoadConfig loads configuration from the specified file path.
// Environment variables override file values.
// Precedence: environment variables > config file > defaults
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			iniFile, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			if err := cfg.applyFile(iniFile.Section("")); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			// File exists but can't be read
			return nil, fmt.Errorf("cannot access config file %s: %w", path, err)
		}
		// If file doesn't exist, just use defaults (no error)
	}

	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigWithDefaults tries to load configuration from default locations.
// It checks locations in order:
// 1. /etc/vespa-emitter/emitter.conf
// 2. ./emitter.conf (current directory)
// 3. Hardcoded defaults
//
// Environment variables override file values.
func LoadConfigWithDefaults() (*Config, error) {
	defaultPaths := []string{
		"/etc/vespa-emitter/emitter.conf",
		"./emitter.conf",
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}

	// No config file found, use defaults with env var overrides
	return LoadConfig("")
}
