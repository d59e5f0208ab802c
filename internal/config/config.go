package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all engine settings. Values come from an optional TOML file
// (STREAMPULSE_CONFIG) with environment variables taking precedence.
type Config struct {
	NATSURL       string `toml:"nats_url"`       // STREAMPULSE_NATS_URL (default nats://127.0.0.1:4222)
	SubjectPrefix string `toml:"subject_prefix"` // STREAMPULSE_SUBJECT_PREFIX (default "telemetry.events")
	Partitions    int    `toml:"partitions"`     // STREAMPULSE_PARTITIONS (default 4)
	ConsumerGroup string `toml:"consumer_group"` // STREAMPULSE_CONSUMER_GROUP (default "stream-processor")
	HTTPAddr      string `toml:"http_addr"`      // STREAMPULSE_HTTP_ADDR (default ":8083")

	// Downstream sinks
	TimeSeriesURL  string        `toml:"timeseries_url"`  // STREAMPULSE_TIMESERIES_URL (required)
	DatabaseURL    string        `toml:"database_url"`    // STREAMPULSE_DATABASE_URL (optional, empty = no summary sink)
	ForwardBuffer  int           `toml:"forward_buffer"`  // STREAMPULSE_FORWARD_BUFFER (default 256)
	ForwardTimeout time.Duration `toml:"forward_timeout"` // STREAMPULSE_FORWARD_TIMEOUT (default 3s)

	// Snapshot export settings
	SnapshotInterval   time.Duration `toml:"snapshot_interval"`    // STREAMPULSE_SNAPSHOT_INTERVAL (default 0 = disabled)
	SnapshotS3Bucket   string        `toml:"snapshot_s3_bucket"`   // STREAMPULSE_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Key      string        `toml:"snapshot_s3_key"`      // STREAMPULSE_SNAPSHOT_S3_KEY (default "streampulse/snapshot.json")
	SnapshotS3Region   string        `toml:"snapshot_s3_region"`   // STREAMPULSE_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Endpoint string        `toml:"snapshot_s3_endpoint"` // STREAMPULSE_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
}

func defaults() *Config {
	return &Config{
		NATSURL:          "nats://127.0.0.1:4222",
		SubjectPrefix:    "telemetry.events",
		Partitions:       4,
		ConsumerGroup:    "stream-processor",
		HTTPAddr:         ":8083",
		TimeSeriesURL:    "http://localhost:8084/api/v1/timeseries/processed-data",
		ForwardBuffer:    256,
		ForwardTimeout:   3 * time.Second,
		SnapshotS3Key:    "streampulse/snapshot.json",
		SnapshotS3Region: "us-east-1",
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// STREAMPULSE_CONFIG (if set), then environment overrides.
func Load() (*Config, error) {
	c := defaults()

	if path := os.Getenv("STREAMPULSE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("STREAMPULSE_CONFIG: %w", err)
		}
	}

	applyString(&c.NATSURL, "STREAMPULSE_NATS_URL")
	applyString(&c.SubjectPrefix, "STREAMPULSE_SUBJECT_PREFIX")
	applyString(&c.ConsumerGroup, "STREAMPULSE_CONSUMER_GROUP")
	applyString(&c.HTTPAddr, "STREAMPULSE_HTTP_ADDR")
	applyString(&c.TimeSeriesURL, "STREAMPULSE_TIMESERIES_URL")
	applyString(&c.DatabaseURL, "STREAMPULSE_DATABASE_URL")
	applyString(&c.SnapshotS3Bucket, "STREAMPULSE_SNAPSHOT_S3_BUCKET")
	applyString(&c.SnapshotS3Key, "STREAMPULSE_SNAPSHOT_S3_KEY")
	applyString(&c.SnapshotS3Region, "STREAMPULSE_SNAPSHOT_S3_REGION")
	applyString(&c.SnapshotS3Endpoint, "STREAMPULSE_SNAPSHOT_S3_ENDPOINT")

	if err := applyInt(&c.Partitions, "STREAMPULSE_PARTITIONS"); err != nil {
		return nil, err
	}
	if err := applyInt(&c.ForwardBuffer, "STREAMPULSE_FORWARD_BUFFER"); err != nil {
		return nil, err
	}
	if err := applyDuration(&c.ForwardTimeout, "STREAMPULSE_FORWARD_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := applyDuration(&c.SnapshotInterval, "STREAMPULSE_SNAPSHOT_INTERVAL"); err != nil {
		return nil, err
	}

	if c.Partitions <= 0 {
		return nil, fmt.Errorf("partitions must be positive, got %d", c.Partitions)
	}
	if c.TimeSeriesURL == "" {
		return nil, fmt.Errorf("STREAMPULSE_TIMESERIES_URL is required")
	}

	return c, nil
}

func applyString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func applyDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
