package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/graph"
	"github.com/Ramsey-B/thistle/pkg/mergesignal"
	"github.com/Ramsey-B/thistle/pkg/resolver"
)

type Config struct {
	AppName                       string   `envconfig:"APP_NAME" default:"thistle"`
	Port                          int      `envconfig:"PORT" default:"3004"`
	LogLevel                      string   `envconfig:"LOG_LEVEL" default:"info"`
	PrettyLogs                    bool     `envconfig:"PRETTY_LOGS" default:"false"`
	HttpServerWriteTimeoutSeconds int      `envconfig:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" default:"10"`
	HttpServerReadTimeoutSeconds  int      `envconfig:"HTTP_SERVER_READ_TIMEOUT_SECONDS" default:"10"`
	HttpServerIdleTimeoutSeconds  int      `envconfig:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" default:"10"`
	AllowOrigins                  []string `envconfig:"HTTP_SERVER_ALLOW_ORIGINS" default:"*"`
	StartupMaxAttempts            int      `envconfig:"STARTUP_MAX_ATTEMPTS" default:"5"`
	OTLPEndpoint                  string   `envconfig:"OTLP_ENDPOINT" default:""`

	// PostgreSQL
	DatabaseHost                  string        `envconfig:"DB_HOST" default:"localhost"`
	DatabasePort                  string        `envconfig:"DB_PORT" default:"5432"`
	DatabaseUserName              string        `envconfig:"DB_USER_NAME" default:""`
	DatabasePassword              string        `envconfig:"DB_PASSWORD" default:""`
	DatabaseName                  string        `envconfig:"DB_NAME" default:"thistle"`
	DatabaseSSLMode               string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DatabaseMaxOpenConns          int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DatabaseMaxIdleConns          int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	DatabaseConnMaxLifetime       time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"10m"`
	DatabaseMigrationFolderPath   string        `envconfig:"DB_MIGRATION_FOLDER_PATH" default:"db/pg"`
	DatabaseMigrationVersion      uint          `envconfig:"DB_MIGRATION_VERSION" default:"0"`
	DatabaseMigrationForce        int           `envconfig:"DB_MIGRATION_FORCE" default:"0"`
	DatabaseMigrationAutoRollback bool          `envconfig:"DB_MIGRATION_AUTO_ROLLBACK" default:"true"`

	// Graph database (merge lineage)
	GraphEnabled    bool   `envconfig:"GRAPH_ENABLED" default:"false"`
	GraphDBHost     string `envconfig:"GRAPH_DB_HOST" default:"localhost"`
	GraphDBPort     int    `envconfig:"GRAPH_DB_PORT" default:"7687"`
	GraphDBUser     string `envconfig:"GRAPH_DB_USER" default:""`
	GraphDBPassword string `envconfig:"GRAPH_DB_PASSWORD" default:""`

	// Redis (resolution cache, run lock, ingest dedupe)
	RedisEnabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	RedisURL      string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	RunLockTTL    time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`
	DedupeEnabled bool          `envconfig:"DEDUPE_ENABLED" default:"true"`

	// Kafka
	KafkaEnabled       bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaInputTopic    string   `envconfig:"KAFKA_INPUT_TOPIC" default:"team-ingest"`
	KafkaConsumerGroup string   `envconfig:"KAFKA_CONSUMER_GROUP" default:"thistle-resolver"`
	KafkaOutputTopic   string   `envconfig:"KAFKA_OUTPUT_TOPIC" default:"team-identity-events"`
	KafkaBatchSize     int      `envconfig:"KAFKA_BATCH_SIZE" default:"100"`
	KafkaBatchTimeout  int      `envconfig:"KAFKA_BATCH_TIMEOUT_MS" default:"100"`
	KafkaRequiredAcks  int      `envconfig:"KAFKA_REQUIRED_ACKS" default:"1"`
	KafkaCompression   string   `envconfig:"KAFKA_COMPRESSION" default:"snappy"`

	// Resolution thresholds
	AutoAcceptThreshold   float64 `envconfig:"AUTO_ACCEPT_THRESHOLD" default:"0.95"`
	HighBandThreshold     float64 `envconfig:"HIGH_BAND_THRESHOLD" default:"0.90"`
	HighBandAutoAccept    bool    `envconfig:"HIGH_BAND_AUTO_ACCEPT" default:"true"`
	ReviewMediumThreshold float64 `envconfig:"REVIEW_MEDIUM_THRESHOLD" default:"0.80"`
	ReviewLowThreshold    float64 `envconfig:"REVIEW_LOW_THRESHOLD" default:"0.70"`
	MaxExternalIDLength   int     `envconfig:"MAX_EXTERNAL_ID_LENGTH" default:"256"`

	// Merge detection
	MergeSuggestionFloor float64 `envconfig:"MERGE_SUGGESTION_FLOOR" default:"0.90"`
	AutoMergeThreshold   float64 `envconfig:"AUTO_MERGE_THRESHOLD" default:"0.95"`
	AutoMergeEnabled     bool    `envconfig:"AUTO_MERGE_ENABLED" default:"false"`
	ScanWorkers          int     `envconfig:"SCAN_WORKERS" default:"4"`

	// Name parsing. A zero season year derives it from the clock.
	SeasonYear     int    `envconfig:"SEASON_YEAR" default:"0"`
	MinBirthYear   int    `envconfig:"MIN_BIRTH_YEAR" default:"0"`
	MaxBirthYear   int    `envconfig:"MAX_BIRTH_YEAR" default:"0"`
	VocabularyPath string `envconfig:"VOCABULARY_PATH" default:""`

	// Batch processing
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"500"`
	CandidatePageSize int           `envconfig:"CANDIDATE_PAGE_SIZE" default:"500"`
	ScanInterval      time.Duration `envconfig:"SCAN_INTERVAL" default:"1h"`
	MergeMapRefresh   time.Duration `envconfig:"MERGE_MAP_REFRESH" default:"1m"`
}

// Load reads a .env file when one exists, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the threshold ladder and worker settings.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"AUTO_ACCEPT_THRESHOLD":   c.AutoAcceptThreshold,
		"HIGH_BAND_THRESHOLD":     c.HighBandThreshold,
		"REVIEW_MEDIUM_THRESHOLD": c.ReviewMediumThreshold,
		"REVIEW_LOW_THRESHOLD":    c.ReviewLowThreshold,
		"MERGE_SUGGESTION_FLOOR":  c.MergeSuggestionFloor,
		"AUTO_MERGE_THRESHOLD":    c.AutoMergeThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}

	if !(c.ReviewLowThreshold <= c.ReviewMediumThreshold &&
		c.ReviewMediumThreshold <= c.HighBandThreshold &&
		c.HighBandThreshold <= c.AutoAcceptThreshold) {
		return errors.New("resolution thresholds must satisfy low <= medium <= high band <= auto accept")
	}
	if c.MergeSuggestionFloor < mergesignal.MinSuggestionFloor {
		return fmt.Errorf("MERGE_SUGGESTION_FLOOR must be at least %v, got %v", mergesignal.MinSuggestionFloor, c.MergeSuggestionFloor)
	}
	if c.AutoMergeThreshold < c.MergeSuggestionFloor {
		return errors.New("AUTO_MERGE_THRESHOLD must not be below MERGE_SUGGESTION_FLOOR")
	}
	if c.ScanWorkers < 1 {
		return fmt.Errorf("SCAN_WORKERS must be positive, got %d", c.ScanWorkers)
	}
	if c.MergeMapRefresh <= 0 || c.ScanInterval <= 0 {
		return errors.New("MERGE_MAP_REFRESH and SCAN_INTERVAL must be positive")
	}
	if c.MinBirthYear != 0 && c.MaxBirthYear != 0 && c.MinBirthYear > c.MaxBirthYear {
		return errors.New("MIN_BIRTH_YEAR must not exceed MAX_BIRTH_YEAR")
	}
	return nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             c.DatabaseMigrationVersion,
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Resolver() resolver.Config {
	return resolver.Config{
		AutoAcceptThreshold:   c.AutoAcceptThreshold,
		HighBandThreshold:     c.HighBandThreshold,
		HighBandAutoAccept:    c.HighBandAutoAccept,
		ReviewMediumThreshold: c.ReviewMediumThreshold,
		ReviewLowThreshold:    c.ReviewLowThreshold,
		PageSize:              c.CandidatePageSize,
		MaxExternalIDLength:   c.MaxExternalIDLength,
	}
}

func (c *Config) MergeSignal() mergesignal.Config {
	return mergesignal.Config{
		SuggestionFloor:    c.MergeSuggestionFloor,
		AutoMergeThreshold: c.AutoMergeThreshold,
		Workers:            c.ScanWorkers,
		PageSize:           c.CandidatePageSize,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
	}
}
