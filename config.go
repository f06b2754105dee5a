package bigquery

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	BackendBigQuery = "bigquery"
	BackendPostgres = "postgres"
)

// Config selects the backend and the project/dataset records live in.
type Config struct {
	// ProjectID scopes every query. Required for the bigquery backend.
	ProjectID string `yaml:"project_id"`

	// DatasetID qualifies table names of record types without a dataset.
	DatasetID string `yaml:"dataset_id"`

	// Backend is "bigquery" (default) or "postgres".
	Backend string `yaml:"backend"`

	BigQuery BigQueryConfig `yaml:"bigquery"`
	Postgres PGConfig       `yaml:"postgres"`

	// LogLevel is a zap level name, e.g. "debug" or "info".
	LogLevel string `yaml:"log_level"`
}

type BigQueryConfig struct {
	// CredentialsFile is a service account key file. Empty means Application
	// Default Credentials, or no authentication when Endpoint is set.
	CredentialsFile string `yaml:"credentials_file"`

	// Endpoint overrides the API base URL, e.g. for an emulator.
	Endpoint string `yaml:"endpoint"`

	// Location is the job location, e.g. "EU".
	Location string `yaml:"location"`

	// Timeout bounds how long one jobs.query call waits for results.
	Timeout time.Duration `yaml:"timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendBigQuery,
		BigQuery: BigQueryConfig{
			Timeout: 10 * time.Second,
		},
		Postgres: PGConfig{
			Driver:  "pgx",
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML data over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	config := defaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if !SliceContains([]string{BackendBigQuery, BackendPostgres}, c.Backend) {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Backend == BackendBigQuery && c.ProjectID == "" {
		return fmt.Errorf("project_id is required for the %s backend", BackendBigQuery)
	}

	if c.Backend == BackendPostgres {
		if !SliceContains([]string{"pgx", "postgres"}, c.Postgres.Driver) {
			return fmt.Errorf("unknown postgres driver %q", c.Postgres.Driver)
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required")
		}
	}

	if c.BigQuery.Timeout < 0 {
		return fmt.Errorf("bigquery.timeout must not be negative")
	}

	return nil
}

// Connect creates the executor of the configured backend and wraps it in a
// Client.
func Connect(ctx context.Context, config *Config, options ...ClientOption) (*Client, error) {
	var executor Executor
	switch config.Backend {
	case BackendPostgres:
		db, err := ConnectPostgresql(config.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		executor = NewSQLExecutor(db)
	default:
		bq, err := ConnectBigQuery(ctx, config.BigQuery)
		if err != nil {
			return nil, err
		}
		executor = bq
	}

	client := NewClient(executor, config.ProjectID, config.DatasetID, options...)
	client.Logger().Info("connected",
		zap.String("backend", config.Backend),
		zap.String("project", config.ProjectID),
		zap.String("dataset", config.DatasetID),
	)
	return client, nil
}
