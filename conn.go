package bigquery

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"google.golang.org/api/option"
)

type PGConfig struct {
	// Driver is the database/sql driver name, "pgx" (default) or "postgres".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// SSLMode defaults to "disable".
	SSLMode string `yaml:"ssl_mode"`
}

// DSN returns the connection URL for config.
func (config PGConfig) DSN() string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.User, config.Password),
		Host:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Path:     "/" + config.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func ConnectPostgresql(config PGConfig) (*sqlx.DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "pgx"
	}
	return sqlx.Open(driver, config.DSN())
}

// ConnectBigQuery creates a REST executor for config. Without a credentials
// file it uses Application Default Credentials, or no authentication at all
// when an endpoint (emulator) is configured.
func ConnectBigQuery(ctx context.Context, config BigQueryConfig) (*BigQueryExecutor, error) {
	var opts []option.ClientOption
	switch {
	case config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	case config.Endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	return NewBigQueryExecutor(ctx, config.Location, config.Timeout, opts...)
}
