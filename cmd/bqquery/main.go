package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	bigquery "github.com/OMGeeky/google-bigquery"
)

func main() {
	configPath := flag.String("config", "bigquery.yaml", "path to the YAML configuration")
	query := flag.String("query", "", "query to run")
	limit := flag.Int("max", 100, "maximum number of rows to print, 0 for all")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "bqquery: -query is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *query, *limit, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "bqquery:", err)
		os.Exit(1)
	}
}

func run(configPath, query string, limit int, out io.Writer) error {
	cfg, err := bigquery.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := bigquery.Connect(ctx, cfg, bigquery.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := printQuery(ctx, client, query, limit, out)
	if err != nil {
		return err
	}

	logger.Info("query finished", zap.Int("rows", n))
	return nil
}

// printQuery runs query and writes the schema and rows tab separated.
func printQuery(ctx context.Context, client *bigquery.Client, query string, limit int, out io.Writer) (int, error) {
	res, err := client.Query(ctx, query, nil, limit)
	if err != nil {
		return 0, err
	}

	if _, err := fmt.Fprintln(out, strings.Join(res.Schema, "\t")); err != nil {
		return 0, err
	}
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.ValueOrZero()
			if !c.Valid {
				cells[i] = bigquery.NullLiteral
			}
		}
		if _, err := fmt.Fprintln(out, strings.Join(cells, "\t")); err != nil {
			return 0, err
		}
	}

	return len(res.Rows), nil
}
