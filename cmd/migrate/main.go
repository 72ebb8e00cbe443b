package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"launchpad/internal/storage/migrations"
	"launchpad/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	pgDSN := flag.String("postgres-dsn", envOr("POSTGRES_DSN", ""), "Postgres connection string")
	chDSN := flag.String("clickhouse-dsn", envOr("CLICKHOUSE_DSN", ""), "ClickHouse connection string")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *pgDSN == "" && *chDSN == "" {
		logger.Fatal("nothing to do: set --postgres-dsn and/or --clickhouse-dsn")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *pgDSN != "" {
		pool, err := postgres.NewPool(ctx, *pgDSN)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			logger.WithError(err).Fatal("postgres migrations failed")
		}
		pool.Close()
		logger.Info("postgres migrations applied")
	}

	if *chDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *chDSN)
		if err != nil {
			logger.WithError(err).Fatal("clickhouse migrations failed")
		}
		_ = conn.Close()
		logger.Info("clickhouse migrations applied")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
