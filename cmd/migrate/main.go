// File: cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"log"

	"iamoneai-gateway/internal/config"
	"iamoneai-gateway/internal/infra/db/postgres"
)

// Creates the audit tables the gateway writes to. Safe to rerun: every
// statement is IF NOT EXISTS.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatalf("database.url is not set (or DATABASE_URL)")
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("[1/3] creating chat_exchanges...")
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_exchanges (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			message    TEXT NOT NULL,
			response   TEXT NOT NULL,
			model      TEXT NOT NULL,
			metadata   JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		log.Fatalf("chat_exchanges: %v", err)
	}

	log.Println("[2/3] creating request_logs...")
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS request_logs (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			endpoint   TEXT NOT NULL,
			model      TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			success    BOOLEAN NOT NULL,
			error      TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		log.Fatalf("request_logs: %v", err)
	}

	log.Println("[3/3] creating indexes...")
	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_chat_exchanges_user_created
			ON chat_exchanges (user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_request_logs_user_created
			ON request_logs (user_id, created_at DESC);
	`)
	if err != nil {
		log.Fatalf("indexes: %v", err)
	}

	log.Println("migration complete")
}
