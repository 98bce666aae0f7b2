package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/ai-governance/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema creates the governance tables and indexes if they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// NewDBFromConn wraps an existing connection pool, used by tests and tools that own the *sql.DB
func NewDBFromConn(conn *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: conn, logger: logger}
}

const schema = `
	-- Model catalog
	CREATE TABLE IF NOT EXISTS ai_models (
		id UUID PRIMARY KEY,
		key VARCHAR(100) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		provider VARCHAR(100) NOT NULL,
		type VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		input_cost_per_1k NUMERIC(12, 6) NOT NULL DEFAULT 0,
		output_cost_per_1k NUMERIC(12, 6) NOT NULL DEFAULT 0,
		context_window INTEGER NOT NULL DEFAULT 0,
		capabilities TEXT[] NOT NULL DEFAULT '{}',
		regions TEXT[] NOT NULL DEFAULT '{}',
		is_default BOOLEAN NOT NULL DEFAULT false,
		is_priority BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-plan limits, one row per plan
	CREATE TABLE IF NOT EXISTS ai_plan_limits (
		id UUID PRIMARY KEY,
		plan_id UUID NOT NULL,
		max_requests_per_hour BIGINT NOT NULL DEFAULT -1,
		max_requests_per_day BIGINT NOT NULL DEFAULT -1,
		max_requests_per_month BIGINT NOT NULL DEFAULT -1,
		max_tokens_per_month BIGINT NOT NULL DEFAULT -1,
		max_tokens_per_request BIGINT NOT NULL DEFAULT -1,
		max_input_tokens_per_request BIGINT NOT NULL DEFAULT -1,
		max_output_tokens_per_request BIGINT NOT NULL DEFAULT -1,
		max_tool_calls_per_request BIGINT NOT NULL DEFAULT -1,
		queue_priority INTEGER NOT NULL DEFAULT 0,
		allow_overage BOOLEAN NOT NULL DEFAULT false,
		overage_cost_per_1k_tokens NUMERIC(12, 6) NOT NULL DEFAULT 0,
		overage_cost_per_request NUMERIC(12, 6) NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Guardrail policies
	CREATE TABLE IF NOT EXISTS ai_policies (
		id UUID PRIMARY KEY,
		key VARCHAR(100) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(50) NOT NULL,
		config JSONB NOT NULL DEFAULT '{}',
		action VARCHAR(50) NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 100,
		tenant_id UUID,
		plan_id UUID,
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		is_system BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Fallback rules
	CREATE TABLE IF NOT EXISTS ai_fallback_rules (
		id UUID PRIMARY KEY,
		primary_model_id UUID NOT NULL,
		fallback_model_id UUID NOT NULL,
		trigger_on TEXT[] NOT NULL DEFAULT '{}',
		timeout_threshold_ms BIGINT,
		error_rate_threshold NUMERIC(5, 2),
		retry_count INTEGER NOT NULL DEFAULT 0,
		retry_delay_ms BIGINT NOT NULL DEFAULT 0,
		preserve_context BOOLEAN NOT NULL DEFAULT true,
		priority INTEGER NOT NULL DEFAULT 100,
		tenant_id UUID,
		plan_id UUID,
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (primary_model_id <> fallback_model_id)
	);

	-- Daily usage counters
	CREATE TABLE IF NOT EXISTS ai_usage_daily (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		model_id UUID,
		date DATE NOT NULL,
		requests_count BIGINT NOT NULL DEFAULT 0,
		successful_requests BIGINT NOT NULL DEFAULT 0,
		failed_requests BIGINT NOT NULL DEFAULT 0,
		tokens_in BIGINT NOT NULL DEFAULT 0,
		tokens_out BIGINT NOT NULL DEFAULT 0,
		total_tokens BIGINT NOT NULL DEFAULT 0,
		tool_calls_count BIGINT NOT NULL DEFAULT 0,
		tools_invoked JSONB NOT NULL DEFAULT '{}',
		total_latency_ms BIGINT NOT NULL DEFAULT 0,
		timeout_count BIGINT NOT NULL DEFAULT 0,
		rate_limit_hits BIGINT NOT NULL DEFAULT 0,
		cost_estimated NUMERIC(14, 6) NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ai_plan_limits_plan_id ON ai_plan_limits(plan_id);

	CREATE INDEX IF NOT EXISTS idx_ai_models_status ON ai_models(status);

	CREATE INDEX IF NOT EXISTS idx_ai_policies_scope ON ai_policies(tenant_id, plan_id);
	CREATE INDEX IF NOT EXISTS idx_ai_policies_enabled ON ai_policies(is_enabled);

	CREATE INDEX IF NOT EXISTS idx_ai_fallback_rules_primary ON ai_fallback_rules(primary_model_id);
	CREATE INDEX IF NOT EXISTS idx_ai_fallback_rules_scope ON ai_fallback_rules(tenant_id, plan_id);

	-- Null model ids share one row per tenant and day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ai_usage_daily_key
		ON ai_usage_daily (tenant_id, (COALESCE(model_id, '00000000-0000-0000-0000-000000000000'::uuid)), date);
	CREATE INDEX IF NOT EXISTS idx_ai_usage_daily_date ON ai_usage_daily(date);
`
