package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 仓库层错误
var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("overlapping reservation")
	ErrDuplicate    = errors.New("duplicate record")
	ErrStaleVersion = errors.New("stale version")
	ErrFinalized    = errors.New("already finalized")

	// ErrUnknownStepType 步骤类型不存在，属于 ErrNotFound
	ErrUnknownStepType = fmt.Errorf("unknown step type: %w", ErrNotFound)
)

// PostgreSQL 错误码
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// querier 连接池与事务共用的查询接口
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string, maxConns int32) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	config.MaxConns = maxConns
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// NewFromPool 使用已有连接池
func NewFromPool(pool *pgxpool.Pool) *DB {
	return &DB{Pool: pool}
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx 在事务中执行，fn 返回错误时回滚
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateEngineCatalog,
		migrationCreateCheckups,
		migrationCreateSchedules,
		migrationCreateTickets,
		migrationCreateServiceBays,
		migrationCreateOccurrences,
		migrationSeedOccurrenceStepTypes,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isExclusionViolation(err error) bool {
	return pgErrorCode(err) == pgExclusionViolation
}

// 数据库迁移 SQL
const migrationCreateEngineCatalog = `
CREATE TABLE IF NOT EXISTS engine_models (
    id BIGSERIAL PRIMARY KEY,
    digits_4_5 VARCHAR(2) NOT NULL,
    digit_6 VARCHAR(1) NOT NULL,
    digits_7_8 VARCHAR(2) NOT NULL,
    engine_code VARCHAR(50) NOT NULL,
    emission_standard VARCHAR(20) NOT NULL,
    displacement_cc INT NOT NULL DEFAULT 0,
    UNIQUE (digits_4_5, digit_6, digits_7_8)
);

CREATE TABLE IF NOT EXISTS checkup_intervals (
    id BIGSERIAL PRIMARY KEY,
    maintenance_group VARCHAR(20) NOT NULL,
    engine_code VARCHAR(50),
    emission_standard VARCHAR(20),
    displacement_cc INT,
    km NUMERIC(10, 2) NOT NULL DEFAULT 0,
    hours INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checkup_intervals_group ON checkup_intervals(maintenance_group, emission_standard);
`

const migrationCreateCheckups = `
CREATE TABLE IF NOT EXISTS checkups (
    id BIGSERIAL PRIMARY KEY,
    range_start BIGINT NOT NULL,
    maintenance_group VARCHAR(20) NOT NULL,
    type VARCHAR(50) NOT NULL DEFAULT 'PREVENTIVE',
    has_campaigns BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (maintenance_group, range_start)
);

CREATE TABLE IF NOT EXISTS checkup_parts (
    id BIGSERIAL PRIMARY KEY,
    checkup_id BIGINT NOT NULL REFERENCES checkups(id),
    part_number VARCHAR(50) NOT NULL,
    description VARCHAR(255) NOT NULL DEFAULT '',
    quantity NUMERIC(10, 2) NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_checkup_parts_checkup_id ON checkup_parts(checkup_id);

CREATE TABLE IF NOT EXISTS field_campaigns (
    number VARCHAR(50) NOT NULL,
    chassis VARCHAR(17) NOT NULL,
    description VARCHAR(255) NOT NULL DEFAULT '',
    open BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (number, chassis)
);
CREATE INDEX IF NOT EXISTS idx_field_campaigns_chassis ON field_campaigns(chassis);
`

const migrationCreateSchedules = `
CREATE SEQUENCE IF NOT EXISTS checkup_schedule_number_seq;

CREATE TABLE IF NOT EXISTS checkup_schedules (
    id BIGSERIAL PRIMARY KEY,
    schedule_number BIGINT UNIQUE,
    vehicle_id VARCHAR(50) NOT NULL,
    chassis VARCHAR(17) NOT NULL,
    dealership_code VARCHAR(20) NOT NULL,
    consultant_id BIGINT NOT NULL,
    checkup_id BIGINT REFERENCES checkups(id),
    campaign_numbers TEXT[] NOT NULL DEFAULT '{}',
    type VARCHAR(20) NOT NULL,
    has_campaigns BOOLEAN NOT NULL DEFAULT FALSE,
    state VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
    maintenance_status VARCHAR(20),
    maintenance_check_in DATE,
    maintenance_check_out DATE,
    service_order VARCHAR(50),
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_checkup_schedules_chassis ON checkup_schedules(chassis);
CREATE INDEX IF NOT EXISTS idx_checkup_schedules_scheduled_at ON checkup_schedules(scheduled_at);
`

const migrationCreateTickets = `
CREATE TABLE IF NOT EXISTS maintenance_tickets (
    id BIGSERIAL PRIMARY KEY,
    schedule_id BIGINT NOT NULL UNIQUE REFERENCES checkup_schedules(id),
    status VARCHAR(20) NOT NULL DEFAULT 'TICKET',
    version INT NOT NULL DEFAULT 1,
    -- 各步骤记录（结构化数据）
    ticket_step JSONB,
    screening_step JSONB,
    repair_step JSONB,
    inspection_step JSONB,
    release_step JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

const migrationCreateServiceBays = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS service_bays (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    dn VARCHAR(20) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS service_bay_schedules (
    id BIGSERIAL PRIMARY KEY,
    service_bay_id BIGINT NOT NULL REFERENCES service_bays(id),
    occurrence_id BIGINT,
    start_date TIMESTAMP WITH TIME ZONE NOT NULL,
    end_date TIMESTAMP WITH TIME ZONE NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    dn VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    CHECK (start_date < end_date),
    -- 同一工位的有效预留区间 [start, end) 不得重叠
    EXCLUDE USING gist (
        service_bay_id WITH =,
        tstzrange(start_date, end_date, '[)') WITH &&
    ) WHERE (active)
);
CREATE INDEX IF NOT EXISTS idx_service_bay_schedules_bay ON service_bay_schedules(service_bay_id, active);
`

const migrationCreateOccurrences = `
CREATE TABLE IF NOT EXISTS occurrences (
    id BIGSERIAL PRIMARY KEY,
    uuid UUID NOT NULL UNIQUE,
    chassis VARCHAR(17) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    start_date TIMESTAMP WITH TIME ZONE NOT NULL,
    end_date TIMESTAMP WITH TIME ZONE
);

CREATE TABLE IF NOT EXISTS occurrence_step_types (
    id BIGSERIAL PRIMARY KEY,
    code VARCHAR(50) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL,
    position INT NOT NULL,
    hours_elapsed INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS occurrence_steps (
    id BIGSERIAL PRIMARY KEY,
    occurrence_id BIGINT NOT NULL REFERENCES occurrences(id),
    step_type_id BIGINT NOT NULL REFERENCES occurrence_step_types(id),
    dt_start TIMESTAMP WITH TIME ZONE NOT NULL,
    dt_end TIMESTAMP WITH TIME ZONE,
    latest BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_occurrence_steps_occurrence_id ON occurrence_steps(occurrence_id);
-- 每个事件最多一个 latest 步骤
CREATE UNIQUE INDEX IF NOT EXISTS idx_occurrence_steps_latest ON occurrence_steps(occurrence_id) WHERE latest;
`

const migrationSeedOccurrenceStepTypes = `
INSERT INTO occurrence_step_types (code, name, position, hours_elapsed) VALUES
    ('CHAMADO', 'Chamado', 1, 1),
    ('TRIAGEM', 'Triagem', 2, 2),
    ('DESLOCAMENTO', 'Deslocamento', 3, 4),
    ('DIAGNOSE', 'Diagnose', 4, 8),
    ('REMOCAO', 'Remoção', 5, 12),
    ('ANALISE_GARANTIA', 'Análise Garantia', 6, 48),
    ('REPARO', 'Reparo', 7, 72),
    ('ENTREGA', 'Entrega', 8, 0)
ON CONFLICT (code) DO NOTHING;
`
