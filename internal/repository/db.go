package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// notFound 把 pgx.ErrNoRows 转换为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateTelemetry,
		migrationCreateDrives,
		migrationCreateCharges,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateTelemetry = `
CREATE TABLE IF NOT EXISTS telemetry (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id VARCHAR(64) NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    mode VARCHAR(20) NOT NULL,
    soc DOUBLE PRECISION,
    speed DOUBLE PRECISION,
    odometer DOUBLE PRECISION,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    power DOUBLE PRECISION,
    charge_state VARCHAR(32),
    drive_id BIGINT,
    charge_id BIGINT,
    data JSONB NOT NULL DEFAULT '{}',
    raw_metrics JSONB NOT NULL DEFAULT '{}',
    vendor_metrics JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_recorded ON telemetry(vehicle_id, recorded_at DESC);
`

const migrationCreateDrives = `
CREATE TABLE IF NOT EXISTS drives (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id VARCHAR(64) NOT NULL,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE,
    start_odometer_km DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_odometer_km DOUBLE PRECISION,
    start_soc DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_soc DOUBLE PRECISION,
    distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration_min DOUBLE PRECISION NOT NULL DEFAULT 0,
    consumption_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
    efficiency_wh_km DOUBLE PRECISION NOT NULL DEFAULT 0,
    speed_max DOUBLE PRECISION,
    start_latitude DOUBLE PRECISION,
    start_longitude DOUBLE PRECISION,
    end_latitude DOUBLE PRECISION,
    end_longitude DOUBLE PRECISION,
    path JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_drives_vehicle_start ON drives(vehicle_id, start_time DESC);
`

const migrationCreateCharges = `
CREATE TABLE IF NOT EXISTS charges (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id VARCHAR(64) NOT NULL,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE,
    location TEXT NOT NULL DEFAULT '',
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    start_soc DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_soc DOUBLE PRECISION,
    added_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration_min DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_power_kw DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_power_kw DOUBLE PRECISION NOT NULL DEFAULT 0,
    chart_data JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_charges_vehicle_start ON charges(vehicle_id, start_time DESC);
`
