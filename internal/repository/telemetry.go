package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/langchou/ovmsgazer/internal/models"
)

// TelemetryRepository 实时快照仓库
type TelemetryRepository struct {
	db *DB
}

// NewTelemetryRepository 创建快照仓库
func NewTelemetryRepository(db *DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// Insert 写入一条快照
func (r *TelemetryRepository) Insert(ctx context.Context, t *models.Telemetry) error {
	data, err := json.Marshal(t.VehicleData)
	if err != nil {
		return fmt.Errorf("marshal vehicle data: %w", err)
	}
	raw, err := marshalMap(t.RawMetrics)
	if err != nil {
		return err
	}
	vendor, err := marshalMap(t.VendorMetrics)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO telemetry (vehicle_id, recorded_at, mode, soc, speed, odometer, latitude, longitude, power,
			charge_state, drive_id, charge_id, data, raw_metrics, vendor_metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err = r.db.Pool.QueryRow(ctx, query,
		t.VehicleID,
		t.RecordedAt,
		t.Mode,
		t.SOC,
		t.Speed,
		t.Odometer,
		t.Latitude,
		t.Longitude,
		t.Power,
		t.ChargeState,
		t.DriveID,
		t.ChargeID,
		data,
		raw,
		vendor,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// LatestByVehicle 获取车辆最新快照
func (r *TelemetryRepository) LatestByVehicle(ctx context.Context, vehicleID string) (*models.Telemetry, error) {
	query := `
		SELECT id, vehicle_id, recorded_at, mode, drive_id, charge_id, data, raw_metrics, vendor_metrics
		FROM telemetry WHERE vehicle_id = $1 ORDER BY recorded_at DESC LIMIT 1
	`
	t := &models.Telemetry{}
	var data, raw, vendor []byte
	err := r.db.Pool.QueryRow(ctx, query, vehicleID).Scan(
		&t.ID,
		&t.VehicleID,
		&t.RecordedAt,
		&t.Mode,
		&t.DriveID,
		&t.ChargeID,
		&data,
		&raw,
		&vendor,
	)
	if err != nil {
		return nil, fmt.Errorf("get latest telemetry: %w", notFound(err))
	}

	if err := json.Unmarshal(data, &t.VehicleData); err != nil {
		return nil, fmt.Errorf("unmarshal vehicle data: %w", err)
	}
	if err := json.Unmarshal(raw, &t.RawMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal raw metrics: %w", err)
	}
	if err := json.Unmarshal(vendor, &t.VendorMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal vendor metrics: %w", err)
	}
	return t, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}
	return b, nil
}
