package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/ovmsgazer/internal/models"
)

// DriveRepository 行程数据仓库
type DriveRepository struct {
	db *DB
}

// NewDriveRepository 创建行程仓库
func NewDriveRepository(db *DB) *DriveRepository {
	return &DriveRepository{db: db}
}

const driveColumns = `id, vehicle_id, start_time, end_time, start_odometer_km, end_odometer_km, start_soc, end_soc,
	distance_km, duration_min, consumption_kwh, efficiency_wh_km, speed_max,
	start_latitude, start_longitude, end_latitude, end_longitude, path`

// Create 创建行程，ID 由数据库分配
func (r *DriveRepository) Create(ctx context.Context, drive *models.Drive) error {
	query := `
		INSERT INTO drives (vehicle_id, start_time, start_odometer_km, start_soc, start_latitude, start_longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		drive.VehicleID,
		drive.StartTime,
		drive.StartOdometerKm,
		drive.StartSOC,
		drive.StartLatitude,
		drive.StartLongitude,
	).Scan(&drive.ID)

	if err != nil {
		return fmt.Errorf("insert drive: %w", err)
	}
	return nil
}

// Complete 完成行程，未知 ID 不影响任何行
func (r *DriveRepository) Complete(ctx context.Context, drive *models.Drive) error {
	path, err := json.Marshal(pathOrEmpty(drive.Path))
	if err != nil {
		return fmt.Errorf("marshal drive path: %w", err)
	}

	query := `
		UPDATE drives SET
			end_time = $1,
			end_odometer_km = $2,
			end_soc = $3,
			distance_km = $4,
			duration_min = $5,
			consumption_kwh = $6,
			efficiency_wh_km = $7,
			speed_max = $8,
			end_latitude = $9,
			end_longitude = $10,
			path = $11
		WHERE id = $12
	`
	_, err = r.db.Pool.Exec(ctx, query,
		drive.EndTime,
		drive.EndOdometerKm,
		drive.EndSOC,
		drive.DistanceKm,
		drive.DurationMin,
		drive.ConsumptionKWh,
		drive.EfficiencyWhKm,
		drive.SpeedMax,
		drive.EndLatitude,
		drive.EndLongitude,
		path,
		drive.ID,
	)
	if err != nil {
		return fmt.Errorf("complete drive: %w", err)
	}
	return nil
}

// Delete 删除行程（距离不足被丢弃）
func (r *DriveRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM drives WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete drive: %w", err)
	}
	return nil
}

// GetByID 获取行程
func (r *DriveRepository) GetByID(ctx context.Context, id int64) (*models.Drive, error) {
	query := `SELECT ` + driveColumns + ` FROM drives WHERE id = $1`
	drive, err := scanDrive(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get drive by id: %w", notFound(err))
	}
	return drive, nil
}

// ListByVehicle 获取车辆的行程列表
func (r *DriveRepository) ListByVehicle(ctx context.Context, vehicleID string, limit, offset int) ([]*models.Drive, error) {
	query := `SELECT ` + driveColumns + ` FROM drives WHERE vehicle_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	defer rows.Close()

	var drives []*models.Drive
	for rows.Next() {
		drive, err := scanDrive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drive: %w", err)
		}
		drives = append(drives, drive)
	}

	return drives, rows.Err()
}

// CountByVehicle 统计车辆行程数
func (r *DriveRepository) CountByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM drives WHERE vehicle_id = $1`, vehicleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count drives: %w", err)
	}
	return count, nil
}

func scanDrive(row pgx.Row) (*models.Drive, error) {
	drive := &models.Drive{}
	var path []byte
	err := row.Scan(
		&drive.ID,
		&drive.VehicleID,
		&drive.StartTime,
		&drive.EndTime,
		&drive.StartOdometerKm,
		&drive.EndOdometerKm,
		&drive.StartSOC,
		&drive.EndSOC,
		&drive.DistanceKm,
		&drive.DurationMin,
		&drive.ConsumptionKWh,
		&drive.EfficiencyWhKm,
		&drive.SpeedMax,
		&drive.StartLatitude,
		&drive.StartLongitude,
		&drive.EndLatitude,
		&drive.EndLongitude,
		&path,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(path, &drive.Path); err != nil {
		return nil, fmt.Errorf("unmarshal drive path: %w", err)
	}
	return drive, nil
}

func pathOrEmpty(p []models.PathPoint) []models.PathPoint {
	if p == nil {
		return []models.PathPoint{}
	}
	return p
}
