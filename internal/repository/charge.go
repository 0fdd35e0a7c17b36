package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/ovmsgazer/internal/models"
)

// ChargeRepository 充电数据仓库
type ChargeRepository struct {
	db *DB
}

// NewChargeRepository 创建充电仓库
func NewChargeRepository(db *DB) *ChargeRepository {
	return &ChargeRepository{db: db}
}

const chargeColumns = `id, vehicle_id, start_time, end_time, location, latitude, longitude, start_soc, end_soc,
	added_kwh, duration_min, avg_power_kw, max_power_kw, chart_data`

// Create 创建充电记录，ID 由数据库分配
func (r *ChargeRepository) Create(ctx context.Context, c *models.Charge) error {
	chart, err := marshalChart(c.ChartData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO charges (vehicle_id, start_time, location, latitude, longitude, start_soc, chart_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = r.db.Pool.QueryRow(ctx, query,
		c.VehicleID,
		c.StartTime,
		c.Location,
		c.Latitude,
		c.Longitude,
		c.StartSOC,
		chart,
	).Scan(&c.ID)

	if err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

// UpdateProgress 更新进行中充电的统计和曲线
func (r *ChargeRepository) UpdateProgress(ctx context.Context, c *models.Charge) error {
	chart, err := marshalChart(c.ChartData)
	if err != nil {
		return err
	}

	query := `
		UPDATE charges SET
			end_soc = $2,
			added_kwh = $3,
			duration_min = $4,
			avg_power_kw = $5,
			max_power_kw = $6,
			chart_data = $7
		WHERE id = $1 AND end_time IS NULL
	`
	_, err = r.db.Pool.Exec(ctx, query,
		c.ID,
		c.EndSOC,
		c.AddedKWh,
		c.DurationMin,
		c.AvgPowerKW,
		c.MaxPowerKW,
		chart,
	)
	if err != nil {
		return fmt.Errorf("update charge progress: %w", err)
	}
	return nil
}

// Complete 完成充电，未知 ID 不影响任何行
func (r *ChargeRepository) Complete(ctx context.Context, c *models.Charge) error {
	chart, err := marshalChart(c.ChartData)
	if err != nil {
		return err
	}

	query := `
		UPDATE charges SET
			end_time = $1,
			end_soc = $2,
			added_kwh = $3,
			duration_min = $4,
			avg_power_kw = $5,
			max_power_kw = $6,
			chart_data = $7,
			location = $8
		WHERE id = $9
	`
	_, err = r.db.Pool.Exec(ctx, query,
		c.EndTime,
		c.EndSOC,
		c.AddedKWh,
		c.DurationMin,
		c.AvgPowerKW,
		c.MaxPowerKW,
		chart,
		c.Location,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("complete charge: %w", err)
	}
	return nil
}

// Delete 删除充电记录（时长不足被丢弃）
func (r *ChargeRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM charges WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete charge: %w", err)
	}
	return nil
}

// GetByID 获取充电记录
func (r *ChargeRepository) GetByID(ctx context.Context, id int64) (*models.Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE id = $1`
	c, err := scanCharge(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get charge by id: %w", notFound(err))
	}
	return c, nil
}

// ListByVehicle 获取车辆的充电列表
func (r *ChargeRepository) ListByVehicle(ctx context.Context, vehicleID string, limit, offset int) ([]*models.Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE vehicle_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	var charges []*models.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		charges = append(charges, c)
	}

	return charges, rows.Err()
}

// CountByVehicle 统计车辆充电次数
func (r *ChargeRepository) CountByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM charges WHERE vehicle_id = $1`, vehicleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count charges: %w", err)
	}
	return count, nil
}

func scanCharge(row pgx.Row) (*models.Charge, error) {
	c := &models.Charge{}
	var chart []byte
	err := row.Scan(
		&c.ID,
		&c.VehicleID,
		&c.StartTime,
		&c.EndTime,
		&c.Location,
		&c.Latitude,
		&c.Longitude,
		&c.StartSOC,
		&c.EndSOC,
		&c.AddedKWh,
		&c.DurationMin,
		&c.AvgPowerKW,
		&c.MaxPowerKW,
		&chart,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chart, &c.ChartData); err != nil {
		return nil, fmt.Errorf("unmarshal chart data: %w", err)
	}
	return c, nil
}

func marshalChart(points []models.ChargePoint) ([]byte, error) {
	if points == nil {
		points = []models.ChargePoint{}
	}
	b, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("marshal chart data: %w", err)
	}
	return b, nil
}
