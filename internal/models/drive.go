package models

import "time"

// PathPoint 行程轨迹点
type PathPoint struct {
	Timestamp int64   `json:"ts"` // 毫秒
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Speed     float64 `json:"speed"`
	SOC       float64 `json:"soc"`
	Elevation float64 `json:"elevation"`
}

// Drive 行程记录
type Drive struct {
	ID              int64       `json:"id" db:"id"`
	VehicleID       string      `json:"vehicle_id" db:"vehicle_id"`
	StartTime       time.Time   `json:"start_time" db:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty" db:"end_time"`
	StartOdometerKm float64     `json:"start_odometer_km" db:"start_odometer_km"`
	EndOdometerKm   *float64    `json:"end_odometer_km,omitempty" db:"end_odometer_km"`
	StartSOC        float64     `json:"start_soc" db:"start_soc"`
	EndSOC          *float64    `json:"end_soc,omitempty" db:"end_soc"`
	DistanceKm      float64     `json:"distance_km" db:"distance_km"`
	DurationMin     float64     `json:"duration_min" db:"duration_min"`
	ConsumptionKWh  float64     `json:"consumption_kwh" db:"consumption_kwh"`
	EfficiencyWhKm  float64     `json:"efficiency_wh_km" db:"efficiency_wh_km"` // 0 表示无法计算
	SpeedMax        *float64    `json:"speed_max,omitempty" db:"speed_max"`
	StartLatitude   *float64    `json:"start_latitude,omitempty" db:"start_latitude"`
	StartLongitude  *float64    `json:"start_longitude,omitempty" db:"start_longitude"`
	EndLatitude     *float64    `json:"end_latitude,omitempty" db:"end_latitude"`
	EndLongitude    *float64    `json:"end_longitude,omitempty" db:"end_longitude"`
	Path            []PathPoint `json:"path" db:"path"`
}
