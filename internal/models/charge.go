package models

import "time"

// ChargePoint 充电曲线采样点
type ChargePoint struct {
	Timestamp int64   `json:"timestamp"` // 毫秒
	Time      string  `json:"time"`      // HH:MM
	Power     float64 `json:"power"`     // kW
	SOC       float64 `json:"soc"`
}

// Charge 充电记录
type Charge struct {
	ID          int64         `json:"id" db:"id"`
	VehicleID   string        `json:"vehicle_id" db:"vehicle_id"`
	StartTime   time.Time     `json:"start_time" db:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty" db:"end_time"`
	Location    string        `json:"location" db:"location"`
	Latitude    *float64      `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64      `json:"longitude,omitempty" db:"longitude"`
	StartSOC    float64       `json:"start_soc" db:"start_soc"`
	EndSOC      *float64      `json:"end_soc,omitempty" db:"end_soc"`
	AddedKWh    float64       `json:"added_kwh" db:"added_kwh"`
	DurationMin float64       `json:"duration_min" db:"duration_min"`
	AvgPowerKW  float64       `json:"avg_power_kw" db:"avg_power_kw"`
	MaxPowerKW  float64       `json:"max_power_kw" db:"max_power_kw"`
	ChartData   []ChargePoint `json:"chart_data" db:"chart_data"`
}
