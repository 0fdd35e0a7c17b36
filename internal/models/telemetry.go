package models

import "time"

// VehicleData 车辆实时指标（已映射到具名字段的部分）
// 指针字段为 nil 表示尚未收到该指标
type VehicleData struct {
	VehicleType string `json:"vehicle_type,omitempty"`

	// 电池 (v.b.*)
	SOC         *float64 `json:"soc,omitempty"`
	SOH         *float64 `json:"soh,omitempty"`
	Voltage     *float64 `json:"voltage,omitempty"`
	Current     *float64 `json:"current,omitempty"`
	Power       *float64 `json:"power,omitempty"` // kW，正值=放电
	Voltage12V  *float64 `json:"voltage_12v,omitempty"`
	Current12V  *float64 `json:"current_12v,omitempty"`
	CapacityKWh *float64 `json:"capacity_kwh,omitempty"` // 可用容量 (kWh)
	CapacityAh  *float64 `json:"capacity_ah,omitempty"`  // 容量 (Ah)
	RangeEst    *float64 `json:"range_est,omitempty"`
	RangeIdeal  *float64 `json:"range_ideal,omitempty"`
	RangeFull   *float64 `json:"range_full,omitempty"`
	EnergyUsed  *float64 `json:"energy_used,omitempty"`

	// 行驶 (v.p.*)
	Speed        *float64 `json:"speed,omitempty"`    // km/h
	Odometer     *float64 `json:"odometer,omitempty"` // km
	TripDistance *float64 `json:"trip_distance,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Elevation    *float64 `json:"elevation,omitempty"`
	Direction    *float64 `json:"direction,omitempty"`
	GPSSats      *float64 `json:"gps_sats,omitempty"`
	GPSLock      *bool    `json:"gps_lock,omitempty"`
	LocationName *string  `json:"location_name,omitempty"`
	MotorRPM     *float64 `json:"motor_rpm,omitempty"`

	// 车身状态 (v.e.* / v.d.*)
	Gear      *string  `json:"gear,omitempty"`
	IsOn      *bool    `json:"car_on,omitempty"`
	Locked    *bool    `json:"locked,omitempty"`
	ParkTime  *float64 `json:"park_time,omitempty"`  // 秒
	DriveTime *float64 `json:"drive_time,omitempty"` // 秒
	DoorFL    *bool    `json:"door_fl,omitempty"`
	DoorFR    *bool    `json:"door_fr,omitempty"`
	DoorRL    *bool    `json:"door_rl,omitempty"`
	DoorRR    *bool    `json:"door_rr,omitempty"`
	DoorHood  *bool    `json:"door_hood,omitempty"`
	DoorTrunk *bool    `json:"door_trunk,omitempty"`
	DoorPort  *bool    `json:"door_charge_port,omitempty"`

	// 温度
	TempAmbient *float64 `json:"temp_ambient,omitempty"`
	TempBattery *float64 `json:"temp_battery,omitempty"`
	TempMotor   *float64 `json:"temp_motor,omitempty"`
	TempCabin   *float64 `json:"temp_cabin,omitempty"`
	TempCharger *float64 `json:"temp_charger,omitempty"`

	// 充电 (v.c.*)
	ChargeState   *string  `json:"charge_state,omitempty"`
	ChargeKWh     *float64 `json:"charge_kwh,omitempty"` // 本次充电累计电量 (厂商上报)
	ChargePower   *float64 `json:"charge_power,omitempty"`
	ChargeVoltage *float64 `json:"charge_voltage,omitempty"`
	ChargeCurrent *float64 `json:"charge_current,omitempty"`
	Charging      *bool    `json:"charging,omitempty"`

	// 厂商专有充电指标 (BMW i3: xi3.v.c.*)
	PilotCurrent   *float64 `json:"pilot_current,omitempty"`
	PlugStatus     *string  `json:"plug_status,omitempty"`
	ChargeLEDState *float64 `json:"charge_led_state,omitempty"`
	ReadyToCharge  *bool    `json:"ready_to_charge,omitempty"`
	GateDriverTemp *float64 `json:"gate_driver_temp,omitempty"`
}

// HasFix 是否有可用的 GPS 坐标
func (d *VehicleData) HasFix() bool {
	if d.Latitude == nil || d.Longitude == nil {
		return false
	}
	if d.GPSLock != nil && !*d.GPSLock {
		return false
	}
	return *d.Latitude != 0 || *d.Longitude != 0
}

// Telemetry 周期性写入的实时快照
type Telemetry struct {
	ID         int64     `json:"id" db:"id"`
	VehicleID  string    `json:"vehicle_id" db:"vehicle_id"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
	Mode       string    `json:"mode" db:"mode"` // parked, driving, charging, offline

	VehicleData

	DriveID  *int64 `json:"drive_id,omitempty" db:"drive_id"`
	ChargeID *int64 `json:"charge_id,omitempty" db:"charge_id"`

	RawMetrics    map[string]any `json:"raw_metrics" db:"raw_metrics"`       // v.* 指标原样保留
	VendorMetrics map[string]any `json:"vendor_metrics" db:"vendor_metrics"` // 厂商命名空间指标
}
