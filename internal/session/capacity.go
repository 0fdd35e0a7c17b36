package session

import "github.com/langchou/ovmsgazer/internal/models"

// CapacityDefaults 有效电池容量的兜底参数
type CapacityDefaults struct {
	DefaultKWh     float64 // 未上报容量时使用
	NominalVoltage float64 // Ah 换算 kWh 的标称电压
}

// EffectiveCapacity 计算用于 SoC 差值换算能量的有效容量 (kWh)
// 优先使用上报的可用容量，其次 Ah × 标称电压，最后使用配置默认值
func EffectiveCapacity(d *models.VehicleData, def CapacityDefaults) float64 {
	if d.CapacityKWh != nil && *d.CapacityKWh > 0 {
		return *d.CapacityKWh
	}
	if d.CapacityAh != nil && *d.CapacityAh > 0 && def.NominalVoltage > 0 {
		return *d.CapacityAh * def.NominalVoltage / 1000
	}
	return def.DefaultKWh
}

// energyFromSOC SoC 百分比差值换算为 kWh
func energyFromSOC(fromSOC, toSOC, capacity float64) float64 {
	return (toSOC - fromSOC) / 100 * capacity
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clone(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
