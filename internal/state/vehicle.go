package state

import (
	"sync"
	"time"

	"github.com/langchou/ovmsgazer/internal/metric"
	"github.com/langchou/ovmsgazer/internal/models"
)

// Vehicle 进程内唯一的车辆实时状态
// 写入方只有指标归一化路径，读取方为状态机和周期写库
type Vehicle struct {
	mu sync.RWMutex

	data   models.VehicleData
	raw    map[string]metric.Value
	vendor map[string]metric.Value

	dirty      bool
	version    uint64
	lastUpdate time.Time

	driveID  *int64
	chargeID *int64
}

// NewVehicle 创建空状态
func NewVehicle() *Vehicle {
	return &Vehicle{
		raw:    make(map[string]metric.Value),
		vendor: make(map[string]metric.Value),
	}
}

// Apply 写入一条指标，返回该 key 是否映射到了具名字段
// 所有指标都会按命名空间保留在原始表中
func (v *Vehicle) Apply(s metric.Sample, at time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	mapped := false
	if set, ok := fields[s.Key]; ok {
		mapped = set(&v.data, s)
	}

	if s.Source == metric.SourceStandard {
		v.raw[s.Key] = s.Value
	} else {
		v.vendor[s.Key] = s.Value
	}

	v.dirty = true
	v.version++
	v.lastUpdate = at
	return mapped
}

// Data 返回具名字段的副本
// setter 总是分配新指针，因此浅拷贝不会与后续写入共享数据
func (v *Vehicle) Data() models.VehicleData {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data
}

// Dirty 自上次成功写库后是否有新指标
func (v *Vehicle) Dirty() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dirty
}

// LastUpdate 最近一次收到指标的时间
func (v *Vehicle) LastUpdate() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastUpdate
}

// SetSessions 记录当前进行中的行程/充电 ID
func (v *Vehicle) SetSessions(driveID, chargeID *int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.driveID = driveID
	v.chargeID = chargeID
}

// Snapshot 生成可持久化的快照，并返回其对应的版本号
func (v *Vehicle) Snapshot(vehicleID string, at time.Time) (*models.Telemetry, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snap := &models.Telemetry{
		VehicleID:     vehicleID,
		RecordedAt:    at,
		VehicleData:   v.data,
		DriveID:       v.driveID,
		ChargeID:      v.chargeID,
		RawMetrics:    make(map[string]any, len(v.raw)),
		VendorMetrics: make(map[string]any, len(v.vendor)),
	}
	for k, val := range v.raw {
		snap.RawMetrics[k] = val.Interface()
	}
	for k, val := range v.vendor {
		snap.VendorMetrics[k] = val.Interface()
	}
	return snap, v.version
}

// MarkClean 快照写库成功后清除脏标记
// 写库期间若有新指标到达（版本号变化），脏标记保留到下一次写库
func (v *Vehicle) MarkClean(version uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.version != version {
		return false
	}
	v.dirty = false
	return true
}
