package session

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/langchou/ovmsgazer/internal/models"
)

// ChargePhase 充电状态
type ChargePhase int

const (
	ChargeIdle ChargePhase = iota
	ChargeActive
)

func (p ChargePhase) String() string {
	if p == ChargeActive {
		return "active"
	}
	return "idle"
}

// ChargeAction 状态转换产生的副作用
type ChargeAction int

const (
	ChargeNone ChargeAction = iota
	ChargeStart
	ChargeSample
	ChargeFinalize
)

func (a ChargeAction) String() string {
	switch a {
	case ChargeStart:
		return "start"
	case ChargeSample:
		return "sample"
	case ChargeFinalize:
		return "finalize"
	}
	return "none"
}

// activeChargeStates 视为正在充电的 v.c.state 取值
var activeChargeStates = map[string]bool{
	"charging": true,
	"topoff":   true,
	"heating":  true,
	"prepare":  true,
}

// ChargeSignals 三类充电信号
type ChargeSignals struct {
	Vendor bool // 厂商导引电流 > 0 且充电口已连接
	State  bool // 通用充电状态
	Flag   bool // 通用 v.c.charging 标志
}

// Any 任一信号成立即视为充电中
func (s ChargeSignals) Any() bool {
	return s.Vendor || s.State || s.Flag
}

// DetectCharge 从实时数据检测充电信号
func DetectCharge(d *models.VehicleData) ChargeSignals {
	var s ChargeSignals
	if d.PilotCurrent != nil && *d.PilotCurrent > 0 &&
		d.PlugStatus != nil && strings.EqualFold(strings.TrimSpace(*d.PlugStatus), "connected") {
		s.Vendor = true
	}
	if d.ChargeState != nil && activeChargeStates[strings.ToLower(strings.TrimSpace(*d.ChargeState))] {
		s.State = true
	}
	if d.Charging != nil && *d.Charging {
		s.Flag = true
	}
	return s
}

// ChargeSignal 单次 tick 的充电判定输入
type ChargeSignal struct {
	Detected bool
	Blocked  bool // 行程进行中，不允许开始充电
}

// NextCharge 纯状态转换函数
func NextCharge(phase ChargePhase, sig ChargeSignal) (ChargePhase, ChargeAction) {
	switch phase {
	case ChargeIdle:
		if sig.Detected && !sig.Blocked {
			return ChargeActive, ChargeStart
		}
	case ChargeActive:
		if sig.Detected {
			return ChargeActive, ChargeSample
		}
		return ChargeIdle, ChargeFinalize
	}
	return phase, ChargeNone
}

// ChargePower 当前充电功率 (kW，非负)
// 优先 v.c.power，其次 |v.b.power|，最后导引电流 × 线路电压估算
func ChargePower(d *models.VehicleData, lineVoltage float64) float64 {
	if d.ChargePower != nil {
		return math.Abs(*d.ChargePower)
	}
	if d.Power != nil {
		return math.Abs(*d.Power)
	}
	if d.PilotCurrent != nil && *d.PilotCurrent > 0 {
		volts := lineVoltage
		if d.ChargeVoltage != nil && *d.ChargeVoltage > 0 {
			volts = *d.ChargeVoltage
		}
		return *d.PilotCurrent * volts / 1000
	}
	return 0
}

// LocationHint 充电地点描述，geocoded 为逆地理编码结果，可为空
func LocationHint(d *models.VehicleData, geocoded string) string {
	if d.LocationName != nil && strings.TrimSpace(*d.LocationName) != "" {
		return strings.TrimSpace(*d.LocationName)
	}
	if geocoded != "" {
		return geocoded
	}
	if d.HasFix() {
		return fmt.Sprintf("%.6f,%.6f", *d.Latitude, *d.Longitude)
	}
	return "Unknown"
}

// ChargeConfig 充电判定参数
type ChargeConfig struct {
	ChartInterval  time.Duration // 功率曲线采样间隔
	MaxChartPoints int           // 曲线最多保留的点数
	MinDuration    time.Duration // 低于该时长的充电被丢弃
	LineVoltage    float64       // 仅有导引电流时使用的线路电压
}

// ChargeEvent 一次 tick 的结果
type ChargeEvent struct {
	Action    ChargeAction
	Charge    *models.Charge
	Charted   bool // 本次追加了曲线点，需要持久化进度
	Discarded bool // Finalize 时时长不足，应删除
}

// ChargeTracker 充电状态机
type ChargeTracker struct {
	cfg         ChargeConfig
	phase       ChargePhase
	current     *models.Charge
	powerSum    float64
	powerCount  int
	lastChartAt time.Time
}

// NewChargeTracker 创建充电状态机
func NewChargeTracker(cfg ChargeConfig) *ChargeTracker {
	return &ChargeTracker{cfg: cfg}
}

// Phase 当前状态
func (t *ChargeTracker) Phase() ChargePhase {
	return t.phase
}

// Current 进行中的充电，没有则为 nil
func (t *ChargeTracker) Current() *models.Charge {
	return t.current
}

// Power 进行中充电的最新功率
func (t *ChargeTracker) Power(d *models.VehicleData) float64 {
	return ChargePower(d, t.cfg.LineVoltage)
}

// Tick 推进状态机，location 仅在开始充电时使用
func (t *ChargeTracker) Tick(now time.Time, sig ChargeSignal, d *models.VehicleData, capacity float64, location string) ChargeEvent {
	next, action := NextCharge(t.phase, sig)
	t.phase = next
	ev := ChargeEvent{Action: action}

	switch action {
	case ChargeStart:
		t.start(now, d, location)
		ev.Charted = t.sample(now, d, capacity)
	case ChargeSample:
		ev.Charted = t.sample(now, d, capacity)
	case ChargeFinalize:
		ev.Discarded = t.finalize(now, d, capacity)
		ev.Charge = t.current
		t.current = nil
		return ev
	}

	ev.Charge = t.current
	return ev
}

func (t *ChargeTracker) start(now time.Time, d *models.VehicleData, location string) {
	t.current = &models.Charge{
		StartTime: now,
		Location:  location,
		StartSOC:  value(d.SOC),
		ChartData: []models.ChargePoint{},
	}
	if d.HasFix() {
		t.current.Latitude = clone(d.Latitude)
		t.current.Longitude = clone(d.Longitude)
	}
	t.powerSum = 0
	t.powerCount = 0
	t.lastChartAt = time.Time{}
}

// sample 累计功率，到达采样间隔时追加曲线点并返回 true
func (t *ChargeTracker) sample(now time.Time, d *models.VehicleData, capacity float64) bool {
	charge := t.current
	power := ChargePower(d, t.cfg.LineVoltage)

	t.powerSum += power
	t.powerCount++
	if power > charge.MaxPowerKW {
		charge.MaxPowerKW = power
	}
	t.progress(now, d, capacity)

	if !t.lastChartAt.IsZero() && now.Sub(t.lastChartAt) < t.cfg.ChartInterval {
		return false
	}

	charge.ChartData = append(charge.ChartData, models.ChargePoint{
		Timestamp: now.UnixMilli(),
		Time:      now.Format("15:04"),
		Power:     power,
		SOC:       value(d.SOC),
	})
	if t.cfg.MaxChartPoints > 0 && len(charge.ChartData) > t.cfg.MaxChartPoints {
		charge.ChartData = charge.ChartData[len(charge.ChartData)-t.cfg.MaxChartPoints:]
	}
	t.lastChartAt = now
	return true
}

// progress 刷新运行中的统计值
func (t *ChargeTracker) progress(now time.Time, d *models.VehicleData, capacity float64) {
	charge := t.current
	endSOC := charge.StartSOC
	if d.SOC != nil {
		endSOC = *d.SOC
	}
	charge.EndSOC = &endSOC
	charge.AddedKWh = addedEnergy(charge.StartSOC, endSOC, d, capacity)
	charge.DurationMin = now.Sub(charge.StartTime).Minutes()
	if t.powerCount > 0 {
		charge.AvgPowerKW = t.powerSum / float64(t.powerCount)
	}
}

// finalize 计算最终统计，返回是否应丢弃
func (t *ChargeTracker) finalize(now time.Time, d *models.VehicleData, capacity float64) bool {
	t.progress(now, d, capacity)
	end := now
	t.current.EndTime = &end
	return now.Sub(t.current.StartTime) < t.cfg.MinDuration
}

// addedEnergy 充入电量，优先使用车辆上报值，SoC 抖动下降时不为负
func addedEnergy(startSOC, endSOC float64, d *models.VehicleData, capacity float64) float64 {
	if d.ChargeKWh != nil && *d.ChargeKWh > 0 {
		return *d.ChargeKWh
	}
	return math.Max(0, energyFromSOC(startSOC, endSOC, capacity))
}
