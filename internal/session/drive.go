package session

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/langchou/ovmsgazer/internal/models"
)

// DrivePhase 行程状态
type DrivePhase int

const (
	DriveIdle DrivePhase = iota
	DriveActive
	DriveCoolingDown
)

func (p DrivePhase) String() string {
	switch p {
	case DriveActive:
		return "active"
	case DriveCoolingDown:
		return "cooling_down"
	}
	return "idle"
}

// DriveAction 状态转换产生的副作用
type DriveAction int

const (
	DriveNone DriveAction = iota
	DriveStart
	DriveCooldown
	DriveResume
	DriveFinalize
)

func (a DriveAction) String() string {
	switch a {
	case DriveStart:
		return "start"
	case DriveCooldown:
		return "cooldown"
	case DriveResume:
		return "resume"
	case DriveFinalize:
		return "finalize"
	}
	return "none"
}

// DriveSignal 单次 tick 的行程判定输入
type DriveSignal struct {
	Now            time.Time
	Moving         bool // 点火（或未知）且有速度或挂入前进/倒车挡
	OdometerKnown  bool // 已收到大于 0 的里程表读数
	Blocked        bool // 充电会话进行中，本 tick 跳过行程判定
	ChargeDetected bool // 充电信号出现（插枪），冷却中直接结束行程
}

// NextDrive 纯状态转换函数
func NextDrive(phase DrivePhase, cooldownSince time.Time, sig DriveSignal, window time.Duration) (DrivePhase, DriveAction) {
	if sig.Blocked {
		return phase, DriveNone
	}

	switch phase {
	case DriveIdle:
		if sig.Moving && sig.OdometerKnown {
			return DriveActive, DriveStart
		}
	case DriveActive:
		if !sig.Moving {
			return DriveCoolingDown, DriveCooldown
		}
	case DriveCoolingDown:
		if sig.Moving {
			return DriveActive, DriveResume
		}
		if sig.ChargeDetected || sig.Now.Sub(cooldownSince) >= window {
			return DriveIdle, DriveFinalize
		}
	}
	return phase, DriveNone
}

// IsMoving 车辆是否处于行驶中
// 未上报点火状态时不视为熄火
func IsMoving(d *models.VehicleData) bool {
	if d.IsOn != nil && !*d.IsOn {
		return false
	}
	if d.Speed != nil && *d.Speed > 0 {
		return true
	}
	return gearEngaged(d.Gear)
}

// gearEngaged 挡位是否为前进/倒车
// OVMS 数值挡位: 0=空挡/驻车, >0 前进, <0 倒车
func gearEngaged(gear *string) bool {
	if gear == nil {
		return false
	}
	g := strings.ToUpper(strings.TrimSpace(*gear))
	switch g {
	case "D", "R", "B", "S":
		return true
	case "", "P", "N":
		return false
	}
	n, err := strconv.ParseFloat(g, 64)
	return err == nil && n != 0
}

// DriveSignalFor 根据实时数据构造判定输入，Blocked 由调用方设置
func DriveSignalFor(now time.Time, d *models.VehicleData) DriveSignal {
	return DriveSignal{
		Now:            now,
		Moving:         IsMoving(d),
		OdometerKnown:  d.Odometer != nil && *d.Odometer > 0,
		ChargeDetected: DetectCharge(d).Any(),
	}
}

// DriveConfig 行程判定参数
type DriveConfig struct {
	CooldownWindow time.Duration // 停车后多久视为行程结束
	MinDistanceKm  float64       // 低于该距离的行程被丢弃
	PathInterval   time.Duration // 轨迹点最小采样间隔
}

// DriveEvent 一次 tick 的结果，由调用方负责持久化
type DriveEvent struct {
	Action    DriveAction
	Drive     *models.Drive
	Discarded bool // Finalize 时距离不足，应删除而非保存
}

// DriveTracker 行程状态机
type DriveTracker struct {
	cfg           DriveConfig
	phase         DrivePhase
	cooldownSince time.Time
	lastPathAt    time.Time
	current       *models.Drive
}

// NewDriveTracker 创建行程状态机
func NewDriveTracker(cfg DriveConfig) *DriveTracker {
	return &DriveTracker{cfg: cfg}
}

// Phase 当前状态
func (t *DriveTracker) Phase() DrivePhase {
	return t.phase
}

// Current 进行中的行程（含冷却中），没有则为 nil
func (t *DriveTracker) Current() *models.Drive {
	return t.current
}

// CooldownSince 冷却开始时间
func (t *DriveTracker) CooldownSince() time.Time {
	return t.cooldownSince
}

// Tick 推进状态机
func (t *DriveTracker) Tick(sig DriveSignal, d *models.VehicleData, capacity float64) DriveEvent {
	next, action := NextDrive(t.phase, t.cooldownSince, sig, t.cfg.CooldownWindow)
	t.phase = next
	ev := DriveEvent{Action: action}

	switch action {
	case DriveStart:
		t.start(sig.Now, d)
	case DriveCooldown:
		t.cooldownSince = sig.Now
	case DriveResume:
		t.cooldownSince = time.Time{}
	case DriveFinalize:
		ev.Drive = t.current
		ev.Discarded = t.finalize(t.current, d, capacity)
		t.current = nil
		t.cooldownSince = time.Time{}
		t.lastPathAt = time.Time{}
		return ev
	}

	if t.phase == DriveActive {
		t.sample(sig.Now, d)
	}
	ev.Drive = t.current
	return ev
}

func (t *DriveTracker) start(now time.Time, d *models.VehicleData) {
	t.current = &models.Drive{
		StartTime:       now,
		StartOdometerKm: value(d.Odometer),
		StartSOC:        value(d.SOC),
		Path:            []models.PathPoint{},
	}
	if d.HasFix() {
		t.current.StartLatitude = clone(d.Latitude)
		t.current.StartLongitude = clone(d.Longitude)
	}
	t.lastPathAt = time.Time{}
	t.cooldownSince = time.Time{}
}

// sample 记录最高速度并按最小间隔追加轨迹点
func (t *DriveTracker) sample(now time.Time, d *models.VehicleData) {
	drive := t.current
	if drive == nil {
		return
	}

	if d.Speed != nil && (drive.SpeedMax == nil || *d.Speed > *drive.SpeedMax) {
		drive.SpeedMax = clone(d.Speed)
	}

	if !d.HasFix() {
		return
	}
	if !t.lastPathAt.IsZero() && now.Sub(t.lastPathAt) < t.cfg.PathInterval {
		return
	}

	drive.Path = append(drive.Path, models.PathPoint{
		Timestamp: now.UnixMilli(),
		Latitude:  *d.Latitude,
		Longitude: *d.Longitude,
		Speed:     value(d.Speed),
		SOC:       value(d.SOC),
		Elevation: value(d.Elevation),
	})
	t.lastPathAt = now
}

// finalize 计算行程统计，返回是否应丢弃
// 结束时间取冷却开始时刻，不计入停车后的等待时间
func (t *DriveTracker) finalize(drive *models.Drive, d *models.VehicleData, capacity float64) bool {
	end := t.cooldownSince
	drive.EndTime = &end
	drive.DurationMin = end.Sub(drive.StartTime).Minutes()

	endOdometer := drive.StartOdometerKm
	if d.Odometer != nil {
		endOdometer = *d.Odometer
	}
	drive.EndOdometerKm = &endOdometer
	drive.DistanceKm = math.Max(0, endOdometer-drive.StartOdometerKm)

	endSOC := drive.StartSOC
	if d.SOC != nil {
		endSOC = *d.SOC
	}
	drive.EndSOC = &endSOC
	drive.ConsumptionKWh = energyFromSOC(endSOC, drive.StartSOC, capacity)

	drive.EfficiencyWhKm = 0
	if drive.ConsumptionKWh > 0 && drive.DistanceKm > 0 {
		drive.EfficiencyWhKm = drive.ConsumptionKWh * 1000 / drive.DistanceKm
	}

	if d.HasFix() {
		drive.EndLatitude = clone(d.Latitude)
		drive.EndLongitude = clone(d.Longitude)
	}

	return drive.DistanceKm < t.cfg.MinDistanceKm
}
