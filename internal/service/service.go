package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ovmsgazer/internal/api/ovms"
	"github.com/langchou/ovmsgazer/internal/config"
	"github.com/langchou/ovmsgazer/internal/metric"
	"github.com/langchou/ovmsgazer/internal/models"
	"github.com/langchou/ovmsgazer/internal/session"
	"github.com/langchou/ovmsgazer/internal/state"
)

const (
	storeTimeout   = 10 * time.Second
	geocodeTimeout = 5 * time.Second
)

// TelemetryStore 快照存储
type TelemetryStore interface {
	Insert(ctx context.Context, t *models.Telemetry) error
}

// DriveStore 行程存储
type DriveStore interface {
	Create(ctx context.Context, drive *models.Drive) error
	Complete(ctx context.Context, drive *models.Drive) error
	Delete(ctx context.Context, id int64) error
}

// ChargeStore 充电存储
type ChargeStore interface {
	Create(ctx context.Context, c *models.Charge) error
	UpdateProgress(ctx context.Context, c *models.Charge) error
	Complete(ctx context.Context, c *models.Charge) error
	Delete(ctx context.Context, id int64) error
}

// Geocoder 逆地理编码
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Transport 遥测数据来源
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	RequestStatus(ctx context.Context) error
}

// Options 服务参数
type Options struct {
	VehicleID     string
	FlushInterval time.Duration
	ProbeAfter    time.Duration // 充电中超过该时长无数据则主动请求状态
	Drive         session.DriveConfig
	Charge        session.ChargeConfig
	Capacity      session.CapacityDefaults
}

// OptionsFromConfig 从配置构造服务参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		VehicleID:     cfg.VehicleID,
		FlushInterval: cfg.FlushInterval,
		ProbeAfter:    cfg.ChargeProbeAfter,
		Drive: session.DriveConfig{
			CooldownWindow: cfg.DriveCooldown,
			MinDistanceKm:  cfg.MinDriveDistanceKm,
			PathInterval:   cfg.PathSampleInterval,
		},
		Charge: session.ChargeConfig{
			ChartInterval:  cfg.ChartSampleInterval,
			MaxChartPoints: cfg.MaxChartPoints,
			MinDuration:    cfg.MinChargeDuration,
			LineVoltage:    cfg.ChargeLineVoltage,
		},
		Capacity: session.CapacityDefaults{
			DefaultKWh:     cfg.DefaultCapacityKWh,
			NominalVoltage: cfg.NominalPackVoltage,
		},
	}
}

// VehicleService 车辆服务
// 指标由传输层回调写入实时状态；周期 tick 依次推进行程、充电状态机，再按需写库
type VehicleService struct {
	opts      Options
	logger    *zap.Logger
	telemetry TelemetryStore
	drives    DriveStore
	charges   ChargeStore
	geocoder  Geocoder
	transport Transport

	vehicle *state.Vehicle
	machine *state.Machine
	drive   *session.DriveTracker
	charge  *session.ChargeTracker
	now     func() time.Time

	flushing  atomic.Bool
	lastProbe time.Time

	mu          sync.RWMutex
	subscribers []chan *models.Telemetry
	latest      *models.Telemetry
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewVehicleService 创建车辆服务，geocoder 可为 nil
func NewVehicleService(
	opts Options,
	logger *zap.Logger,
	telemetry TelemetryStore,
	drives DriveStore,
	charges ChargeStore,
	geocoder Geocoder,
) *VehicleService {
	svc := &VehicleService{
		opts:      opts,
		logger:    logger,
		telemetry: telemetry,
		drives:    drives,
		charges:   charges,
		geocoder:  geocoder,
		vehicle:   state.NewVehicle(),
		drive:     session.NewDriveTracker(opts.Drive),
		charge:    session.NewChargeTracker(opts.Charge),
		now:       time.Now,
	}
	svc.machine = state.NewMachine(state.ModeOffline, svc.onModeChange)
	return svc
}

// SetTransport 设置传输层，需在 Start 之前调用
func (s *VehicleService) SetTransport(t Transport) {
	s.transport = t
}

// Callbacks 传输层回调
func (s *VehicleService) Callbacks() ovms.Callbacks {
	return ovms.Callbacks{
		OnMetric:     s.HandleMetric,
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
	}
}

// Start 启动传输层和 tick 循环
func (s *VehicleService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Vehicle service already running, skipping start")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting vehicle service", zap.String("vehicle_id", s.opts.VehicleID))

	if s.transport != nil {
		if err := s.transport.Start(ctx); err != nil {
			cancel()
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return fmt.Errorf("start transport: %w", err)
		}
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop 停止服务，等待进行中的写库完成
func (s *VehicleService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping vehicle service")
	if s.transport != nil {
		s.transport.Stop()
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("Vehicle service stopped")
}

// HandleMetric 写入一条指标，离线时收到指标即视为车辆上线
func (s *VehicleService) HandleMetric(key, raw string) {
	if s.machine.Current() == state.ModeOffline {
		s.trigger(state.EventWakeUp)
	}
	sample := metric.NewSample(key, raw)
	if !s.vehicle.Apply(sample, s.now()) && state.IsMapped(key) {
		s.logger.Debug("Metric value kept raw", zap.String("key", key), zap.String("raw", raw))
	}
}

// Subscribe 订阅写库成功的快照
func (s *VehicleService) Subscribe() <-chan *models.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *models.Telemetry, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// CurrentState 最近一次写库成功的快照，尚无数据时为 nil
func (s *VehicleService) CurrentState() *models.Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Mode 当前车辆模式
func (s *VehicleService) Mode() string {
	return s.machine.Current()
}

// ModeSince 进入当前模式的时间
func (s *VehicleService) ModeSince() time.Time {
	return s.machine.Since()
}

func (s *VehicleService) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick 执行一次周期处理
// 先行程后充电，插枪结束的行程可以在同一次 tick 中开始充电
func (s *VehicleService) Tick(ctx context.Context) {
	now := s.now()
	data := s.vehicle.Data()
	capacity := session.EffectiveCapacity(&data, s.opts.Capacity)

	s.stepDrive(ctx, now, &data, capacity)
	s.stepCharge(ctx, now, &data, capacity)
	s.heartbeat(ctx, now)
	s.flush(ctx, now)
}

// handleConnect 连接建立后车辆离开 offline
func (s *VehicleService) handleConnect() {
	s.logger.Info("Telemetry transport connected")
	if s.machine.Current() == state.ModeOffline {
		s.trigger(state.EventWakeUp)
	}
}

// handleDisconnect 断线时 parked 转为 offline，进行中的行程或充电不受影响
func (s *VehicleService) handleDisconnect(err error) {
	s.logger.Warn("Telemetry transport disconnected", zap.Error(err))
	if s.machine.Current() == state.ModeParked {
		s.trigger(state.EventGoOffline)
	}
}

// trigger 触发模式事件，非法转换只记录日志
func (s *VehicleService) trigger(event string) {
	if !s.machine.CanTransition(event) {
		s.logger.Debug("Skipping mode event",
			zap.String("event", event),
			zap.String("mode", s.machine.Current()))
		return
	}
	if err := s.machine.Trigger(event); err != nil {
		s.logger.Warn("Mode transition failed", zap.Error(err))
	}
}

func (s *VehicleService) onModeChange(from, to string) {
	s.logger.Info("Vehicle mode changed",
		zap.String("vehicle_id", s.opts.VehicleID),
		zap.String("from", from),
		zap.String("to", to))
}

// syncSessions 把进行中的会话 ID 写入实时状态
func (s *VehicleService) syncSessions() {
	var driveID, chargeID *int64
	if d := s.drive.Current(); d != nil && d.ID != 0 {
		id := d.ID
		driveID = &id
	}
	if c := s.charge.Current(); c != nil && c.ID != 0 {
		id := c.ID
		chargeID = &id
	}
	s.vehicle.SetSessions(driveID, chargeID)
}

func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storeTimeout)
}
