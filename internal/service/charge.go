package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ovmsgazer/internal/models"
	"github.com/langchou/ovmsgazer/internal/session"
	"github.com/langchou/ovmsgazer/internal/state"
)

// stepCharge 推进充电状态机并持久化副作用
// 行程进行中（含冷却）时不开始充电
func (s *VehicleService) stepCharge(ctx context.Context, now time.Time, data *models.VehicleData, capacity float64) {
	sig := session.ChargeSignal{
		Detected: session.DetectCharge(data).Any(),
		Blocked:  s.drive.Current() != nil,
	}

	location := ""
	if s.charge.Phase() == session.ChargeIdle && sig.Detected && !sig.Blocked {
		location = s.chargeLocation(ctx, data)
	}

	ev := s.charge.Tick(now, sig, data, capacity, location)
	switch ev.Action {
	case session.ChargeStart:
		s.startCharging(ctx, ev.Charge)
	case session.ChargeSample:
		if ev.Charted {
			s.updateChargeProgress(ctx, ev.Charge)
		}
	case session.ChargeFinalize:
		s.endCharging(ctx, ev.Charge, ev.Discarded)
	}
}

// chargeLocation 充电地点：上报的地点名，其次逆地理编码，最后坐标
func (s *VehicleService) chargeLocation(ctx context.Context, data *models.VehicleData) string {
	if s.geocoder == nil || data.LocationName != nil || !data.HasFix() {
		return session.LocationHint(data, "")
	}

	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	address, err := s.geocoder.ReverseGeocode(ctx, *data.Latitude, *data.Longitude)
	if err != nil {
		s.logger.Warn("Failed to geocode charge location",
			zap.Float64("lat", *data.Latitude),
			zap.Float64("lng", *data.Longitude),
			zap.Error(err))
	}
	return session.LocationHint(data, address)
}

// startCharging 开始充电
func (s *VehicleService) startCharging(ctx context.Context, charge *models.Charge) {
	s.trigger(state.EventStartCharging)
	charge.VehicleID = s.opts.VehicleID
	s.lastProbe = time.Time{}

	ctx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.charges.Create(ctx, charge); err != nil {
		s.logger.Error("Failed to create charge", zap.Error(err))
	} else {
		s.logger.Info("Started charging",
			zap.Int64("charge_id", charge.ID),
			zap.String("location", charge.Location),
			zap.Float64("start_soc", charge.StartSOC))
	}
	s.syncSessions()
}

// updateChargeProgress 充电中每个曲线点持久化一次进度
func (s *VehicleService) updateChargeProgress(ctx context.Context, charge *models.Charge) {
	ctx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.charges.UpdateProgress(ctx, charge); err != nil {
		s.logger.Warn("Failed to update charge progress", zap.Int64("charge_id", charge.ID), zap.Error(err))
	}
}

// endCharging 结束充电，时长不足的充电被删除
func (s *VehicleService) endCharging(ctx context.Context, charge *models.Charge, discarded bool) {
	s.trigger(state.EventStopCharging)
	defer s.syncSessions()

	ctx, cancel := storeContext(ctx)
	defer cancel()

	if discarded {
		if err := s.charges.Delete(ctx, charge.ID); err != nil {
			s.logger.Error("Failed to delete short charge", zap.Int64("charge_id", charge.ID), zap.Error(err))
			return
		}
		s.logger.Info("Discarded short charge", zap.Int64("charge_id", charge.ID))
		return
	}

	if err := s.charges.Complete(ctx, charge); err != nil {
		s.logger.Error("Failed to complete charge", zap.Int64("charge_id", charge.ID), zap.Error(err))
		return
	}
	s.logger.Info("Ended charging",
		zap.Int64("charge_id", charge.ID),
		zap.Float64("added_kwh", charge.AddedKWh),
		zap.Float64("duration_min", charge.DurationMin),
		zap.Float64("max_power_kw", charge.MaxPowerKW))
}

// heartbeat 充电中长时间没有新数据时请求车辆上报，每个阈值周期最多一次
func (s *VehicleService) heartbeat(ctx context.Context, now time.Time) {
	if s.charge.Current() == nil || s.transport == nil || s.opts.ProbeAfter <= 0 {
		return
	}
	if now.Sub(s.vehicle.LastUpdate()) < s.opts.ProbeAfter {
		return
	}
	if !s.lastProbe.IsZero() && now.Sub(s.lastProbe) < s.opts.ProbeAfter {
		return
	}
	s.lastProbe = now

	ctx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.transport.RequestStatus(ctx); err != nil {
		s.logger.Warn("Status probe failed", zap.Error(err))
		return
	}
	s.logger.Debug("Requested status refresh while charging")
}
