package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ovmsgazer/internal/models"
	"github.com/langchou/ovmsgazer/internal/session"
	"github.com/langchou/ovmsgazer/internal/state"
)

// stepDrive 推进行程状态机并持久化副作用
// 充电进行中时跳过行程判定
func (s *VehicleService) stepDrive(ctx context.Context, now time.Time, data *models.VehicleData, capacity float64) {
	sig := session.DriveSignalFor(now, data)
	sig.Blocked = s.charge.Current() != nil

	ev := s.drive.Tick(sig, data, capacity)
	switch ev.Action {
	case session.DriveStart:
		s.startDrive(ctx, ev.Drive)
	case session.DriveCooldown:
		s.logger.Debug("Drive cooling down", zap.Int64("drive_id", ev.Drive.ID))
	case session.DriveResume:
		s.logger.Debug("Drive resumed", zap.Int64("drive_id", ev.Drive.ID))
	case session.DriveFinalize:
		s.endDrive(ctx, ev.Drive, ev.Discarded)
	}
}

// startDrive 开始行程
func (s *VehicleService) startDrive(ctx context.Context, drive *models.Drive) {
	s.trigger(state.EventStartDriving)
	drive.VehicleID = s.opts.VehicleID

	ctx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.drives.Create(ctx, drive); err != nil {
		s.logger.Error("Failed to create drive", zap.Error(err))
	} else {
		s.logger.Info("Started drive",
			zap.Int64("drive_id", drive.ID),
			zap.Float64("start_odometer_km", drive.StartOdometerKm))
	}
	s.syncSessions()
}

// endDrive 结束行程，距离不足的行程被删除
func (s *VehicleService) endDrive(ctx context.Context, drive *models.Drive, discarded bool) {
	s.trigger(state.EventStopDriving)
	defer s.syncSessions()

	ctx, cancel := storeContext(ctx)
	defer cancel()

	if discarded {
		if err := s.drives.Delete(ctx, drive.ID); err != nil {
			s.logger.Error("Failed to delete short drive", zap.Int64("drive_id", drive.ID), zap.Error(err))
			return
		}
		s.logger.Info("Discarded short drive",
			zap.Int64("drive_id", drive.ID),
			zap.Float64("distance_km", drive.DistanceKm))
		return
	}

	if err := s.drives.Complete(ctx, drive); err != nil {
		s.logger.Error("Failed to complete drive", zap.Int64("drive_id", drive.ID), zap.Error(err))
		return
	}
	s.logger.Info("Ended drive",
		zap.Int64("drive_id", drive.ID),
		zap.Float64("distance_km", drive.DistanceKm),
		zap.Float64("duration_min", drive.DurationMin),
		zap.Float64("consumption_kwh", drive.ConsumptionKWh),
		zap.Float64("efficiency_wh_km", drive.EfficiencyWhKm))
}
