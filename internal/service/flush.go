package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ovmsgazer/internal/models"
)

// flush 有新数据且没有进行中的写入时，异步写入一条快照
// 写入成功后才清除脏标记并通知订阅者，失败则下一次 tick 重试
func (s *VehicleService) flush(ctx context.Context, now time.Time) {
	if !s.vehicle.Dirty() {
		return
	}
	if !s.flushing.CompareAndSwap(false, true) {
		return
	}

	snap, version := s.vehicle.Snapshot(s.opts.VehicleID, now)
	s.decorate(snap)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.flushing.Store(false)

		// 停止服务时仍让最后一次写入完成
		ctx, cancel := storeContext(context.WithoutCancel(ctx))
		defer cancel()

		if err := s.telemetry.Insert(ctx, snap); err != nil {
			s.logger.Warn("Failed to write telemetry snapshot", zap.Error(err))
			return
		}
		s.vehicle.MarkClean(version)
		s.publish(snap)
	}()
}

// decorate 补充车辆模式；充电中以会话的状态和功率为准
func (s *VehicleService) decorate(snap *models.Telemetry) {
	snap.Mode = s.machine.Current()
	if s.charge.Current() == nil {
		return
	}
	charging := "charging"
	power := s.charge.Power(&snap.VehicleData)
	snap.ChargeState = &charging
	snap.Power = &power
}

// publish 记录最新快照并通知订阅者，慢消费者直接丢弃
func (s *VehicleService) publish(snap *models.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = snap
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
