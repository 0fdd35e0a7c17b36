package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 车辆模式常量
const (
	ModeOffline  = "offline"
	ModeParked   = "parked"
	ModeDriving  = "driving"
	ModeCharging = "charging"
)

// 事件常量
const (
	EventWakeUp        = "wake_up"
	EventGoOffline     = "go_offline"
	EventStartDriving  = "start_driving"
	EventStopDriving   = "stop_driving"
	EventStartCharging = "start_charging"
	EventStopCharging  = "stop_charging"
)

// Machine 车辆模式状态机
// 行程和充电只能从 parked/offline 开始，保证同一时刻最多只有一个进行中的会话
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	since         time.Time
	onStateChange func(from, to string)
}

// NewMachine 创建状态机
func NewMachine(initialState string, onStateChange func(from, to string)) *Machine {
	if initialState == "" {
		initialState = ModeOffline
	}

	m := &Machine{
		onStateChange: onStateChange,
		since:         time.Now(),
	}

	m.fsm = fsm.NewFSM(
		initialState,
		fsm.Events{
			{Name: EventWakeUp, Src: []string{ModeOffline}, Dst: ModeParked},
			{Name: EventGoOffline, Src: []string{ModeParked}, Dst: ModeOffline},

			{Name: EventStartDriving, Src: []string{ModeParked, ModeOffline}, Dst: ModeDriving},
			{Name: EventStopDriving, Src: []string{ModeDriving}, Dst: ModeParked},

			{Name: EventStartCharging, Src: []string{ModeParked, ModeOffline}, Dst: ModeCharging},
			{Name: EventStopCharging, Src: []string{ModeCharging}, Dst: ModeParked},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 获取当前模式
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Since 进入当前模式的时间
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.since = time.Now()
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
