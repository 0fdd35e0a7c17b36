package ovms

import "context"

// Callbacks 传输层事件回调
type Callbacks struct {
	OnMetric     func(key, raw string) // 收到一条指标
	OnConnect    func()                // 连接（或握手）成功
	OnDisconnect func(err error)       // 连接断开
}

// Transport 遥测数据来源，同一进程只启用一种
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	RequestStatus(ctx context.Context) error
}

// StatusVerb 请求车辆上报状态的命令
const StatusVerb = "stat"

func (c Callbacks) metric(key, raw string) {
	if c.OnMetric != nil {
		c.OnMetric(key, raw)
	}
}

func (c Callbacks) connect() {
	if c.OnConnect != nil {
		c.OnConnect()
	}
}

func (c Callbacks) disconnect(err error) {
	if c.OnDisconnect != nil {
		c.OnDisconnect(err)
	}
}

var (
	_ Transport = (*MQTTClient)(nil)
	_ Transport = (*V2Client)(nil)
)
