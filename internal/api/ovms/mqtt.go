package ovms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/ovmsgazer/internal/metric"
)

// ErrNotConnected 传输层尚未连接
var ErrNotConnected = errors.New("ovms: not connected")

const (
	defaultMQTTPort    = 1883
	mqttNetworkTimeout = 10 * time.Second
)

// MQTTConfig OVMS MQTT 服务器配置
type MQTTConfig struct {
	Server    string // host、host:port 或完整 URL
	Username  string // 同时作为主题中的用户段
	Password  string
	Prefix    string // 主题前缀，默认 ovms
	VehicleID string
	ClientID  string // 为空时随机生成
}

// MQTTClient 通过 OVMS MQTT 服务器订阅车辆指标
type MQTTClient struct {
	logger    *zap.Logger
	cfg       MQTTConfig
	callbacks Callbacks
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.RWMutex
	client mqtt.Client
}

// NewMQTTClient 创建 MQTT 传输
func NewMQTTClient(logger *zap.Logger, cfg MQTTConfig, callbacks Callbacks) *MQTTClient {
	if cfg.Prefix == "" {
		cfg.Prefix = "ovms"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "ovmsgazer-" + uuid.NewString()[:8]
	}
	return &MQTTClient{
		logger:    logger,
		cfg:       cfg,
		callbacks: callbacks,
		newClient: mqtt.NewClient,
	}
}

// BrokerURL 规范化服务器地址为 paho 可用的 URL
func BrokerURL(server string) string {
	server = strings.TrimSpace(server)
	switch {
	case strings.HasPrefix(server, "mqtt://"):
		return "tcp://" + strings.TrimPrefix(server, "mqtt://")
	case strings.HasPrefix(server, "mqtts://"):
		return "ssl://" + strings.TrimPrefix(server, "mqtts://")
	case strings.Contains(server, "://"):
		return server
	case strings.Contains(server, ":"):
		return "tcp://" + server
	}
	return fmt.Sprintf("tcp://%s:%d", server, defaultMQTTPort)
}

// MetricTopic 车辆指标订阅主题
func (c *MQTTClient) MetricTopic() string {
	return fmt.Sprintf("%s/%s/%s/metric/#", c.cfg.Prefix, c.cfg.Username, c.cfg.VehicleID)
}

// commandTopic 命令主题，每条命令使用新的 id
func (c *MQTTClient) commandTopic(commandID string) string {
	return fmt.Sprintf("%s/%s/%s/client/%s/command/%s",
		c.cfg.Prefix, c.cfg.Username, c.cfg.VehicleID, c.cfg.ClientID, commandID)
}

// Start 连接服务器，断线后由 paho 自动重连并重新订阅
func (c *MQTTClient) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(c.cfg.Server)).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(mqttNetworkTimeout).
		SetKeepAlive(30 * time.Second).
		SetWriteTimeout(mqttNetworkTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	client := c.newClient(opts)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.logger.Info("Connecting to OVMS MQTT server",
		zap.String("broker", BrokerURL(c.cfg.Server)),
		zap.String("vehicle_id", c.cfg.VehicleID))

	token := client.Connect()
	go func() {
		select {
		case <-ctx.Done():
		case <-token.Done():
			if err := token.Error(); err != nil {
				c.logger.Warn("MQTT connect failed", zap.Error(err))
			}
		}
	}()
	return nil
}

// Stop 断开连接
func (c *MQTTClient) Stop() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
}

// RequestStatus 向车辆发送状态刷新命令
func (c *MQTTClient) RequestStatus(ctx context.Context) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	topic := c.commandTopic(uuid.NewString())
	if err := tokenWait(ctx, client.Publish(topic, 0, false, StatusVerb), "publish command"); err != nil {
		return err
	}
	c.logger.Debug("Status probe sent", zap.String("topic", topic))
	return nil
}

// onConnect 每次（重）连接后重新订阅
func (c *MQTTClient) onConnect(client mqtt.Client) {
	topic := c.MetricTopic()
	ctx, cancel := context.WithTimeout(context.Background(), mqttNetworkTimeout)
	defer cancel()

	if err := tokenWait(ctx, client.Subscribe(topic, 0, c.handleMessage), "subscribe "+topic); err != nil {
		c.logger.Warn("MQTT subscribe failed", zap.Error(err))
		return
	}

	c.logger.Info("MQTT connected", zap.String("topic", topic))
	c.callbacks.connect()
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", zap.Error(err))
	c.callbacks.disconnect(err)
}

// handleMessage 主题转换为指标 key 后交给回调
func (c *MQTTClient) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	key, ok := metric.KeyFromTopic(msg.Topic())
	if !ok {
		c.logger.Debug("Ignoring non-metric topic", zap.String("topic", msg.Topic()))
		return
	}
	c.callbacks.metric(key, string(msg.Payload()))
}

func tokenWait(ctx context.Context, t mqtt.Token, tag string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", tag, ctx.Err())
	case <-t.Done():
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("%s: %w", tag, err)
	}
	return nil
}
