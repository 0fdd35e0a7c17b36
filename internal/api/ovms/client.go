package ovms

import (
	"bufio"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultV2Port OVMS v2 协议端口
const DefaultV2Port = 6867

const handshakeTimeout = 30 * time.Second

// ConnState v2 连接状态
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateHandshaking
	StateEncrypted
)

func (s ConnState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateEncrypted:
		return "encrypted"
	}
	return "disconnected"
}

// V2Config v2 协议客户端配置
type V2Config struct {
	Server         string
	Port           int
	VehicleID      string
	Secret         string // 车辆服务器密码
	KeepAlive      time.Duration
	ReconnectDelay time.Duration
}

// V2Client OVMS v2 协议客户端
// 每次连接重新握手，断线后按固定间隔重连
type V2Client struct {
	logger    *zap.Logger
	cfg       V2Config
	callbacks Callbacks
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	random    io.Reader

	mu     sync.Mutex
	state  ConnState
	conn   net.Conn
	writer io.Writer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewV2Client 创建 v2 协议客户端
func NewV2Client(logger *zap.Logger, cfg V2Config, callbacks Callbacks) *V2Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultV2Port
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &V2Client{
		logger:    logger,
		cfg:       cfg,
		callbacks: callbacks,
		dial:      dialer.DialContext,
		random:    rand.Reader,
	}
}

// State 当前连接状态
func (c *V2Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start 启动连接循环
func (c *V2Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

// Stop 断开连接并停止重连
func (c *V2Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// RequestStatus 请求车辆上报状态
func (c *V2Client) RequestStatus(ctx context.Context) error {
	return c.send(fmt.Sprintf("%s C7,%s", messageTag, StatusVerb))
}

func (c *V2Client) run(ctx context.Context) {
	addr := net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port))
	for {
		err := c.session(ctx, addr)
		c.teardown()

		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("OVMS v2 connection closed, will retry",
			zap.String("server", addr),
			zap.Duration("delay", c.cfg.ReconnectDelay),
			zap.Error(err))
		c.callbacks.disconnect(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session 一次完整连接：拨号、握手、读取直到出错
func (c *V2Client) session(ctx context.Context, addr string) error {
	c.setState(StateHandshaking)

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r := bufio.NewReader(conn)
	rx, err := c.handshake(conn, r)
	if err != nil {
		return err
	}

	c.setState(StateEncrypted)
	c.logger.Info("OVMS v2 connected", zap.String("server", addr), zap.String("vehicle_id", c.cfg.VehicleID))
	c.callbacks.connect()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.keepAlive(sessCtx)
	}()

	return c.readLoop(cipher.StreamReader{S: rx, R: r})
}

// handshake 完成握手，返回接收方向的解密流
// 问候行之后缓冲区中的字节已是密文，读取端必须继续使用同一个 bufio.Reader
func (c *V2Client) handshake(conn net.Conn, r *bufio.Reader) (cipher.Stream, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	peerToken, err := ParseGreeting(line)
	if err != nil {
		return nil, err
	}

	clientToken, err := NewClientToken(c.random)
	if err != nil {
		return nil, err
	}
	keys := DeriveKeys(c.cfg.Secret, peerToken)
	digest := ResponseDigest(keys.Session, clientToken)

	if _, err := io.WriteString(conn, FormatReply(clientToken, digest, c.cfg.VehicleID)); err != nil {
		return nil, fmt.Errorf("write handshake reply: %w", err)
	}

	rx, err := newStream(keys.RX)
	if err != nil {
		return nil, err
	}
	tx, err := newStream(keys.TX)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.writer = cipher.StreamWriter{S: tx, W: conn}
	c.mu.Unlock()
	return rx, nil
}

func (c *V2Client) readLoop(r io.Reader) error {
	var decoder Decoder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		c.handleLine(&decoder, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.EOF
}

// handleLine 处理一条解密后的消息，格式错误的记录直接丢弃
func (c *V2Client) handleLine(decoder *Decoder, line string) {
	msg, err := ParseLine(line)
	if err != nil {
		c.logger.Warn("Dropping OVMS v2 message", zap.Error(err))
		return
	}

	switch msg.Type {
	case 'A':
		if err := c.send(messageTag + " a"); err != nil {
			c.logger.Debug("Ping reply failed", zap.Error(err))
		}
		return
	case 'a':
		return
	}

	readings, err := decoder.Decode(msg)
	if err != nil {
		c.logger.Warn("Dropping OVMS v2 message", zap.String("line", line), zap.Error(err))
		return
	}
	if readings == nil {
		c.logger.Debug("Unhandled OVMS v2 message", zap.String("type", string(msg.Type)))
		return
	}
	for _, rd := range readings {
		c.callbacks.metric(rd.Key, rd.Raw)
	}
}

func (c *V2Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(messageTag + " A"); err != nil {
				c.logger.Debug("Keep-alive failed", zap.Error(err))
				return
			}
		}
	}
}

// send 加密并写出一行
func (c *V2Client) send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEncrypted || c.writer == nil {
		return ErrNotConnected
	}
	if _, err := io.WriteString(c.writer, line+"\r\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (c *V2Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// teardown 丢弃连接和加密状态
func (c *V2Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateDisconnected
	c.writer = nil
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
