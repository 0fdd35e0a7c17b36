package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/ovmsgazer/internal/models"
	"github.com/langchou/ovmsgazer/internal/repository"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// StateSource 进程内实时状态
type StateSource interface {
	CurrentState() *models.Telemetry
	Mode() string
	ModeSince() time.Time
}

// TelemetryReader 快照查询
type TelemetryReader interface {
	LatestByVehicle(ctx context.Context, vehicleID string) (*models.Telemetry, error)
}

// DriveReader 行程查询
type DriveReader interface {
	GetByID(ctx context.Context, id int64) (*models.Drive, error)
	ListByVehicle(ctx context.Context, vehicleID string, limit, offset int) ([]*models.Drive, error)
	CountByVehicle(ctx context.Context, vehicleID string) (int64, error)
}

// ChargeReader 充电查询
type ChargeReader interface {
	GetByID(ctx context.Context, id int64) (*models.Charge, error)
	ListByVehicle(ctx context.Context, vehicleID string, limit, offset int) ([]*models.Charge, error)
	CountByVehicle(ctx context.Context, vehicleID string) (int64, error)
}

// Hub WebSocket 广播中心
type Hub interface {
	Serve(conn *websocket.Conn)
	ClientCount() int
}

// Handler HTTP 处理器
type Handler struct {
	logger    *zap.Logger
	vehicleID string
	state     StateSource
	telemetry TelemetryReader
	drives    DriveReader
	charges   ChargeReader
	hub       Hub
	upgrader  websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	vehicleID string,
	state StateSource,
	telemetry TelemetryReader,
	drives DriveReader,
	charges ChargeReader,
	hub Hub,
) *Handler {
	return &Handler{
		logger:    logger,
		vehicleID: vehicleID,
		state:     state,
		telemetry: telemetry,
		drives:    drives,
		charges:   charges,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 只读接口，允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 实时状态
		api.GET("/state", h.GetState)
		api.GET("/telemetry/latest", h.GetLatestTelemetry)

		// 行程
		api.GET("/drives", h.ListDrives)
		api.GET("/drives/:id", h.GetDrive)

		// 充电
		api.GET("/charges", h.ListCharges)
		api.GET("/charges/:id", h.GetCharge)
	}

	r.GET("/ws", h.HandleWebSocket)
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	h.hub.Serve(conn)
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"mode":       h.state.Mode(),
		"mode_since": h.state.ModeSince(),
		"ws_clients": h.hub.ClientCount(),
	})
}

// pagination 解析分页参数，非法值回退默认
func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return page, perPage
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// lookupFailed 查询失败的响应：记录不存在返回 404，其他错误返回 500
func (h *Handler) lookupFailed(c *gin.Context, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	h.logger.Error("Failed to load "+what, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load " + what})
}
