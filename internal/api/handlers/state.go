package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetState 获取内存中最近一次写库成功的快照
func (h *Handler) GetState(c *gin.Context) {
	snap := h.state.CurrentState()
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Vehicle state not available yet",
			"mode":  h.state.Mode(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// GetLatestTelemetry 获取数据库中最新的快照，进程重启后也可用
func (h *Handler) GetLatestTelemetry(c *gin.Context) {
	snap, err := h.telemetry.LatestByVehicle(c.Request.Context(), h.vehicleID)
	if err != nil {
		h.lookupFailed(c, err, "Telemetry")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}
