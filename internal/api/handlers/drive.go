package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListDrives 获取行程列表
func (h *Handler) ListDrives(c *gin.Context) {
	page, perPage := pagination(c)
	ctx := c.Request.Context()

	drives, err := h.drives.ListByVehicle(ctx, h.vehicleID, perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("Failed to list drives", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list drives"})
		return
	}

	total, err := h.drives.CountByVehicle(ctx, h.vehicleID)
	if err != nil {
		h.logger.Warn("Failed to count drives", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": drives,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// GetDrive 获取行程详情（含轨迹）
func (h *Handler) GetDrive(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drive ID"})
		return
	}

	drive, err := h.drives.GetByID(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, err, "Drive")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": drive})
}
