package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListCharges 获取充电列表
func (h *Handler) ListCharges(c *gin.Context) {
	page, perPage := pagination(c)
	ctx := c.Request.Context()

	charges, err := h.charges.ListByVehicle(ctx, h.vehicleID, perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("Failed to list charges", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list charges"})
		return
	}

	total, err := h.charges.CountByVehicle(ctx, h.vehicleID)
	if err != nil {
		h.logger.Warn("Failed to count charges", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": charges,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// GetCharge 获取充电详情（含功率曲线）
func (h *Handler) GetCharge(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid charge ID"})
		return
	}

	charge, err := h.charges.GetByID(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, err, "Charge")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charge})
}
