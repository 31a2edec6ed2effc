package handler

import (
	"diabetes-ingest-go/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "diabetes-ingest"
	serviceVersion = "1.0.0"
)

// HealthHandler 提供服务信息与健康检查。
type HealthHandler struct {
	healthService service.HealthService
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(healthService service.HealthService) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

// Root 返回服务元数据和可用的接口列表。
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Diabetes data ingestion API",
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": gin.H{
			"upload":  "/upload",
			"health":  "/health",
			"stats":   "/data/stats",
			"events":  "/events",
			"metrics": "/metrics",
		},
	})
}

// Health 总是返回 200，各依赖的状态单独报告。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.healthService.Check(c.Request.Context()))
}
