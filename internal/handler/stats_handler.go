package handler

import (
	"diabetes-ingest-go/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatsHandler 提供已导入数据的聚合统计。
type StatsHandler struct {
	statsService service.StatsService
}

// NewStatsHandler 创建一个新的 StatsHandler 实例。
func NewStatsHandler(statsService service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// ClassStats 返回 {total_records, by_class}。
func (h *StatsHandler) ClassStats(c *gin.Context) {
	stats, err := h.statsService.ClassStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
