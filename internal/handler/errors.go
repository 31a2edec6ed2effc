// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"diabetes-ingest-go/internal/apperror"
	"diabetes-ingest-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError 把分类错误写成 {"error", "detail"[, "required_columns"]}。
// 服务端错误只返回概要信息，底层原因写入日志。
func respondError(c *gin.Context, err error) {
	e := apperror.As(err)
	if e == nil {
		log.Error("unclassified error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "detail": "internal server error"})
		return
	}

	body := gin.H{"error": e.Kind.Code()}
	if e.Kind.IsClient() {
		body["detail"] = e.Error()
	} else {
		body["detail"] = e.Msg
	}
	if len(e.RequiredColumns) > 0 {
		body["required_columns"] = e.RequiredColumns
	}
	c.JSON(e.Kind.HTTPStatus(), body)
}
