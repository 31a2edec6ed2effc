package handler

import (
	"diabetes-ingest-go/internal/apperror"
	"diabetes-ingest-go/internal/service"
	"diabetes-ingest-go/pkg/log"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责 CSV 文件上传。
type UploadHandler struct {
	ingestService service.IngestService
	maxBytes      int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。maxUploadMB <= 0 表示不限制大小。
func NewUploadHandler(ingestService service.IngestService, maxUploadMB int64) *UploadHandler {
	return &UploadHandler{ingestService: ingestService, maxBytes: maxUploadMB << 20}
}

// Upload 处理 multipart 表单中名为 file 的 CSV 文件。
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			respondError(c, apperror.MalformedInput(fmt.Sprintf("file exceeds the %d MB upload limit", h.maxBytes>>20), nil))
			return
		}
		respondError(c, apperror.MalformedInput(`multipart form field "file" is required`, err))
		return
	}
	log.Infof("[UploadHandler] 收到上传请求, 文件名: %s, 大小: %d", fileHeader.Filename, fileHeader.Size)

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, apperror.MalformedInput("cannot open uploaded file", err))
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		respondError(c, apperror.MalformedInput("cannot read uploaded file", err))
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), fileHeader.Filename, raw)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "File ingested successfully",
		"filename":         result.Filename,
		"records":          result.Records,
		"archive_key":      result.ArchiveKey,
		"database_records": result.DatabaseRecords,
	})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart 包在部分版本中不会包装底层错误
	return strings.Contains(err.Error(), "request body too large")
}
