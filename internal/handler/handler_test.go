package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"diabetes-ingest-go/internal/apperror"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/internal/schema"
	"diabetes-ingest-go/internal/service"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubIngestService struct {
	filename string
	raw      []byte
	result   *model.IngestionResult
	err      error
}

func (s *stubIngestService) Ingest(ctx context.Context, filename string, raw []byte) (*model.IngestionResult, error) {
	s.filename, s.raw = filename, raw
	return s.result, s.err
}

func (s *stubIngestService) Reingest(ctx context.Context, archiveKey string) (*model.IngestionResult, error) {
	return nil, errors.New("not used")
}

type stubStatsService struct {
	stats *model.ClassStats
	err   error
}

func (s *stubStatsService) ClassStats(ctx context.Context) (*model.ClassStats, error) {
	return s.stats, s.err
}

type stubHealthService struct{ report model.HealthReport }

func (s stubHealthService) Check(ctx context.Context) model.HealthReport { return s.report }

func newRouter(ingest service.IngestService, stats service.StatsService, health service.HealthService, maxUploadMB int64) *gin.Engine {
	r := gin.New()
	hh := NewHealthHandler(health)
	r.GET("/", hh.Root)
	r.GET("/health", hh.Health)
	r.POST("/upload", NewUploadHandler(ingest, maxUploadMB).Upload)
	r.GET("/data/stats", NewStatsHandler(stats).ClassStats)
	return r
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestUpload_Success(t *testing.T) {
	ingest := &stubIngestService{result: &model.IngestionResult{
		Filename: "sample.csv", Records: 3, ArchiveKey: "raw/20240301_100000_sample.csv", DatabaseRecords: 3,
	}}
	r := newRouter(ingest, &stubStatsService{}, stubHealthService{}, 1)

	body, contentType := multipartBody(t, "file", "sample.csv", "ID\n1\n")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	for _, key := range []string{"message", "filename", "records", "archive_key", "database_records"} {
		if _, ok := got[key]; !ok {
			t.Errorf("response missing %q: %v", key, got)
		}
	}
	if got["archive_key"] != "raw/20240301_100000_sample.csv" || got["records"] != float64(3) || got["database_records"] != float64(3) {
		t.Errorf("response = %v", got)
	}
	if ingest.filename != "sample.csv" || string(ingest.raw) != "ID\n1\n" {
		t.Errorf("service received %q / %q", ingest.filename, ingest.raw)
	}
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unsupported type", apperror.UnsupportedMediaType(`only .csv files are accepted, got "sample.txt"`), http.StatusBadRequest, "unsupported_media_type"},
		{"malformed", apperror.MalformedInput("empty CSV file", nil), http.StatusBadRequest, "malformed_input"},
		{"schema mismatch", apperror.SchemaMismatch("missing required columns: CLASS", schema.RequiredColumns), http.StatusBadRequest, "schema_mismatch"},
		{"storage write", apperror.StorageWrite("failed to archive", errors.New("secret internal detail")), http.StatusInternalServerError, "storage_write"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&stubIngestService{err: tt.err}, &stubStatsService{}, stubHealthService{}, 1)
			body, contentType := multipartBody(t, "file", "sample.csv", "x")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			got := decode(t, rec)
			if got["error"] != tt.wantCode {
				t.Errorf("error = %v, want %q", got["error"], tt.wantCode)
			}
			if detail, _ := got["detail"].(string); detail == "" || strings.Contains(detail, "secret internal detail") {
				t.Errorf("detail = %q", detail)
			}
		})
	}
}

func TestUpload_SchemaMismatchListsColumns(t *testing.T) {
	err := apperror.SchemaMismatch("missing required columns: CLASS", schema.RequiredColumns)
	r := newRouter(&stubIngestService{err: err}, &stubStatsService{}, stubHealthService{}, 1)
	body, contentType := multipartBody(t, "file", "sample.csv", "x")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	cols, _ := decode(t, rec)["required_columns"].([]interface{})
	if len(cols) != len(schema.RequiredColumns) {
		t.Errorf("required_columns = %v", cols)
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	ingest := &stubIngestService{}
	r := newRouter(ingest, &stubStatsService{}, stubHealthService{}, 1)
	body, contentType := multipartBody(t, "document", "sample.csv", "x")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ingest.filename != "" {
		t.Errorf("service called without a file")
	}
}

func TestUpload_TooLarge(t *testing.T) {
	ingest := &stubIngestService{}
	r := newRouter(ingest, &stubStatsService{}, stubHealthService{}, 1)
	body, contentType := multipartBody(t, "file", "big.csv", strings.Repeat("a", 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "malformed_input" {
		t.Errorf("error = %v, want malformed_input", got)
	}
	if ingest.filename != "" {
		t.Errorf("service called for an oversized upload")
	}
}

func TestClassStats(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		stats := &model.ClassStats{TotalRecords: 6, ByClass: map[string]int64{"Y": 4, "N": 2}}
		r := newRouter(&stubIngestService{}, &stubStatsService{stats: stats}, stubHealthService{}, 1)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/stats", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got model.ClassStats
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.TotalRecords != 6 || got.ByClass["Y"] != 4 || got.ByClass["N"] != 2 {
			t.Errorf("stats = %+v", got)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		err := apperror.StorageRead("failed to query record statistics", errors.New("no such table"))
		r := newRouter(&stubIngestService{}, &stubStatsService{err: err}, stubHealthService{}, 1)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/stats", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if got := decode(t, rec)["error"]; got != "storage_read" {
			t.Errorf("error = %v, want storage_read", got)
		}
	})
}

func TestHealthAndRoot(t *testing.T) {
	health := stubHealthService{report: model.HealthReport{
		API: "healthy", ObjectStoreStatus: "unhealthy: connection refused", DBStatus: "healthy",
	}}
	r := newRouter(&stubIngestService{}, &stubStatsService{}, health, 1)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200 even when degraded", rec.Code)
	}
	got := decode(t, rec)
	if got["api"] != "healthy" || got["object_store_status"] != "unhealthy: connection refused" || got["db_status"] != "healthy" {
		t.Errorf("/health = %v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/ status = %d", rec.Code)
	}
	if _, ok := decode(t, rec)["endpoints"]; !ok {
		t.Errorf("/ missing endpoints: %s", rec.Body.String())
	}
}
