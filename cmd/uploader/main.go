// Command uploader 通过 HTTP 接口上传本地 CSV 文件并打印导入结果与统计。
package main

import (
	"bytes"
	"context"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/pkg/log"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

func main() {
	api := flag.String("api", "http://localhost:8000", "base URL of the ingestion API")
	file := flag.String("file", "", "path to the CSV file to upload")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall request timeout")
	flag.Parse()

	log.Init("info", "console", "")
	defer log.Sync()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: uploader -api URL -file path/to/data.csv")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, &client{base: strings.TrimRight(*api, "/"), http: http.DefaultClient}, *file, os.Stdout); err != nil {
		log.Error("上传失败", err)
		os.Exit(1)
	}
}

// run 依次检查健康状态、上传文件、查询统计。
func run(ctx context.Context, c *client, path string, out io.Writer) error {
	var health model.HealthReport
	if err := c.getJSON(ctx, "/health", &health); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	fmt.Fprintf(out, "API: %s, object store: %s, database: %s\n", health.API, health.ObjectStoreStatus, health.DBStatus)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := c.upload(ctx, filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Fprintf(out, "Uploaded %s: %d records read, %d written, archived at %s\n",
		result.Filename, result.Records, result.DatabaseRecords, result.ArchiveKey)

	var stats model.ClassStats
	if err := c.getJSON(ctx, "/data/stats", &stats); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Fprintf(out, "Total records: %d\n", stats.TotalRecords)
	for label, count := range stats.ByClass {
		fmt.Fprintf(out, "  %s: %d\n", label, count)
	}
	return nil
}

type client struct {
	base string
	http *http.Client
}

func (c *client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *client) upload(ctx context.Context, filename string, data []byte) (*model.IngestionResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result model.IngestionResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do 发送请求；非 2xx 响应解析为 {"error", "detail"} 返回。
func (c *client) do(req *http.Request, v interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: HTTP %d %s: %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Error, apiErr.Detail)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
