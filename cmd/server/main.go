// Package main 是应用程序的入口点。
package main

import (
	"context"
	"diabetes-ingest-go/internal/config"
	"diabetes-ingest-go/internal/handler"
	"diabetes-ingest-go/internal/metrics"
	"diabetes-ingest-go/internal/middleware"
	"diabetes-ingest-go/internal/pipeline"
	"diabetes-ingest-go/internal/repository"
	"diabetes-ingest-go/internal/service"
	"diabetes-ingest-go/pkg/database"
	"diabetes-ingest-go/pkg/es"
	"diabetes-ingest-go/pkg/kafka"
	"diabetes-ingest-go/pkg/log"
	"diabetes-ingest-go/pkg/storage"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	// 1. 初始化配置，.env 只在本地开发时存在
	_ = godotenv.Load()
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储客户端，此时不要求依赖已就绪
	store, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 客户端初始化失败", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("数据库初始化失败", err)
	}
	rdb := database.NewRedis(cfg.Redis)
	reg := metrics.NewRegistry()

	// 4. 初始化 Repository
	recordRepo := repository.NewRecordRepository(db, cfg.Database.BatchSize)
	var statsCache repository.StatsCache
	if rdb != nil {
		statsCache = repository.NewStatsCache(rdb, cfg.Redis.StatsTTL)
	}

	// 5. 启动检查：存储桶与表结构，失败不阻止启动，由 /health 报告
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	reconciler := service.NewReconciler(store, cfg.Startup.AttemptTimeout, reg)
	if err := reconciler.EnsureReady(rootCtx, cfg.MinIO.Buckets(), cfg.Startup.MaxAttempts, cfg.Startup.Backoff); err != nil {
		log.Error("存储桶检查失败，服务继续启动", err)
	}
	if err := reconciler.EnsureSchema(rootCtx, recordRepo, cfg.Startup.MaxAttempts, cfg.Startup.Backoff); err != nil {
		log.Error("数据表迁移失败，服务继续启动", err)
	}

	// 6. 事件下游：WebSocket 推送总是启用，Kafka 与 Elasticsearch 可选
	eventsHandler := handler.NewEventsHandler()
	sinks := []service.EventSink{eventsHandler}
	var producer *kafka.Producer
	if len(cfg.Kafka.BrokerList()) > 0 {
		producer = kafka.NewProducer(cfg.Kafka)
		sinks = append(sinks, producer)
	} else {
		log.Info("未配置 Kafka，导入事件与重新导入已禁用")
	}
	if cfg.Elasticsearch.Addresses != "" {
		auditSink, err := es.NewAuditSink(cfg.Elasticsearch)
		if err != nil {
			log.Error("Elasticsearch 初始化失败，审计索引已禁用", err)
		} else {
			go func() {
				ctx, cancel := context.WithTimeout(rootCtx, cfg.Startup.AttemptTimeout)
				defer cancel()
				if err := auditSink.EnsureIndex(ctx); err != nil {
					log.Error("创建审计索引失败", err)
				}
			}()
			sinks = append(sinks, auditSink)
		}
	}

	// 7. 初始化 Service (依赖注入)
	ingestService := service.NewIngestService(store, recordRepo, cfg.MinIO, cfg.Database,
		service.WithStatsCache(statsCache),
		service.WithEventSinks(sinks...),
		service.WithMetrics(reg),
	)
	statsService := service.NewStatsService(recordRepo, statsCache, cfg.Database.Timeout)
	healthService := service.NewHealthService(store, recordRepo, cfg.Server.HealthTimeout)

	// 8. 启动后台 Kafka 消费者处理重新导入任务
	var consumers sync.WaitGroup
	if producer != nil {
		processor := pipeline.NewProcessor(ingestService)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			kafka.StartConsumer(rootCtx, cfg.Kafka, processor, rdb)
		}()
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(healthService)
	r.GET("/", healthHandler.Root)
	r.GET("/health", healthHandler.Health)
	r.POST("/upload", handler.NewUploadHandler(ingestService, cfg.Server.MaxUploadMB).Upload)
	r.GET("/data/stats", handler.NewStatsHandler(statsService).ClassStats)
	r.GET("/events", eventsHandler.Stream)
	r.GET("/metrics", gin.WrapH(reg.Handler()))

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接收请求，进行中的导入会在各自的存储超时内完成
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stop()
	consumers.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("服务已优雅关闭")
}
