// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 启动时加载一次，之后以值的形式显式传入各个组件。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Startup       StartupConfig       `mapstructure:"startup"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	BucketRaw       string        `mapstructure:"bucket_raw"`
	RequiredBuckets []string      `mapstructure:"required_buckets"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Buckets 返回启动时需要确保存在的全部存储桶，原始数据桶总是排在第一位。
func (c MinIOConfig) Buckets() []string {
	buckets := []string{c.BucketRaw}
	seen := map[string]struct{}{c.BucketRaw: {}}
	for _, b := range c.RequiredBuckets {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		buckets = append(buckets, b)
	}
	return buckets
}

// DatabaseConfig 存储关系型数据库的配置。
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Name         string        `mapstructure:"name"`
	SSLMode      string        `mapstructure:"sslmode"`
	BatchSize    int           `mapstructure:"batch_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

// DSN 按驱动类型拼接连接字符串。
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用统计缓存。
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不启用事件与重新导入。
type KafkaConfig struct {
	Brokers       string `mapstructure:"brokers"`
	EventsTopic   string `mapstructure:"events_topic"`
	ReingestTopic string `mapstructure:"reingest_topic"`
	GroupID       string `mapstructure:"group_id"`
	MaxAttempts   int64  `mapstructure:"max_attempts"`
}

// BrokerList 将逗号分隔的 broker 地址拆分为列表。
func (c KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Addresses 为空时不写入审计索引。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// StartupConfig 存储启动阶段依赖就绪检查的重试设置。
type StartupConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Backoff        time.Duration `mapstructure:"backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// defaults 列出所有配置项的默认值。
var defaults = map[string]interface{}{
	"server.port":             "8000",
	"server.mode":             "release",
	"server.max_upload_mb":    32,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "60s",
	"server.shutdown_timeout": "5s",
	"server.health_timeout":   "3s",

	"log.level":       "info",
	"log.format":      "json",
	"log.output_path": "",

	"minio.endpoint":          "minio:9000",
	"minio.access_key_id":     "minioadmin",
	"minio.secret_access_key": "minioadmin",
	"minio.use_ssl":           false,
	"minio.region":            "us-east-1",
	"minio.bucket_raw":        "raw-data",
	"minio.required_buckets":  []string{"models", "mlflow-artifacts"},
	"minio.timeout":           "30s",

	"database.driver":         "postgres",
	"database.host":           "postgres",
	"database.port":           5432,
	"database.user":           "postgres",
	"database.password":       "postgres",
	"database.name":           "diabetes_db",
	"database.sslmode":        "disable",
	"database.batch_size":     500,
	"database.timeout":        "30s",
	"database.max_idle_conns": 10,
	"database.max_open_conns": 50,

	"redis.addr":      "",
	"redis.password":  "",
	"redis.db":        0,
	"redis.stats_ttl": "30s",

	"kafka.brokers":        "",
	"kafka.events_topic":   "ingestion.completed",
	"kafka.reingest_topic": "ingestion.reingest",
	"kafka.group_id":       "diabetes-ingest-api",
	"kafka.max_attempts":   3,

	"elasticsearch.addresses":  "",
	"elasticsearch.username":   "",
	"elasticsearch.password":   "",
	"elasticsearch.index_name": "ingestion-audit",

	"startup.max_attempts":    10,
	"startup.backoff":         "2s",
	"startup.attempt_timeout": "5s",
}

// envAliases 保留原部署使用的环境变量名，优先于自动推导的名字。
var envAliases = map[string][]string{
	"minio.endpoint":          {"MINIO_ENDPOINT"},
	"minio.access_key_id":     {"MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY_ID"},
	"minio.secret_access_key": {"MINIO_SECRET_KEY", "MINIO_SECRET_ACCESS_KEY"},
	"minio.bucket_raw":        {"MINIO_BUCKET_RAW"},
	"database.host":           {"POSTGRES_HOST", "DATABASE_HOST"},
	"database.port":           {"POSTGRES_PORT", "DATABASE_PORT"},
	"database.user":           {"POSTGRES_USER", "DATABASE_USER"},
	"database.password":       {"POSTGRES_PASSWORD", "DATABASE_PASSWORD"},
	"database.name":           {"POSTGRES_DB", "DATABASE_NAME"},
}

// Load 读取默认值、可选的 YAML 文件以及环境变量，返回校验后的配置。
// configPath 为空或文件不存在时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		// 第一个名字之外还要保留自动推导出的名字
		auto := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key}, append(names, auto)...)...); err != nil {
			return Config{}, fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("检查配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 在启动前检查明显错误的配置。
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver 不支持: %q", c.Database.Driver))
	}
	if c.MinIO.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint 不能为空"))
	}
	if c.MinIO.BucketRaw == "" {
		errs = append(errs, errors.New("minio.bucket_raw 不能为空"))
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		errs = append(errs, errors.New("database.host 与 database.name 不能为空"))
	}
	if c.Database.BatchSize <= 0 {
		errs = append(errs, errors.New("database.batch_size 必须大于 0"))
	}
	if c.Startup.MaxAttempts <= 0 {
		errs = append(errs, errors.New("startup.max_attempts 必须大于 0"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb 必须大于 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("配置校验失败: %w", errors.Join(errs...))
	}
	return nil
}
