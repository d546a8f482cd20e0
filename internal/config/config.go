package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、主题、消费者组
	KafkaBrokers    []string
	OrderTopic      string
	DeadLetterTopic string
	// InvalidTopic 承接过期 / 无法解析 / 超过回灌轮数的消息
	InvalidTopic   string
	ConsumerGroup  string
	RequeuerGroup  string
	RelayBatchSize int
	RelayPoll      time.Duration

	// 消费侧重试与过期丢弃策略
	RetryBaseDelay   time.Duration
	RetryMultiplier  int
	RetryMaxAttempts int
	StalenessHorizon time.Duration
	// RequeueMaxCycles 死信回灌原主题的最大轮数，0 表示无限（源语义）。
	RequeueMaxCycles int

	// 防重记录保留时长
	DedupTTL time.Duration

	// 下单接口限流
	OrderRateLimit  int
	OrderRateWindow time.Duration
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DBPath:           getEnv("DB_PATH", "shop.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          0,
		KafkaBrokers:     splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OrderTopic:       getEnv("ORDER_TOPIC", "shop-order-events"),
		DeadLetterTopic:  getEnv("ORDER_DLT_TOPIC", "shop-order-events-dlt"),
		InvalidTopic:     getEnv("ORDER_INVALID_TOPIC", "shop-order-events-invalid"),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", "shop-order-consumer"),
		RequeuerGroup:    getEnv("REQUEUER_GROUP", "shop-order-requeuer"),
		RelayBatchSize:   16,
		RelayPoll:        500 * time.Millisecond,
		RetryBaseDelay:   time.Second,
		RetryMultiplier:  2,
		RetryMaxAttempts: 5,
		StalenessHorizon: 10 * 24 * time.Hour,
		RequeueMaxCycles: 0,
		DedupTTL:         30 * 24 * time.Hour,
		OrderRateLimit:   1000,
		OrderRateWindow:  time.Second,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	batch, err := getEnvInt("RELAY_BATCH_SIZE", cfg.RelayBatchSize)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RELAY_BATCH_SIZE: %w", err)
	}
	if batch <= 0 {
		return AppConfig{}, fmt.Errorf("RELAY_BATCH_SIZE must be > 0")
	}
	cfg.RelayBatchSize = batch

	pollMs, err := getEnvInt("RELAY_POLL_MS", int(cfg.RelayPoll.Milliseconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RELAY_POLL_MS: %w", err)
	}
	if pollMs <= 0 {
		return AppConfig{}, fmt.Errorf("RELAY_POLL_MS must be > 0")
	}
	cfg.RelayPoll = time.Duration(pollMs) * time.Millisecond

	baseMs, err := getEnvInt("RETRY_BASE_MS", int(cfg.RetryBaseDelay.Milliseconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RETRY_BASE_MS: %w", err)
	}
	if baseMs <= 0 {
		return AppConfig{}, fmt.Errorf("RETRY_BASE_MS must be > 0")
	}
	cfg.RetryBaseDelay = time.Duration(baseMs) * time.Millisecond

	mult, err := getEnvInt("RETRY_MULTIPLIER", cfg.RetryMultiplier)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RETRY_MULTIPLIER: %w", err)
	}
	if mult < 1 {
		return AppConfig{}, fmt.Errorf("RETRY_MULTIPLIER must be >= 1")
	}
	cfg.RetryMultiplier = mult

	attempts, err := getEnvInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
	}
	if attempts < 1 {
		return AppConfig{}, fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	cfg.RetryMaxAttempts = attempts

	staleDays, err := getEnvInt("STALENESS_DAYS", int(cfg.StalenessHorizon.Hours()/24))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STALENESS_DAYS: %w", err)
	}
	if staleDays <= 0 {
		return AppConfig{}, fmt.Errorf("STALENESS_DAYS must be > 0")
	}
	cfg.StalenessHorizon = time.Duration(staleDays) * 24 * time.Hour

	cycles, err := getEnvInt("REQUEUE_MAX_CYCLES", cfg.RequeueMaxCycles)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REQUEUE_MAX_CYCLES: %w", err)
	}
	if cycles < 0 {
		return AppConfig{}, fmt.Errorf("REQUEUE_MAX_CYCLES must be >= 0")
	}
	cfg.RequeueMaxCycles = cycles

	dedupDays, err := getEnvInt("DEDUP_TTL_DAYS", int(cfg.DedupTTL.Hours()/24))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid DEDUP_TTL_DAYS: %w", err)
	}
	if dedupDays <= 0 {
		return AppConfig{}, fmt.Errorf("DEDUP_TTL_DAYS must be > 0")
	}
	cfg.DedupTTL = time.Duration(dedupDays) * 24 * time.Hour

	rateLimit, err := getEnvInt("ORDER_RATE_LIMIT", cfg.OrderRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORDER_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("ORDER_RATE_LIMIT must be > 0")
	}
	cfg.OrderRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("ORDER_RATE_WINDOW_SEC", int(cfg.OrderRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORDER_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("ORDER_RATE_WINDOW_SEC must be > 0")
	}
	cfg.OrderRateWindow = time.Duration(rateWindowSec) * time.Second

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	for name, v := range map[string]string{
		"ORDER_TOPIC":         cfg.OrderTopic,
		"ORDER_DLT_TOPIC":     cfg.DeadLetterTopic,
		"ORDER_INVALID_TOPIC": cfg.InvalidTopic,
		"CONSUMER_GROUP":      cfg.ConsumerGroup,
		"REQUEUER_GROUP":      cfg.RequeuerGroup,
	} {
		if v == "" {
			return AppConfig{}, fmt.Errorf("%s must not be empty", name)
		}
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
