package config

import (
	"log"
	"os"
	"time"

	"HibiscusGuard/pkg/logger"
	"HibiscusGuard/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`
	Log      logger.LogConfig
	Addr     string `env:"ADDR"`
	Mode     string `env:"MODE"`

	// 降级存储快照文件
	SnapshotPath string `env:"SNAPSHOT_PATH"`

	// 设备桥接共享密钥；为空则不开放设备触发入口
	DeviceSecret string `env:"DEVICE_SECRET"`

	// 通知相关
	NotifyDedupeTTL time.Duration `env:"NOTIFY_DEDUPE_TTL"`
	MailHost        string        `env:"MAIL_HOST"`
	MailPort        int           `env:"MAIL_PORT"`
	MailUsername    string        `env:"MAIL_USERNAME"`
	MailPassword    string        `env:"MAIL_PASSWORD"`
	MailFrom        string        `env:"MAIL_FROM"`
	SMSEndpoint     string        `env:"SMS_ENDPOINT"`
	SMSAccessKey    string        `env:"SMS_ACCESS_KEY"`
	WhatsAppBaseURL string        `env:"WHATSAPP_BASE_URL"`
	WhatsAppToken   string        `env:"WHATSAPP_TOKEN"`

	// 紧急会话
	LocationRefreshInterval time.Duration `env:"LOCATION_REFRESH_INTERVAL"`
	MatchDebounceWindow     time.Duration `env:"MATCH_DEBOUNCE_WINDOW"`
	StreamLinkBase          string        `env:"STREAM_LINK_BASE"`
	FallbackLat             float64       `env:"FALLBACK_LAT"`
	FallbackLng             float64       `env:"FALLBACK_LNG"`

	// 位置兜底 GeoIP 数据库
	GeoIPPath string `env:"GEOIP_PATH"`

	// 证据对象存储（MinIO）
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"`
	MinioBaseURL   string `env:"MINIO_PUBLIC_BASE"`

	// 缓存（去重账本后端）
	CacheType     string `env:"CACHE_TYPE"` // local / redis
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	// 备份
	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver:     util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:          util.GetEnv("DSN"),
		Addr:         util.GetEnvDefault("ADDR", ":8080"),
		Mode:         util.GetEnvDefault("MODE", "debug"),
		SnapshotPath: util.GetEnvDefault("SNAPSHOT_PATH", "data/guard_snapshot.json"),
		DeviceSecret: util.GetEnv("DEVICE_SECRET"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		NotifyDedupeTTL: durationEnv("NOTIFY_DEDUPE_TTL", 2*time.Minute),
		MailHost:        util.GetEnv("MAIL_HOST"),
		MailPort:        int(util.GetIntEnv("MAIL_PORT")),
		MailUsername:    util.GetEnv("MAIL_USERNAME"),
		MailPassword:    util.GetEnv("MAIL_PASSWORD"),
		MailFrom:        util.GetEnv("MAIL_FROM"),
		SMSEndpoint:     util.GetEnv("SMS_ENDPOINT"),
		SMSAccessKey:    util.GetEnv("SMS_ACCESS_KEY"),
		WhatsAppBaseURL: util.GetEnv("WHATSAPP_BASE_URL"),
		WhatsAppToken:   util.GetEnv("WHATSAPP_TOKEN"),

		LocationRefreshInterval: durationEnv("LOCATION_REFRESH_INTERVAL", 15*time.Second),
		MatchDebounceWindow:     durationEnv("MATCH_DEBOUNCE_WINDOW", 30*time.Second),
		StreamLinkBase:          util.GetEnvDefault("STREAM_LINK_BASE", "https://guard.hibiscus.fit/watch"),
		FallbackLat:             util.GetFloatEnv("FALLBACK_LAT"),
		FallbackLng:             util.GetFloatEnv("FALLBACK_LNG"),

		GeoIPPath: util.GetEnv("GEOIP_PATH"),

		MinioEndpoint:  util.GetEnv("MINIO_ENDPOINT"),
		MinioAccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
		MinioSecretKey: util.GetEnv("MINIO_SECRET_KEY"),
		MinioBucket:    util.GetEnvDefault("MINIO_BUCKET", "guard-evidence"),
		MinioUseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
		MinioBaseURL:   util.GetEnv("MINIO_PUBLIC_BASE"),

		CacheType:     util.GetEnvDefault("CACHE_TYPE", "local"),
		RedisAddr:     util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: util.GetEnv("REDIS_PASSWORD"),
		RedisDB:       int(util.GetIntEnv("REDIS_DB")),

		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvDefault("BACKUP_PATH", "backups"),
		BackupSchedule: util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
	}
	return nil
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := util.GetEnv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
