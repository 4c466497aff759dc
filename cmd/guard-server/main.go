package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"HibiscusGuard/internal/coordinator"
	"HibiscusGuard/internal/dedupe"
	handlers "HibiscusGuard/internal/handler"
	"HibiscusGuard/internal/matcher"
	"HibiscusGuard/internal/relay"
	"HibiscusGuard/internal/store"
	"HibiscusGuard/pkg/backup"
	"HibiscusGuard/pkg/cache"
	"HibiscusGuard/pkg/config"
	"HibiscusGuard/pkg/location"
	"HibiscusGuard/pkg/logger"
	"HibiscusGuard/pkg/middleware"
	"HibiscusGuard/pkg/notification"
	"HibiscusGuard/pkg/sse"
	"HibiscusGuard/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1) 配置与日志
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig
	logger.Init(cfg.Log)
	defer logger.Sync()

	// 2) 存储：主库 + 内存降级兜底
	fallback := store.NewMemoryStore(cfg.SnapshotPath)
	var st *store.Resilient
	primary, err := store.NewGormStore(cfg.DBDriver, cfg.DSN)
	if err != nil {
		// 主库起不来不拦截启动，直接降级跑
		logger.Error("primary storage unavailable, starting degraded", zap.Error(err))
		st = store.NewResilient(nil, fallback)
	} else {
		st = store.NewResilient(primary, fallback)
	}
	defer st.Close()

	// 3) 去重账本的缓存后端
	cacheClient, err := cache.New(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Local: cache.LocalConfig{
			DefaultExpiration: cfg.NotifyDedupeTTL,
			CleanupInterval:   time.Minute,
		},
	})
	if err != nil {
		log.Fatalf("init cache: %v", err)
	}
	defer cacheClient.Close()
	dd := dedupe.New(cacheClient, cfg.NotifyDedupeTTL)

	// 4) 位置链路与证据存储
	loc := location.NewProvider(cfg.GeoIPPath, cfg.FallbackLat, cfg.FallbackLng)
	defer loc.Close()
	evidence := storage.NewEvidenceStore(cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioBaseURL)

	// 5) 通知渠道；未配置的渠道不注册
	var senders []notification.Sender
	if cfg.MailHost != "" {
		senders = append(senders, notification.NewMailSender(notification.MailConfig{
			Host:     cfg.MailHost,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			From:     cfg.MailFrom,
		}))
	}
	if cfg.SMSEndpoint != "" {
		smsCfg := notification.SMSConfig{Endpoint: cfg.SMSEndpoint, AccessKey: cfg.SMSAccessKey, SignName: "HibiscusGuard"}
		senders = append(senders, notification.NewSMSSender(smsCfg, notification.NewHTTPSMSClient(smsCfg)))
	}
	if cfg.WhatsAppBaseURL != "" {
		senders = append(senders, notification.NewWhatsAppSender(notification.WhatsAppConfig{
			BaseURL: cfg.WhatsAppBaseURL,
			Token:   cfg.WhatsAppToken,
		}))
	}
	if len(senders) == 0 {
		logger.Warn("no notification channel configured, alerts will only be persisted")
	}

	// 6) 信令中继与紧急会话协调器
	hub := relay.NewHub(relay.DefaultConfig())
	events := sse.NewHub(0)
	m := matcher.New(matcher.DefaultConfig())
	deb := matcher.NewDebouncer(cfg.MatchDebounceWindow)
	coord := coordinator.New(coordinator.Config{
		LocationRefreshInterval: cfg.LocationRefreshInterval,
		DedupeTTL:               cfg.NotifyDedupeTTL,
		StreamLinkBase:          cfg.StreamLinkBase,
	}, st, dd, hub, events, senders, loc, m, deb)

	// 7) 定时备份
	if cfg.BackupEnabled {
		backupCron := backup.StartBackupScheduler()
		defer backupCron.Stop()
	}

	// 8) 路由
	gin.SetMode(cfg.Mode)
	r := gin.Default()
	r.Use(middleware.AccessLog())
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rate:      "120-M",
		SkipPaths: []string{"/health", "/metrics"},
	}))
	h := handlers.New(st, coord, loc, evidence, events)
	h.RegisterRoutes(r, cfg.DeviceSecret)
	relay.RegisterRoutes(r, relay.NewHandler(hub))

	// 9) 启动 + 优雅退出
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}
	go func() {
		logger.Info("guard server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.Stop()
	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown: ", err)
	}
}
