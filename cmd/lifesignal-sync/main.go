package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "lifesignal-sync/common/logger"
	rediscommon "lifesignal-sync/common/redis"
	"lifesignal-sync/internal/config"
	"lifesignal-sync/internal/notification"
	"lifesignal-sync/internal/service"

	"go.uber.org/zap"
)

const serviceName = "lifesignal-sync"

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLoggerWithOptions(logpkg.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: serviceName,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "export-history":
			if len(os.Args) < 3 {
				fmt.Fprintf(os.Stderr, "Usage: %s export-history <file.xlsx>\n", os.Args[0])
				os.Exit(2)
			}
			if err := exportHistory(cfg, os.Args[2]); err != nil {
				log.Fatal("Failed to export notification history", zap.Error(err))
			}
			log.Info("Notification history exported", zap.String("file", os.Args[2]))
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			os.Exit(2)
		}
	}

	log.Info("Starting lifesignal-sync service")

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建服务
	svc, err := service.NewFromConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create sync service", zap.Error(err))
	}

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 启动服务（在 goroutine 中）
	errChan := make(chan error, 1)
	go func() {
		if err := svc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// 等待信号或错误
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
		cancel()
	}

	// 停止服务
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
}

// exportHistory 只有 Redis 历史跨进程保留，内存历史没有可导出的内容
func exportHistory(cfg *config.Config, path string) error {
	if cfg.Notification.History != "redis" {
		return fmt.Errorf("export-history requires NOTIFICATION_HISTORY=redis, got %q", cfg.Notification.History)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(client)
	if err := rediscommon.Ping(ctx, client); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	history := notification.NewRedisHistory(client, cfg.Notification.HistoryKey, cfg.Notification.HistoryCap)
	events, err := history.List(ctx)
	if err != nil {
		return err
	}
	data, err := notification.WriteHistoryWorkbook(events)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
