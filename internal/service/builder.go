package service

import (
	"context"
	"fmt"

	"lifesignal-sync/common/database"
	commonmqtt "lifesignal-sync/common/mqtt"
	rediscommon "lifesignal-sync/common/redis"
	"lifesignal-sync/internal/config"
	"lifesignal-sync/internal/connectivity"
	"lifesignal-sync/internal/consumer"
	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/notification"
	"lifesignal-sync/internal/queue"
	"lifesignal-sync/internal/remote"
	"lifesignal-sync/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// queueDSNDatabase 离线队列使用 [database] 配置的 PostgreSQL
const queueDSNDatabase = "database"

// NewFromConfig 按配置创建全部组件
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SyncService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sortMode, err := models.ParseSortMode(cfg.Sync.SortMode)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	fail := func(err error) (*SyncService, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	// 远端客户端
	remoteClient := remote.NewHTTPClient(remote.Options{
		BaseURL:    cfg.Remote.BaseURL,
		Token:      cfg.Remote.Token,
		Timeout:    cfg.Remote.Timeout,
		RetryCount: cfg.Remote.RetryCount,
	}, logger)

	// Redis（更新流 / 探测 / 通知历史）
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, func() error { return rediscommon.Close(redisClient) })
	}

	// MQTT（更新流 / 探测 / 通知栏代理）
	var mqttClient *commonmqtt.Client
	if cfg.UsesMQTT() {
		mqttClient, err = commonmqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error {
			mqttClient.Disconnect()
			return nil
		})
	}

	// 离线队列
	actionLog, err := buildActionLog(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to open offline queue: %w", err))
	}
	offlineQueue := queue.NewOfflineQueue(actionLog, NewReplayExecutor(remoteClient, cfg.Sync.UserID), logger)

	// 连接监测
	var prober connectivity.Prober
	switch cfg.Connectivity.Probe {
	case "mqtt":
		prober = connectivity.NewMQTTProber(mqttClient)
	case "redis":
		prober = connectivity.NewRedisProber(redisClient)
	case "static":
		prober = connectivity.NewStaticProber(true)
	default:
		prober = connectivity.NewHealthProber(remoteClient)
	}
	monitor := connectivity.NewMonitor(prober, cfg.Connectivity.Interval, cfg.Connectivity.ProbeTimeout, logger)

	// 通知
	var history notification.HistoryStore
	if cfg.Notification.History == "redis" {
		history = notification.NewRedisHistory(redisClient, cfg.Notification.HistoryKey, cfg.Notification.HistoryCap)
	} else {
		history = notification.NewMemoryHistory(cfg.Notification.HistoryCap)
	}
	var presenter notification.Presenter = notification.NoopPresenter{}
	if cfg.Notification.Presenter == "mqtt" {
		presenter = notification.NewMQTTPresenter(mqttClient, cfg.Notification.TrayTopic, true)
	}
	dispatcher := notification.NewDispatcher(presenter, history, cfg.Notification.TrayDelay, logger)

	contactStore := store.NewContactStore(logger)

	// 权威更新流
	var source consumer.Source
	switch cfg.Sync.UpdateSource {
	case "redis":
		source = consumer.NewRedisStreamSource(
			redisClient,
			logger,
			cfg.Sync.Stream,
			cfg.Sync.ConsumerGroup,
			cfg.Sync.ConsumerName,
			int64(cfg.Sync.BatchSize),
			cfg.Sync.Block,
		)
	case "mqtt":
		source = consumer.NewMQTTSource(mqttClient, cfg.Sync.MQTTTopic, logger)
	case "websocket":
		source = consumer.NewWebSocketSource(cfg.Sync.WebSocketURL, cfg.Remote.Token, logger)
	}
	var updateConsumer *consumer.UpdateConsumer
	if source != nil {
		updateConsumer = consumer.NewUpdateConsumer(contactStore, source, logger)
	}

	// dispatcher 先于客户端关闭，通知栏移除指令还需要 MQTT
	closers = append([]func() error{func() error {
		dispatcher.Close()
		return nil
	}}, closers...)

	svc := NewSyncService(Deps{
		UserID:          cfg.Sync.UserID,
		Store:           contactStore,
		Remote:          remoteClient,
		Queue:           offlineQueue,
		Connectivity:    monitor,
		Notifier:        dispatcher,
		ConfirmTimeout:  cfg.Sync.ConfirmTimeout,
		SortMode:        sortMode,
		Logger:          logger,
		Monitor:         monitor,
		Consumer:        updateConsumer,
		RefreshInterval: cfg.Sync.RefreshInterval,
		Closers:         closers,
	})

	logger.Info("Sync service components built",
		zap.String("update_source", cfg.Sync.UpdateSource),
		zap.String("probe", cfg.Connectivity.Probe),
		zap.String("history", cfg.Notification.History),
		zap.String("presenter", cfg.Notification.Presenter),
	)
	return svc, nil
}

func buildActionLog(ctx context.Context, cfg *config.Config) (queue.ActionLog, error) {
	if cfg.Queue.DSN != queueDSNDatabase {
		return queue.BuildActionLogFromDSN(ctx, cfg.Queue.DSN, cfg.Queue.Capacity)
	}
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	l := queue.NewPostgresActionLog(db, cfg.Queue.Capacity)
	if err := l.EnsureSchema(ctx); err != nil {
		database.Close(db)
		return nil, err
	}
	return l, nil
}
