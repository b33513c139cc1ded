package config

import (
	"fmt"
	"os"
	"time"

	"lifesignal-sync/common/config"

	"github.com/BurntSushi/toml"
)

// Config 同步服务配置
// 优先级：环境变量 > CONFIG_FILE（TOML）> 默认值
type Config struct {
	Database config.DatabaseConfig `toml:"database"`
	Redis    config.RedisConfig    `toml:"redis"`
	MQTT     config.MQTTConfig     `toml:"mqtt"`

	// 远端权威存储
	Remote struct {
		BaseURL    string        `toml:"base_url"`
		Token      string        `toml:"token"`
		Timeout    time.Duration `toml:"timeout"`
		RetryCount int           `toml:"retry_count"`
	} `toml:"remote"`

	Sync struct {
		UserID string `toml:"user_id"`

		// 远端确认超时；超时后保留乐观状态并入队
		ConfirmTimeout time.Duration `toml:"confirm_timeout"`

		// countdown / alphabetical / recently_added
		SortMode string `toml:"sort_mode"`

		// 重新计算 IsNonResponsive 的周期
		RefreshInterval time.Duration `toml:"refresh_interval"`

		// 更新流：redis / mqtt / websocket / none
		UpdateSource  string        `toml:"update_source"`
		Stream        string        `toml:"stream"`
		ConsumerGroup string        `toml:"consumer_group"`
		ConsumerName  string        `toml:"consumer_name"`
		BatchSize     int           `toml:"batch_size"`
		Block         time.Duration `toml:"block"`
		MQTTTopic     string        `toml:"mqtt_topic"`
		WebSocketURL  string        `toml:"websocket_url"`
	} `toml:"sync"`

	// 离线队列：file:// memory:// redis:// postgres://，或 database（使用 [database] 配置）
	Queue struct {
		DSN string `toml:"dsn"`
		// 0 不限长度；大于 0 时队列满会拒绝新的离线动作
		Capacity int `toml:"capacity"`
	} `toml:"queue"`

	Connectivity struct {
		// http / mqtt / redis / static
		Probe        string        `toml:"probe"`
		Interval     time.Duration `toml:"interval"`
		ProbeTimeout time.Duration `toml:"probe_timeout"`
	} `toml:"connectivity"`

	Notification struct {
		TrayDelay time.Duration `toml:"tray_delay"`
		// memory / redis
		History    string `toml:"history"`
		HistoryKey string `toml:"history_key"`
		// 保留条数上限，0 不限（只由用户删除）
		HistoryCap int `toml:"history_cap"`
		// mqtt / none
		Presenter string `toml:"presenter"`
		TrayTopic string `toml:"tray_topic"`
	} `toml:"notification"`

	Log struct {
		Level      string `toml:"level"`
		Format     string `toml:"format"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
	} `toml:"log"`
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.Database.LoadFromEnv("DB")
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.LoadFromEnv("MQTT")

	setString(&cfg.Remote.BaseURL, "REMOTE_BASE_URL")
	setString(&cfg.Remote.Token, "REMOTE_TOKEN")
	setDuration(&cfg.Remote.Timeout, "REMOTE_TIMEOUT")
	setInt(&cfg.Remote.RetryCount, "REMOTE_RETRY_COUNT")

	setString(&cfg.Sync.UserID, "SYNC_USER_ID")
	setDuration(&cfg.Sync.ConfirmTimeout, "SYNC_CONFIRM_TIMEOUT")
	setString(&cfg.Sync.SortMode, "SYNC_SORT_MODE")
	setDuration(&cfg.Sync.RefreshInterval, "SYNC_REFRESH_INTERVAL")
	setString(&cfg.Sync.UpdateSource, "SYNC_UPDATE_SOURCE")
	setString(&cfg.Sync.Stream, "SYNC_STREAM")
	setString(&cfg.Sync.ConsumerGroup, "SYNC_CONSUMER_GROUP")
	setString(&cfg.Sync.ConsumerName, "SYNC_CONSUMER_NAME")
	setInt(&cfg.Sync.BatchSize, "SYNC_BATCH_SIZE")
	setDuration(&cfg.Sync.Block, "SYNC_BLOCK")
	setString(&cfg.Sync.MQTTTopic, "SYNC_MQTT_TOPIC")
	setString(&cfg.Sync.WebSocketURL, "SYNC_WEBSOCKET_URL")

	setString(&cfg.Queue.DSN, "QUEUE_DSN")
	setInt(&cfg.Queue.Capacity, "QUEUE_CAPACITY")

	setString(&cfg.Connectivity.Probe, "CONNECTIVITY_PROBE")
	setDuration(&cfg.Connectivity.Interval, "CONNECTIVITY_INTERVAL")
	setDuration(&cfg.Connectivity.ProbeTimeout, "CONNECTIVITY_PROBE_TIMEOUT")

	setDuration(&cfg.Notification.TrayDelay, "NOTIFICATION_TRAY_DELAY")
	setString(&cfg.Notification.History, "NOTIFICATION_HISTORY")
	setString(&cfg.Notification.HistoryKey, "NOTIFICATION_HISTORY_KEY")
	setInt(&cfg.Notification.HistoryCap, "NOTIFICATION_HISTORY_CAP")
	setString(&cfg.Notification.Presenter, "NOTIFICATION_PRESENTER")
	setString(&cfg.Notification.TrayTopic, "NOTIFICATION_TRAY_TOPIC")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.File, "LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "LOG_MAX_BACKUPS")

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "lifesignal"
	cfg.Database.SSLMode = "disable"

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "lifesignal-sync"
	cfg.MQTT.QoS = 1

	cfg.Remote.BaseURL = "http://localhost:8080"
	cfg.Remote.Timeout = 10 * time.Second
	cfg.Remote.RetryCount = 0

	cfg.Sync.ConfirmTimeout = 10 * time.Second
	cfg.Sync.SortMode = "countdown"
	cfg.Sync.RefreshInterval = 30 * time.Second
	cfg.Sync.UpdateSource = "redis"
	cfg.Sync.Stream = "lifesignal:contact_updates"
	cfg.Sync.ConsumerGroup = "lifesignal-sync-group"
	cfg.Sync.ConsumerName = "lifesignal-sync-1"
	cfg.Sync.BatchSize = 10
	cfg.Sync.Block = 5 * time.Second

	cfg.Queue.DSN = "./data/offline_queue.json"

	cfg.Connectivity.Probe = "http"
	cfg.Connectivity.Interval = 5 * time.Second
	cfg.Connectivity.ProbeTimeout = 3 * time.Second

	cfg.Notification.TrayDelay = 3 * time.Second
	cfg.Notification.History = "memory"
	cfg.Notification.Presenter = "none"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 5

	return cfg
}

// Validate 启动前检查
func (c *Config) Validate() error {
	if c.Sync.UserID == "" {
		return fmt.Errorf("SYNC_USER_ID is required")
	}
	switch c.Sync.UpdateSource {
	case "redis", "mqtt", "none":
	case "websocket":
		if c.Sync.WebSocketURL == "" {
			return fmt.Errorf("SYNC_WEBSOCKET_URL is required for websocket update source")
		}
	default:
		return fmt.Errorf("unsupported update source: %s", c.Sync.UpdateSource)
	}
	switch c.Connectivity.Probe {
	case "http", "mqtt", "redis", "static":
	default:
		return fmt.Errorf("unsupported connectivity probe: %s", c.Connectivity.Probe)
	}
	switch c.Notification.History {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported notification history: %s", c.Notification.History)
	}
	switch c.Notification.Presenter {
	case "mqtt", "none":
	default:
		return fmt.Errorf("unsupported notification presenter: %s", c.Notification.Presenter)
	}
	return nil
}

// UsesMQTT 是否需要 MQTT 连接
func (c *Config) UsesMQTT() bool {
	return c.Sync.UpdateSource == "mqtt" || c.Connectivity.Probe == "mqtt" || c.Notification.Presenter == "mqtt"
}

// UsesRedis 是否需要 Redis 连接
func (c *Config) UsesRedis() bool {
	return c.Sync.UpdateSource == "redis" || c.Connectivity.Probe == "redis" || c.Notification.History == "redis"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := config.EnvInt(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := config.EnvDuration(key); ok {
		*dst = v
	}
}
