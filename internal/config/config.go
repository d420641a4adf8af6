package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了 OpenUTR 守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Auth       AuthConfig       `json:"auth"`
	Log        LogConfig        `json:"log"`
	Router     RouterConfig     `json:"router"`
	Storage    StorageConfig    `json:"storage"`
	BatchQueue BatchQueueConfig `json:"batch_queue"`
	Alerting   AlertingConfig   `json:"alerting"`
	Devnet     DevnetConfig     `json:"devnet"`
}

// ServerConfig 控制 API 服务的监听地址。
type ServerConfig struct {
	Address string `json:"address"`
}

// AuthConfig 控制 API 认证。mode 为 disabled 时所有接口匿名可用。
// store 为 mysql 时用户表与批次共用 storage.batch_store 的连接配置。
type AuthConfig struct {
	Mode  string       `json:"mode"`
	Store string       `json:"store"`
	JWT   JWTConfig    `json:"jwt"`
	Users []UserConfig `json:"users"`
}

// JWTConfig 描述本地签发的 HS256 令牌。
type JWTConfig struct {
	Secret            string   `json:"secret"`
	Issuer            string   `json:"issuer"`
	Audience          []string `json:"audience"`
	AccessTTLSeconds  int64    `json:"access_ttl_seconds"`
	RefreshTTLSeconds int64    `json:"refresh_ttl_seconds"`
}

// UserConfig 是启动时写入的 API 用户，account 为其可以代表的链上账户。
type UserConfig struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Account     string   `json:"account"`
	Permissions []string `json:"permissions"`
	Disabled    bool     `json:"disabled"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志文件与滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RouterConfig 描述路由器的角色与策略。地址字段既可以是十六进制地址，也可以是创世配置中的名称。
type RouterConfig struct {
	Pauser                  string   `json:"pauser"`
	Maintainers             []string `json:"maintainers"`
	RequirePauserForUnpause bool     `json:"require_pauser_for_unpause"`
	// DiscardPolicy 取值 revert 或 clamp。
	DiscardPolicy     string   `json:"discard_policy"`
	BlockedSignatures []string `json:"blocked_signatures"`
}

// StorageConfig 统一描述批次存储后端。
type StorageConfig struct {
	BatchStore BatchStoreConfig `json:"batch_store"`
}

// BatchStoreConfig 支持 memory 与 mysql 两种驱动。
type BatchStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// ConnMaxLifetime 返回连接最大存活时间。
func (c BatchStoreConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// ConnMaxIdleTime 返回连接最大空闲时间。
func (c BatchStoreConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleTimeSeconds) * time.Second
}

// BatchQueueConfig 描述批次队列及处理器参数。
type BatchQueueConfig struct {
	Driver     string         `json:"driver"`
	Workers    int            `json:"workers"`
	MaxRetries int            `json:"max_retries"`
	Buffer     int            `json:"buffer"`
	RetryCodes []string       `json:"retry_codes"`
	Redis      RedisConfig    `json:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// AlertingConfig 配置告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// DevnetConfig 指向开发网创世文件，为空时使用内置创世。
type DevnetConfig struct {
	Genesis string `json:"genesis"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查驱动与策略取值。
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case "disabled":
	case "jwt":
		if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
			return errors.New("jwt 认证需要配置 secret")
		}
	default:
		return fmt.Errorf("未知的认证模式: %s", c.Auth.Mode)
	}
	switch c.Auth.Store {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.BatchStore.DSN) == "" {
			return errors.New("mysql 用户存储需要配置 storage.batch_store.dsn")
		}
	default:
		return fmt.Errorf("未知的用户存储: %s", c.Auth.Store)
	}
	switch c.Storage.BatchStore.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.BatchStore.DSN) == "" {
			return errors.New("mysql 批次存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的批次存储驱动: %s", c.Storage.BatchStore.Driver)
	}
	switch c.BatchQueue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.BatchQueue.Driver)
	}
	switch c.Router.DiscardPolicy {
	case "revert", "clamp":
	default:
		return fmt.Errorf("未知的 discard 策略: %s", c.Router.DiscardPolicy)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	c.Auth.Store = strings.ToLower(strings.TrimSpace(c.Auth.Store))
	if c.Auth.Store == "" {
		c.Auth.Store = "memory"
	}
	if secret := os.Getenv("OPENUTR_JWT_SECRET"); secret != "" {
		c.Auth.JWT.Secret = secret
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path != "" && !filepath.IsAbs(c.Log.Audit.Path) {
		c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
	}

	c.Router.DiscardPolicy = strings.ToLower(strings.TrimSpace(c.Router.DiscardPolicy))
	if c.Router.DiscardPolicy == "" {
		c.Router.DiscardPolicy = "revert"
	}

	c.Storage.BatchStore.Driver = strings.ToLower(strings.TrimSpace(c.Storage.BatchStore.Driver))
	if c.Storage.BatchStore.Driver == "" {
		c.Storage.BatchStore.Driver = "memory"
	}

	c.BatchQueue.Driver = strings.ToLower(strings.TrimSpace(c.BatchQueue.Driver))
	if c.BatchQueue.Driver == "" {
		c.BatchQueue.Driver = "memory"
	}
	if c.BatchQueue.Workers <= 0 {
		c.BatchQueue.Workers = 4
	}
	if c.BatchQueue.MaxRetries <= 0 {
		c.BatchQueue.MaxRetries = 3
	}
	if c.BatchQueue.Buffer <= 0 {
		c.BatchQueue.Buffer = 1024
	}
	if c.BatchQueue.Redis.BlockWaitSeconds <= 0 {
		c.BatchQueue.Redis.BlockWaitSeconds = 5
	}

	if c.Devnet.Genesis != "" && !filepath.IsAbs(c.Devnet.Genesis) {
		c.Devnet.Genesis = filepath.Join(baseDir, c.Devnet.Genesis)
	}
}
