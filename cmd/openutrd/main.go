package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/api"
	"OpenUTR/internal/auth"
	"OpenUTR/internal/config"
	"OpenUTR/internal/devnet"
	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/observability/alerting"
	"OpenUTR/internal/router"
	"OpenUTR/internal/storage/mysql"
	"OpenUTR/internal/task"
	"OpenUTR/pkg/logger"
)

// main 是 OpenUTR 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("openutrd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("OPENUTR_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "openutr.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logs := logger.Named("openutrd")

	genesis := devnet.DefaultGenesis()
	if cfg.Devnet.Genesis != "" {
		genesis, err = devnet.LoadGenesis(cfg.Devnet.Genesis)
		if err != nil {
			return err
		}
	}
	routerCfg, err := routerConfig(cfg.Router, genesis)
	if err != nil {
		return err
	}
	chain, err := devnet.New(genesis, routerCfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Storage.BatchStore)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg.BatchQueue, logs)
	if err != nil {
		_ = store.Close()
		return err
	}

	// Service.Close 负责关闭存储与队列。
	service := task.NewService(store, queue, cfg.BatchQueue.MaxRetries)
	defer func() {
		if err := service.Close(); err != nil {
			logs.Error("关闭批次服务失败", slog.Any("error", err))
		}
	}()

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	retryCodes := make(task.RetryOnCodes, 0, len(cfg.BatchQueue.RetryCodes))
	for _, code := range cfg.BatchQueue.RetryCodes {
		retryCodes = append(retryCodes, xerrors.Code(strings.ToUpper(strings.TrimSpace(code))))
	}
	processor := task.NewProcessor(chain, store, queue, queue,
		task.WithWorkerCount(cfg.BatchQueue.Workers),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithRecoveryHandler(retryCodes),
		task.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logs.Error("批次处理器异常退出", slog.Any("error", err))
		}
	}()

	authSvc, closeUsers, err := openAuth(ctx, cfg.Auth, cfg.Storage.BatchStore)
	if err != nil {
		return err
	}
	defer closeUsers()
	if authSvc.Enabled() {
		logs.Info("API 认证已启用", slog.Int("users", len(cfg.Auth.Users)))
	}

	server := api.NewServer(cfg.Server.Address, service, chain, api.WithAuth(authSvc))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func routerConfig(cfg config.RouterConfig, genesis devnet.Genesis) (router.Config, error) {
	out := router.Config{
		RequirePauserForUnpause: cfg.RequirePauserForUnpause,
		DiscardPolicy:           router.DiscardPolicy(cfg.DiscardPolicy),
		BlockedSignatures:       cfg.BlockedSignatures,
	}
	if cfg.Pauser != "" {
		pauser, err := genesis.Resolve(cfg.Pauser)
		if err != nil {
			return router.Config{}, fmt.Errorf("解析 pauser 失败: %w", err)
		}
		out.Pauser = pauser
	}
	for _, name := range cfg.Maintainers {
		addr, err := genesis.Resolve(name)
		if err != nil {
			return router.Config{}, fmt.Errorf("解析 maintainer 失败: %w", err)
		}
		out.Maintainers = append(out.Maintainers, addr)
	}
	if out.Pauser == (common.Address{}) && out.RequirePauserForUnpause {
		return router.Config{}, errors.New("require_pauser_for_unpause 需要配置 pauser")
	}
	return out, nil
}

func openAuth(ctx context.Context, cfg config.AuthConfig, storage config.BatchStoreConfig) (*auth.Service, func(), error) {
	seeds := make([]auth.Seed, 0, len(cfg.Users))
	for _, user := range cfg.Users {
		seeds = append(seeds, auth.Seed{
			Username:    user.Username,
			Password:    user.Password,
			Account:     user.Account,
			Permissions: user.Permissions,
			Disabled:    user.Disabled,
		})
	}
	var (
		users     auth.Store
		closeFunc = func() {}
	)
	switch {
	case cfg.Mode == string(auth.ModeDisabled):
	case cfg.Store == "mysql":
		sqlUsers, err := auth.NewSQLStore(ctx, mysqlConfig(storage))
		if err != nil {
			return nil, nil, err
		}
		users, closeFunc = sqlUsers, func() { _ = sqlUsers.Close() }
	default:
		memUsers, err := auth.NewMemoryStore()
		if err != nil {
			return nil, nil, err
		}
		users = memUsers
	}
	svc, err := auth.NewService(ctx, auth.Config{
		Mode: auth.Mode(cfg.Mode),
		JWT: auth.JWTOptions{
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			AccessTTL:  cfg.JWT.AccessTTLSeconds,
			RefreshTTL: cfg.JWT.RefreshTTLSeconds,
		},
		Seeds: seeds,
	}, users)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	return svc, closeFunc, nil
}

func openStore(ctx context.Context, cfg config.BatchStoreConfig) (task.Store, error) {
	switch cfg.Driver {
	case "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(ctx, mysqlConfig(cfg))
	default:
		return nil, fmt.Errorf("未知的批次存储驱动: %s", cfg.Driver)
	}
}

func mysqlConfig(cfg config.BatchStoreConfig) mysql.Config {
	return mysql.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime(),
	}
}

func openQueue(ctx context.Context, cfg config.BatchQueueConfig, logs *slog.Logger) (task.Queue, error) {
	switch cfg.Driver {
	case "memory":
		return task.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		queue, err := task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		// 上次退出时仍在处理中的批次重新排队，由存储状态决定是否跳过。
		moved, err := queue.Requeue(ctx)
		if err != nil {
			_ = queue.Close()
			return nil, err
		}
		if moved > 0 {
			logs.Info("已归还处理中的批次", slog.Int("count", moved))
		}
		return queue, nil
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
