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

	"Dominix-Chain/internal/api"
	"Dominix-Chain/internal/config"
	"Dominix-Chain/internal/notify"
	"Dominix-Chain/internal/observability/metrics"
	"Dominix-Chain/internal/orchestrator"
	"Dominix-Chain/internal/presale"
	"Dominix-Chain/internal/session"
	"Dominix-Chain/internal/wallet"
	"Dominix-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// main 是 Dominix 预售守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("dominixd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("DOMINIX_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "dominix.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditEnabled,
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	chains, err := wallet.LoadChainDefinitions(cfg.Wallet.ChainConfig)
	if err != nil {
		return err
	}
	required, ok := chains.Chains[cfg.Wallet.RequiredChain]
	if !ok {
		return fmt.Errorf("目标链 %s 未在链配置中", cfg.Wallet.RequiredChain)
	}

	privateKey := strings.TrimSpace(os.Getenv(cfg.Wallet.PrivateKeyEnv))
	if privateKey == "" {
		return fmt.Errorf("环境变量 %s 未提供钱包私钥", cfg.Wallet.PrivateKeyEnv)
	}

	provider, err := wallet.NewLocalWallet(ctx, wallet.LocalConfig{
		Chains:        chains,
		DefaultChain:  cfg.Wallet.RequiredChain,
		PrivateKeyHex: privateKey,
	})
	if err != nil {
		return err
	}
	defer provider.Close()

	// 指标服务独立于会话生命周期，进程内只启动一次。
	go func() {
		if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("指标服务退出", slog.Any("error", err))
		}
	}()

	// 链变更采取整体重载：结束当前会话，重建全部合约绑定后重来。
	for {
		if err := runSession(ctx, cfg, required, provider); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.L().Info("会话已重载")
	}
}

// runSession 构建一次完整的会话装配并运行，直到进程退出或链变更触发重载。
func runSession(ctx context.Context, cfg *config.Config, required wallet.ChainDescriptor, provider *wallet.LocalWallet) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := session.NewState()
	feed := notify.NewFeed(128)
	sink := notify.NewFanout(notify.LogSink{}, feed, metricSink{})

	backend := provider.Backend()
	if backend == nil {
		return errors.New("钱包没有可用的链上后端")
	}

	presaleContract := presale.NewPresaleContract(common.HexToAddress(cfg.Contracts.Presale), backend)
	stablecoin := presale.NewTokenContract(common.HexToAddress(cfg.Contracts.Stablecoin), backend)
	presaleToken := presale.NewTokenContract(common.HexToAddress(cfg.Contracts.PresaleToken), backend)
	confirmer := presale.NewConfirmer(backend)

	reader, err := presale.NewReader(presale.ReaderConfig{
		Presale:       presaleContract,
		PresaleToken:  presaleToken,
		Stablecoin:    stablecoin,
		Native:        backend,
		Chain:         provider,
		RequiredChain: required.ID(),
		State:         state,
	})
	if err != nil {
		return err
	}

	reload := make(chan struct{}, 1)
	connector, err := wallet.NewConnector(wallet.ConnectorConfig{
		Provider:      provider,
		State:         state,
		Refresher:     reader,
		Sink:          sink,
		RequiredChain: required,
		OnReload: func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		State:      state,
		Presale:    presaleContract,
		Stablecoin: stablecoin,
		Token:      presaleToken,
		Confirmer:  confirmer,
		Signer:     provider,
		Connector:  connector,
		Refresher:  reader,
		Sink:       sink,
	})
	if err != nil {
		return err
	}

	// 启动时静默恢复会话，没有常驻授权时保持未连接。
	if err := connector.SilentConnect(sessionCtx); err != nil {
		logger.L().Warn("启动时静默连接失败", slog.Any("error", err))
	}

	go connector.Watch(sessionCtx)
	go func() {
		select {
		case <-sessionCtx.Done():
		case <-reload:
			cancel()
		}
	}()

	server := api.NewServer(cfg.Server.Address, state, connector, orch, feed)
	if err := server.Start(sessionCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// metricSink 把通知记入 Prometheus 计数器。
type metricSink struct{}

func (metricSink) Notify(msg notify.Message) {
	metrics.NotificationTotal.WithLabelValues(string(msg.Kind)).Inc()
}
