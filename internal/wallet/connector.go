package wallet

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Dominix-Chain/internal/errors"
	"Dominix-Chain/internal/notify"
	"Dominix-Chain/internal/session"
	"Dominix-Chain/pkg/logger"
)

// Refresher 在连接成功后拉取链上状态快照。
type Refresher interface {
	Refresh(ctx context.Context, account common.Address) error
}

// ConnectorConfig 描述连接器的依赖。
type ConnectorConfig struct {
	Provider      Provider
	State         *session.State
	Refresher     Refresher
	Sink          notify.Sink
	RequiredChain ChainDescriptor
	// OnReload 在链变更时触发整体重载。重载会放弃所有在途操作，
	// 而不是尝试跨链修补过期的合约绑定。
	OnReload func()
}

// Connector 管理钱包连接的完整生命周期：网络校验与切换、账户发现、
// 以及对外部账户/链变更事件的订阅。
type Connector struct {
	provider Provider
	state    *session.State
	refresh  Refresher
	sink     notify.Sink
	required ChainDescriptor
	onReload func()
	log      *slog.Logger
}

// NewConnector 构造连接器。
func NewConnector(cfg ConnectorConfig) (*Connector, error) {
	if cfg.State == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供会话状态")
	}
	if cfg.Sink == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供通知通道")
	}
	if err := cfg.RequiredChain.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "目标链描述不完整")
	}
	return &Connector{
		provider: cfg.Provider,
		state:    cfg.State,
		refresh:  cfg.Refresher,
		sink:     cfg.Sink,
		required: cfg.RequiredChain,
		onReload: cfg.OnReload,
		log:      logger.Named("wallet"),
	}, nil
}

// Connect 建立钱包会话：切换到目标链、请求账户授权、提交会话并触发刷新。
// 任何失败都会把会话留在未连接状态，connecting 标记在所有路径上清除。
func (c *Connector) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// SilentConnect 在启动时尝试静默恢复会话。
// 钱包没有已授权账户时不视为错误，也不产生任何用户可见的提示。
func (c *Connector) SilentConnect(ctx context.Context) error {
	return c.connect(ctx, true)
}

func (c *Connector) connect(ctx context.Context, silent bool) error {
	if c.provider == nil {
		err := xerrors.New(xerrors.CodeProviderUnavailable, "未检测到钱包提供者，请先安装或配置钱包")
		c.report(silent, err)
		return err
	}

	if !c.state.BeginConnecting() {
		// 已在连接或已连接，按无操作处理。
		return nil
	}
	connected := false
	defer func() {
		if !connected {
			c.state.AbortConnecting()
		}
	}()

	if err := c.ensureChain(ctx); err != nil {
		c.report(silent, err)
		return err
	}

	accounts, err := c.listAccounts(ctx, silent)
	if err != nil {
		c.report(silent, err)
		return err
	}
	if len(accounts) == 0 {
		if silent {
			// 没有常驻授权，保持未连接，不打扰用户。
			return nil
		}
		err := xerrors.New(xerrors.CodeUserRejected, "钱包未授权任何账户")
		c.report(silent, err)
		return err
	}
	account := accounts[0]

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeNetworkSwitchFailed, err, "确认当前链失败")
		c.report(silent, wrapped)
		return wrapped
	}
	if chainID == nil || chainID.Cmp(c.required.ID()) != 0 {
		err := xerrors.New(xerrors.CodeNetworkSwitchFailed,
			fmt.Sprintf("钱包停留在错误的链上，期望 %s", c.required.Name))
		c.report(silent, err)
		return err
	}

	c.state.SetConnected(account, chainID)
	connected = true

	logger.Audit().Info("钱包连接成功",
		slog.String("account", account.Hex()),
		slog.String("chain", c.required.Name),
		slog.Bool("silent", silent),
	)

	if c.refresh != nil {
		if err := c.refresh.Refresh(ctx, account); err != nil {
			// 刷新失败只记日志，连接本身已经成立。
			c.log.Warn("连接后的状态刷新失败", slog.Any("error", err))
		}
	}
	if !silent {
		c.sink.Notify(notify.Success(fmt.Sprintf("钱包已连接: %s", shortAddress(account))))
	}
	return nil
}

// ensureChain 请求切换到目标链，未收录时回退到按完整描述添加。
func (c *Connector) ensureChain(ctx context.Context) error {
	err := c.provider.SwitchChain(ctx, c.required.ID())
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, ErrUserRejected) {
		return xerrors.Wrap(xerrors.CodeUserRejected, err, "用户拒绝了切换网络")
	}
	if !stdErrors.Is(err, ErrUnknownChain) {
		return xerrors.Wrap(xerrors.CodeNetworkSwitchFailed, err, "切换网络失败")
	}

	c.log.Info("钱包未收录目标链，尝试添加", slog.String("chain", c.required.Name))
	if err := c.provider.AddChain(ctx, c.required); err != nil {
		if stdErrors.Is(err, ErrUserRejected) {
			return xerrors.Wrap(xerrors.CodeUserRejected, err, "用户拒绝了添加网络")
		}
		return xerrors.Wrap(xerrors.CodeNetworkSwitchFailed, err, "添加网络失败")
	}
	return nil
}

func (c *Connector) listAccounts(ctx context.Context, silent bool) ([]common.Address, error) {
	if silent {
		accounts, err := c.provider.AuthorizedAccounts(ctx)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "查询已授权账户失败")
		}
		return accounts, nil
	}
	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		if stdErrors.Is(err, ErrUserRejected) {
			return nil, xerrors.Wrap(xerrors.CodeUserRejected, err, "用户拒绝了账户授权")
		}
		return nil, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "请求账户授权失败")
	}
	return accounts, nil
}

// Disconnect 清空会话并通知。余额、阶段与登记状态全部回到初始值。
func (c *Connector) Disconnect() {
	account, connected := c.state.Account()
	c.state.Reset()
	if connected {
		logger.Audit().Info("钱包已断开", slog.String("account", account.Hex()))
		c.sink.Notify(notify.Info("钱包已断开连接"))
	}
}

// Watch 消费钱包推送的账户/链变更事件，直到上下文取消。
// 订阅在返回前释放。
func (c *Connector) Watch(ctx context.Context) {
	if c.provider == nil {
		return
	}
	sub := c.provider.Subscribe(8)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Connector) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			c.log.Info("钱包移除了账户授权，断开会话")
			c.Disconnect()
			return
		}
		current, connected := c.state.Account()
		next := ev.Accounts[0]
		if connected && current != next {
			c.log.Info("钱包切换了账户", slog.String("account", next.Hex()))
			c.state.SetConnected(next, c.state.ChainID())
			if c.refresh != nil {
				if err := c.refresh.Refresh(ctx, next); err != nil {
					c.log.Warn("账户切换后的刷新失败", slog.Any("error", err))
				}
			}
		}
	case EventChainChanged:
		// 链变更采取整体重载：比起跨链修补过期的合约绑定，
		// 放弃在途操作重建会话是唯一稳妥的做法。
		c.log.Info("检测到链变更，触发整体重载")
		c.sink.Notify(notify.Info("网络已切换，正在重新加载"))
		if c.onReload != nil {
			c.onReload()
		}
	}
}

func (c *Connector) report(silent bool, err error) {
	if silent {
		c.log.Warn("静默重连失败", slog.Any("error", err))
		return
	}
	c.sink.Notify(notify.Error(userMessage(err)))
}

// userMessage 提取适合展示给用户的错误文案。
func userMessage(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Message()
	}
	return err.Error()
}

func shortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
