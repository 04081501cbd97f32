package orchestrator

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "Dominix-Chain/internal/errors"
	"Dominix-Chain/internal/notify"
	"Dominix-Chain/internal/observability/metrics"
	"Dominix-Chain/internal/presale"
	"Dominix-Chain/internal/session"
	"Dominix-Chain/internal/wallet"
	"Dominix-Chain/pkg/logger"
)

// PresaleWriter 是下单流程需要的预售合约写方法。
type PresaleWriter interface {
	Address() common.Address
	BuyTokens(opts *bind.TransactOpts, tokenAmount *big.Int, referrer common.Address, email string) (*coretypes.Transaction, error)
	SellBack(opts *bind.TransactOpts, tokenAmount *big.Int) (*coretypes.Transaction, error)
	RegisterEmail(opts *bind.TransactOpts, email string) (*coretypes.Transaction, error)
}

// TokenSpender 是授权流程需要的 ERC-20 方法。
type TokenSpender interface {
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*coretypes.Transaction, error)
}

// Confirmer 阻塞等待交易确认。
type Confirmer interface {
	WaitConfirmed(ctx context.Context, tx *coretypes.Transaction) error
}

// Signer 提供交易签名配置。
type Signer interface {
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Connecter 触发延迟连接：未连接时的用户操作先走连接流程。
type Connecter interface {
	Connect(ctx context.Context) error
}

// Refresher 在操作成功后整体刷新链上快照。
type Refresher interface {
	Refresh(ctx context.Context, account common.Address) error
}

// Config 描述编排器的依赖。
type Config struct {
	State      *session.State
	Presale    PresaleWriter
	Stablecoin TokenSpender
	Token      TokenSpender
	Confirmer  Confirmer
	Signer     Signer
	Connector  Connecter
	Refresher  Refresher
	Sink       notify.Sink
}

// Orchestrator 实现购买、回售与邮箱登记的多步协议：
// 校验 → 确保连接 → 确保授权 → 提交 → 确认 → 刷新。
// 单一在途操作约束由会话状态强制执行，编排器自身是自串行的。
type Orchestrator struct {
	state      *session.State
	presale    PresaleWriter
	stablecoin TokenSpender
	token      TokenSpender
	confirmer  Confirmer
	signer     Signer
	connector  Connecter
	refresher  Refresher
	sink       notify.Sink
	log        *slog.Logger
}

// New 构造编排器。
func New(cfg Config) (*Orchestrator, error) {
	if cfg.State == nil || cfg.Sink == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器缺少会话状态或通知通道")
	}
	if cfg.Presale == nil || cfg.Stablecoin == nil || cfg.Token == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器缺少合约依赖")
	}
	if cfg.Confirmer == nil || cfg.Signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器缺少签名或确认能力")
	}
	return &Orchestrator{
		state:      cfg.State,
		presale:    cfg.Presale,
		stablecoin: cfg.Stablecoin,
		token:      cfg.Token,
		confirmer:  cfg.Confirmer,
		signer:     cfg.Signer,
		connector:  cfg.Connector,
		refresher:  cfg.Refresher,
		sink:       cfg.Sink,
		log:        logger.Named("orchestrator"),
	}, nil
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// zeroAddress 是"无推荐人"的哨兵值。
var zeroAddress = common.Address{}

// NormalizeReferrer 只接受规范的 42 字符 0x 前缀十六进制地址，
// 其余一律替换为零地址哨兵。
func NormalizeReferrer(referrer string) common.Address {
	s := strings.TrimSpace(referrer)
	if len(s) == 42 && strings.HasPrefix(s, "0x") && common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return zeroAddress
}

// ValidateEmail 校验邮箱格式。
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return xerrors.New(xerrors.CodeValidation, "邮箱格式不合法")
	}
	return nil
}

// Buy 用 amountIn 数量的稳定币购买预售代币。
//
// referrer 非法时替换为零地址；email 仅在账户首次购买且尚未登记
// 邮箱时透传，用于购买时原子登记。
func (o *Orchestrator) Buy(ctx context.Context, amountIn, referrer, email string) error {
	amountWei, err := presale.ParseAmount(amountIn)
	if err != nil {
		o.sink.Notify(notify.Error(userMessage(err)))
		metrics.TransactionTotal.WithLabelValues(string(session.OpBuy), "invalid").Inc()
		return err
	}

	account, connected := o.state.Account()
	if !connected {
		// 延迟连接：未连接时把这次点击转化为连接请求，而不是报错。
		return o.deferConnect(ctx)
	}

	op, ok := o.state.BeginOperation(session.OpBuy)
	if !ok {
		o.log.Info("已有操作在途，忽略本次购买请求")
		return nil
	}
	defer o.state.EndOperation(op.ID)

	priceWei, err := presale.ParseAmount(o.state.CurrentPrice())
	if err != nil {
		return o.fail(op, xerrors.New(xerrors.CodeValidation, "当前阶段价格不可用，请稍后重试"))
	}
	tokensOut, err := presale.TokensForStable(amountWei, priceWei)
	if err != nil {
		return o.fail(op, err)
	}

	ref := NormalizeReferrer(referrer)

	forwardEmail := ""
	if o.state.RegisteredEmail() == "" && strings.TrimSpace(email) != "" {
		if err := ValidateEmail(strings.TrimSpace(email)); err != nil {
			return o.fail(op, err)
		}
		forwardEmail = strings.TrimSpace(email)
	}

	if err := o.ensureAllowance(ctx, op, o.stablecoin, account, amountWei); err != nil {
		return o.fail(op, err)
	}

	opts, err := o.signer.TransactOpts(ctx)
	if err != nil {
		return o.fail(op, xerrors.Wrap(xerrors.CodeUnknown, err, "获取交易签名器失败"))
	}
	tx, err := o.presale.BuyTokens(opts, tokensOut, ref, forwardEmail)
	if err != nil {
		return o.fail(op, classifySubmit(err, "提交购买交易失败"))
	}
	logger.Audit().Info("购买交易已提交",
		slog.String("op", op.ID),
		slog.String("tx", tx.Hash().Hex()),
		slog.String("account", account.Hex()),
		slog.String("tokens", presale.FormatAmount(tokensOut)),
		slog.String("referrer", ref.Hex()),
	)
	if err := o.confirmer.WaitConfirmed(ctx, tx); err != nil {
		return o.fail(op, err)
	}

	o.refreshAfter(ctx, account)
	o.sink.Notify(notify.Success(fmt.Sprintf("购买成功，获得 %s 枚代币", presale.FormatAmount(tokensOut))))
	metrics.TransactionTotal.WithLabelValues(string(session.OpBuy), "ok").Inc()
	return nil
}

// Sell 把 amountIn 数量的预售代币回售给合约。
// 客户端只负责展示估算值，权威换算由合约执行。
func (o *Orchestrator) Sell(ctx context.Context, amountIn string) error {
	amountWei, err := presale.ParseAmount(amountIn)
	if err != nil {
		o.sink.Notify(notify.Error(userMessage(err)))
		metrics.TransactionTotal.WithLabelValues(string(session.OpSell), "invalid").Inc()
		return err
	}

	account, connected := o.state.Account()
	if !connected {
		return o.deferConnect(ctx)
	}

	op, ok := o.state.BeginOperation(session.OpSell)
	if !ok {
		o.log.Info("已有操作在途，忽略本次回售请求")
		return nil
	}
	defer o.state.EndOperation(op.ID)

	if err := o.ensureAllowance(ctx, op, o.token, account, amountWei); err != nil {
		return o.fail(op, err)
	}

	opts, err := o.signer.TransactOpts(ctx)
	if err != nil {
		return o.fail(op, xerrors.Wrap(xerrors.CodeUnknown, err, "获取交易签名器失败"))
	}
	tx, err := o.presale.SellBack(opts, amountWei)
	if err != nil {
		return o.fail(op, classifySubmit(err, "提交回售交易失败"))
	}
	logger.Audit().Info("回售交易已提交",
		slog.String("op", op.ID),
		slog.String("tx", tx.Hash().Hex()),
		slog.String("account", account.Hex()),
		slog.String("tokens", presale.FormatAmount(amountWei)),
	)
	if err := o.confirmer.WaitConfirmed(ctx, tx); err != nil {
		return o.fail(op, err)
	}

	o.refreshAfter(ctx, account)
	o.sink.Notify(notify.Success("回售成功"))
	metrics.TransactionTotal.WithLabelValues(string(session.OpSell), "ok").Inc()
	return nil
}

// RegisterEmail 为当前账户登记邮箱。仅在尚未登记时可用；
// 已登记时是无操作，合约侧的记录不可覆盖。
func (o *Orchestrator) RegisterEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		o.sink.Notify(notify.Error(userMessage(err)))
		metrics.TransactionTotal.WithLabelValues(string(session.OpRegister), "invalid").Inc()
		return err
	}

	account, connected := o.state.Account()
	if !connected {
		return o.deferConnect(ctx)
	}

	if o.state.RegisteredEmail() != "" {
		o.sink.Notify(notify.Info("该账户已登记过邮箱"))
		return nil
	}

	op, ok := o.state.BeginOperation(session.OpRegister)
	if !ok {
		o.log.Info("已有操作在途，忽略本次登记请求")
		return nil
	}
	defer o.state.EndOperation(op.ID)

	opts, err := o.signer.TransactOpts(ctx)
	if err != nil {
		return o.fail(op, xerrors.Wrap(xerrors.CodeUnknown, err, "获取交易签名器失败"))
	}
	tx, err := o.presale.RegisterEmail(opts, email)
	if err != nil {
		return o.fail(op, classifySubmit(err, "提交邮箱登记交易失败"))
	}
	logger.Audit().Info("邮箱登记交易已提交",
		slog.String("op", op.ID),
		slog.String("tx", tx.Hash().Hex()),
		slog.String("account", account.Hex()),
	)
	if err := o.confirmer.WaitConfirmed(ctx, tx); err != nil {
		return o.fail(op, err)
	}

	o.state.SetRegisteredEmail(email)
	o.refreshAfter(ctx, account)
	o.sink.Notify(notify.Success("邮箱登记成功"))
	metrics.TransactionTotal.WithLabelValues(string(session.OpRegister), "ok").Inc()
	return nil
}

// EstimateBuyOutput 按当前价格估算 amountIn 稳定币可购得的代币数量。
func (o *Orchestrator) EstimateBuyOutput(amountIn string) (string, error) {
	amountWei, err := presale.ParseAmount(amountIn)
	if err != nil {
		return "", err
	}
	priceWei, err := presale.ParseAmount(o.state.CurrentPrice())
	if err != nil {
		return "", xerrors.New(xerrors.CodeValidation, "当前阶段价格不可用")
	}
	tokens, err := presale.TokensForStable(amountWei, priceWei)
	if err != nil {
		return "", err
	}
	return presale.FormatAmount(tokens), nil
}

// EstimateSellReturn 按当前价格与固定折价估算回售到账的稳定币数量。
// 估算仅用于展示，对链上结果没有约束力。
func (o *Orchestrator) EstimateSellReturn(amountIn string) (string, error) {
	return presale.EstimateSellReturn(amountIn, o.state.CurrentPrice())
}

// ensureAllowance 读取最新授权额度，不足时先提交授权交易并等待确认。
//
// 授权策略是有意为之的取舍：一次性授权近似无限的额度，换取后续购买
// 不再重复授权。代价是向预售合约多让渡一层信任，这里选择便利性。
func (o *Orchestrator) ensureAllowance(ctx context.Context, op session.PendingOperation, token TokenSpender, owner common.Address, required *big.Int) error {
	spender := o.presale.Address()
	allowance, err := token.Allowance(ctx, owner, spender)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "读取授权额度失败")
	}
	if allowance.Cmp(required) >= 0 {
		return nil
	}

	o.log.Info("授权额度不足，先提交授权交易",
		slog.String("code", string(xerrors.CodeAllowanceInsufficient)),
		slog.String("required", presale.FormatAmount(required)),
		slog.String("allowance", presale.FormatAmount(allowance)),
	)
	o.sink.Notify(notify.Info("需要先授权代币转账，请确认授权交易"))

	opts, err := o.signer.TransactOpts(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "获取交易签名器失败")
	}
	tx, err := token.Approve(opts, spender, presale.MaxApproval)
	if err != nil {
		return classifySubmit(err, "提交授权交易失败")
	}
	logger.Audit().Info("授权交易已提交",
		slog.String("op", op.ID),
		slog.String("tx", tx.Hash().Hex()),
		slog.String("account", owner.Hex()),
	)
	return o.confirmer.WaitConfirmed(ctx, tx)
}

// deferConnect 把未连接状态下的用户操作转化为一次连接请求。
func (o *Orchestrator) deferConnect(ctx context.Context) error {
	if o.connector == nil {
		err := xerrors.New(xerrors.CodeProviderUnavailable, "请先连接钱包")
		o.sink.Notify(notify.Error(userMessage(err)))
		return err
	}
	return o.connector.Connect(ctx)
}

// refreshAfter 在操作成功后整体刷新快照，失败只记日志。
func (o *Orchestrator) refreshAfter(ctx context.Context, account common.Address) {
	if o.refresher == nil {
		return
	}
	if err := o.refresher.Refresh(ctx, account); err != nil {
		o.log.Warn("操作完成后的刷新失败", slog.Any("error", err))
	}
}

// fail 统一的失败出口：上报最具体的原因并记账。
func (o *Orchestrator) fail(op session.PendingOperation, err error) error {
	o.sink.Notify(notify.Error(userMessage(err)))
	metrics.TransactionTotal.WithLabelValues(string(op.Kind), "error").Inc()
	o.log.Warn("操作失败",
		slog.String("op", op.ID),
		slog.String("kind", string(op.Kind)),
		slog.Any("error", err),
	)
	return err
}

// classifySubmit 把提交阶段的底层错误归类：优先提取合约回滚原因，
// 其次识别用户拒绝，兜底为未知失败。
func classifySubmit(err error, fallback string) error {
	if reason, ok := presale.RevertReason(err); ok {
		return xerrors.Wrap(xerrors.CodeContractRevert, err, reason)
	}
	if stdErrors.Is(err, wallet.ErrUserRejected) {
		return xerrors.Wrap(xerrors.CodeUserRejected, err, "用户拒绝了交易签名")
	}
	return xerrors.Wrap(xerrors.CodeUnknown, err, fallback)
}

// userMessage 提取适合展示的错误文案。
func userMessage(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Message()
	}
	return err.Error()
}
