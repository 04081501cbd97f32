package presale

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	xerrors "Dominix-Chain/internal/errors"
	"Dominix-Chain/internal/observability/metrics"
	"Dominix-Chain/internal/session"
	"Dominix-Chain/pkg/logger"
)

// PresaleReader 是刷新流程需要的预售合约只读方法。
type PresaleReader interface {
	CurrentPhaseIndex(ctx context.Context) (*big.Int, error)
	PhaseAt(ctx context.Context, index *big.Int) (Phase, error)
	MaxBuyAmount(ctx context.Context) (*big.Int, error)
	Headline(ctx context.Context) (string, error)
	RegisteredEmailOf(ctx context.Context, account common.Address) (string, error)
}

// BalanceReader 读取某个代币合约上的账户余额。
type BalanceReader interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// NativeReader 读取原生代币余额。
type NativeReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ChainIDSource 报告钱包当前所在的链。
type ChainIDSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// ReaderConfig 描述读取器的依赖。
type ReaderConfig struct {
	Presale       PresaleReader
	PresaleToken  BalanceReader
	Stablecoin    BalanceReader
	Native        NativeReader
	Chain         ChainIDSource
	RequiredChain *big.Int
	State         *session.State
}

// Reader 执行并行的链上只读查询，并把结果作为一个原子快照提交到会话状态。
type Reader struct {
	presale  PresaleReader
	token    BalanceReader
	stable   BalanceReader
	native   NativeReader
	chain    ChainIDSource
	required *big.Int
	state    *session.State
	log      *slog.Logger
}

// NewReader 构造读取器。
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Presale == nil || cfg.PresaleToken == nil || cfg.Stablecoin == nil || cfg.Native == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "读取器缺少合约依赖")
	}
	if cfg.Chain == nil || cfg.RequiredChain == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "读取器缺少链信息")
	}
	if cfg.State == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "读取器缺少会话状态")
	}
	return &Reader{
		presale:  cfg.Presale,
		token:    cfg.PresaleToken,
		stable:   cfg.Stablecoin,
		native:   cfg.Native,
		chain:    cfg.Chain,
		required: new(big.Int).Set(cfg.RequiredChain),
		state:    cfg.State,
		log:      logger.Named("reader"),
	}, nil
}

// Refresh 重新读取全部链上状态并整体提交。
//
// 任何一路读取失败都会放弃整次刷新，上一份快照保持不动；
// 链 ID 不匹配时刷新退化为无操作，只记日志不打扰用户——
// 这条路径在链切换前后会被顺带触达，不是用户错误。
func (r *Reader) Refresh(ctx context.Context, account common.Address) error {
	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return xerrors.Wrap(xerrors.CodeUnknown, err, "读取链 ID 失败")
	}
	if chainID == nil || chainID.Cmp(r.required) != 0 {
		current := "unknown"
		if chainID != nil {
			current = chainID.String()
		}
		r.log.Info("链 ID 不匹配，跳过本次刷新",
			slog.String("current", current),
			slog.String("required", r.required.String()),
		)
		metrics.RefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	var (
		phaseIndex *big.Int
		phase      Phase
		maxBuy     *big.Int
		tokenBal   *big.Int
		stableBal  *big.Int
		nativeBal  *big.Int
		headline   string
		email      string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// 阶段记录依赖阶段下标，这一路内部保持串行。
		idx, err := r.presale.CurrentPhaseIndex(gctx)
		if err != nil {
			return err
		}
		record, err := r.presale.PhaseAt(gctx, idx)
		if err != nil {
			return err
		}
		phaseIndex = idx
		phase = record
		return nil
	})
	g.Go(func() error {
		var err error
		maxBuy, err = r.presale.MaxBuyAmount(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tokenBal, err = r.token.BalanceOf(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		stableBal, err = r.stable.BalanceOf(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		nativeBal, err = r.native.BalanceAt(gctx, account, nil)
		return err
	})
	g.Go(func() error {
		var err error
		headline, err = r.presale.Headline(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		email, err = r.presale.RegisteredEmailOf(gctx, account)
		return err
	})

	if err := g.Wait(); err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return xerrors.Wrap(xerrors.CodeUnknown, err, "刷新链上状态失败")
	}

	r.state.ApplyChainState(session.ChainState{
		Phase: session.PhaseSnapshot{
			Index:    int(phaseIndex.Int64()),
			Price:    FormatAmount(phase.Price),
			Sold:     FormatAmount(phase.Sold),
			Cap:      FormatAmount(phase.Cap),
			Progress: ProgressPercent(phase.Sold, phase.Cap),
			Active:   phase.Active,
		},
		Balances: session.BalanceSnapshot{
			PresaleToken: FormatAmount(tokenBal),
			Stablecoin:   FormatAmount(stableBal),
			Native:       FormatAmount(nativeBal),
		},
		MaxBuy:          FormatAmount(maxBuy),
		Headline:        headline,
		RegisteredEmail: email,
	})
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	return nil
}
