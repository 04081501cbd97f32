package presale

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "Dominix-Chain/internal/errors"
	"Dominix-Chain/internal/wallet"
)

// Phase 是链上一个预售阶段的原始记录，金额为 18 位定点整数。
type Phase struct {
	Cap    *big.Int
	Sold   *big.Int
	Price  *big.Int
	Active bool
}

// PresaleContract 包装预售合约的读写方法。
type PresaleContract struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewPresaleContract 绑定预售合约。
func NewPresaleContract(address common.Address, backend wallet.Backend) *PresaleContract {
	return &PresaleContract{
		address:  address,
		contract: bind.NewBoundContract(address, presaleABI, backend, backend, backend),
	}
}

// Address 返回合约地址。
func (p *PresaleContract) Address() common.Address {
	return p.address
}

// CurrentPhaseIndex 读取当前阶段下标。
func (p *PresaleContract) CurrentPhaseIndex(ctx context.Context) (*big.Int, error) {
	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "currentPhaseIndex"); err != nil {
		return nil, fmt.Errorf("读取当前阶段下标失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PhaseAt 读取指定阶段的容量、已售、价格与激活状态。
func (p *PresaleContract) PhaseAt(ctx context.Context, index *big.Int) (Phase, error) {
	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "phases", index); err != nil {
		return Phase{}, fmt.Errorf("读取阶段 %s 失败: %w", index, err)
	}
	return Phase{
		Cap:    *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Sold:   *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Price:  *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Active: *abi.ConvertType(out[3], new(bool)).(*bool),
	}, nil
}

// MaxBuyAmount 读取单笔购买上限。
func (p *PresaleContract) MaxBuyAmount(ctx context.Context) (*big.Int, error) {
	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "maxBuyAmount"); err != nil {
		return nil, fmt.Errorf("读取购买上限失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Headline 读取当前的营销标语。
func (p *PresaleContract) Headline(ctx context.Context) (string, error) {
	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "headline"); err != nil {
		return "", fmt.Errorf("读取标语失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// RegisteredEmailOf 读取账户已登记的邮箱，未登记时为空串。
func (p *PresaleContract) RegisteredEmailOf(ctx context.Context, account common.Address) (string, error) {
	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "registeredEmailOf", account); err != nil {
		return "", fmt.Errorf("读取登记邮箱失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// BuyTokens 提交购买交易。
func (p *PresaleContract) BuyTokens(opts *bind.TransactOpts, tokenAmount *big.Int, referrer common.Address, email string) (*coretypes.Transaction, error) {
	return p.contract.Transact(opts, "buyTokens", tokenAmount, referrer, email)
}

// SellBack 提交回售交易。
func (p *PresaleContract) SellBack(opts *bind.TransactOpts, tokenAmount *big.Int) (*coretypes.Transaction, error) {
	return p.contract.Transact(opts, "sellBack", tokenAmount)
}

// RegisterEmail 提交邮箱登记交易。
func (p *PresaleContract) RegisterEmail(opts *bind.TransactOpts, email string) (*coretypes.Transaction, error) {
	return p.contract.Transact(opts, "registerEmail", email)
}

// TokenContract 包装 ERC-20 代币合约。
type TokenContract struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewTokenContract 绑定一个 ERC-20 合约。
func NewTokenContract(address common.Address, backend wallet.Backend) *TokenContract {
	return &TokenContract{
		address:  address,
		contract: bind.NewBoundContract(address, erc20ABI, backend, backend, backend),
	}
}

// Address 返回合约地址。
func (t *TokenContract) Address() common.Address {
	return t.address
}

// BalanceOf 读取账户余额。
func (t *TokenContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("读取代币余额失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Allowance 读取 owner 授予 spender 的转账额度。
func (t *TokenContract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, fmt.Errorf("读取授权额度失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Approve 提交授权交易。
func (t *TokenContract) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*coretypes.Transaction, error) {
	return t.contract.Transact(opts, "approve", spender, amount)
}

// Confirmer 等待交易被网络确认。确认没有超时上限，
// 以调用方的上下文取消为唯一边界。
type Confirmer struct {
	backend bind.DeployBackend
}

// NewConfirmer 构造确认器。
func NewConfirmer(backend bind.DeployBackend) *Confirmer {
	return &Confirmer{backend: backend}
}

// WaitConfirmed 阻塞直到交易上链，回执状态失败时返回 CONTRACT_REVERT。
func (c *Confirmer) WaitConfirmed(ctx context.Context, tx *coretypes.Transaction) error {
	if c == nil || c.backend == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "确认器未初始化")
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "等待交易确认失败")
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return xerrors.New(xerrors.CodeContractRevert, "交易被合约回滚",
			xerrors.WithMetadata("tx", tx.Hash().Hex()))
	}
	return nil
}

// RevertReason 从 RPC 错误中提取合约回滚原因（如有）。
func RevertReason(err error) (string, bool) {
	var dataErr gethrpc.DataError
	if !stdErrors.As(err, &dataErr) {
		return "", false
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data := common.FromHex(raw)
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}
