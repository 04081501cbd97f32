package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// 钱包提供者返回的标准错误。
var (
	// ErrUnknownChain 表示钱包不认识请求切换的链，需要先添加。
	ErrUnknownChain = errors.New("钱包未收录该链")
	// ErrUserRejected 表示用户在钱包弹窗中拒绝了请求。
	ErrUserRejected = errors.New("用户拒绝了钱包请求")
)

// EventKind 标识钱包主动推送的事件类型。
type EventKind string

const (
	EventAccountsChanged EventKind = "accounts_changed"
	EventChainChanged    EventKind = "chain_changed"
)

// Event 是钱包推送的账户或链变更通知。
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  *big.Int
}

// Backend 聚合合约调用、交易回执与余额查询能力。
// ethclient.Client 天然满足该接口。
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Provider 抽象外部钱包提供者，对应浏览器钱包的
// request-accounts / switch-chain / add-chain / 事件订阅能力。
type Provider interface {
	// RequestAccounts 请求账户授权，可能触发用户交互并被拒绝。
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// AuthorizedAccounts 返回已授权的账户，绝不触发用户交互。
	AuthorizedAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID 返回钱包当前所在链。
	ChainID(ctx context.Context) (*big.Int, error)
	// SwitchChain 切换到指定链。未收录的链返回 ErrUnknownChain。
	SwitchChain(ctx context.Context, chainID *big.Int) error
	// AddChain 按完整描述收录并切换到一条新链。
	AddChain(ctx context.Context, desc ChainDescriptor) error
	// Backend 返回面向当前链的调用后端。
	Backend() Backend
	// TransactOpts 返回绑定当前链的交易签名配置。
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	// Subscribe 订阅账户与链变更事件。
	Subscribe(buffer int) *EventSubscription
	// Close 释放底层连接并终止所有订阅。
	Close()
}

// EventSubscription 包装一路事件订阅，保证在会话销毁时可以被释放。
type EventSubscription struct {
	ch     chan Event
	cancel func()
}

// Events 返回接收事件的通道。订阅关闭后通道随之关闭。
func (s *EventSubscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close 终止订阅。
func (s *EventSubscription) Close() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}
