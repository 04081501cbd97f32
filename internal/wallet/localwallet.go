package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// LocalConfig 描述如何构造一个本地签名钱包。
type LocalConfig struct {
	Chains       ChainDefinitions
	DefaultChain string
	// PrivateKeyHex 是不带 0x 前缀的十六进制私钥。
	PrivateKeyHex string
}

// LocalWallet 用进程内私钥实现 Provider，作为浏览器钱包的服务端等价物。
// 切换链等价于重拨目标链的 RPC 端点并校验 eth_chainId。
// 本地私钥即常驻授权，因此静默重连总是可用。
type LocalWallet struct {
	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	address   common.Address
	byName    map[string]ChainDescriptor
	byID      map[uint64]ChainDescriptor
	current   ChainDescriptor
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	subs      map[int]chan Event
	nextSub   int
	closed    bool
}

// NewLocalWallet 解析私钥、收录链定义并连接默认链。
func NewLocalWallet(ctx context.Context, cfg LocalConfig) (*LocalWallet, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("未提供钱包私钥")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("解析钱包私钥失败: %w", err)
	}

	w := &LocalWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		byName:  make(map[string]ChainDescriptor),
		byID:    make(map[uint64]ChainDescriptor),
		subs:    make(map[int]chan Event),
	}
	for name, chain := range cfg.Chains.Chains {
		if err := chain.Validate(); err != nil {
			return nil, err
		}
		w.byName[name] = chain
		w.byID[chain.ChainID] = chain
	}

	def, ok := w.byName[cfg.DefaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在链配置中", cfg.DefaultChain)
	}
	if err := w.dialLocked(ctx, def); err != nil {
		return nil, err
	}
	return w, nil
}

// dialLocked 连接描述所指的 RPC 端点并校验链 ID。
func (w *LocalWallet) dialLocked(ctx context.Context, desc ChainDescriptor) error {
	rpcClient, err := gethrpc.DialContext(ctx, desc.RPCURL)
	if err != nil {
		return fmt.Errorf("连接链 %s 的节点失败: %w", desc.Name, err)
	}
	eth := ethclient.NewClient(rpcClient)

	remote, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return fmt.Errorf("查询链 %s 的链 ID 失败: %w", desc.Name, err)
	}
	if remote.Uint64() != desc.ChainID {
		rpcClient.Close()
		return fmt.Errorf("链 %s 的节点返回了意外的链 ID %s", desc.Name, remote)
	}

	if w.rpcClient != nil {
		w.rpcClient.Close()
	}
	w.rpcClient = rpcClient
	w.eth = eth
	w.current = desc
	return nil
}

// Address 返回钱包控制的账户地址。
func (w *LocalWallet) Address() common.Address {
	return w.address
}

// RequestAccounts 返回钱包账户。本地私钥不存在拒绝路径。
func (w *LocalWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{w.address}, nil
}

// AuthorizedAccounts 返回已授权账户，不触发任何交互。
func (w *LocalWallet) AuthorizedAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{w.address}, nil
}

// ChainID 返回当前链 ID。
func (w *LocalWallet) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.eth == nil {
		return nil, fmt.Errorf("钱包未连接任何链")
	}
	return w.current.ID(), nil
}

// SwitchChain 切换到指定链。未收录的链返回 ErrUnknownChain。
func (w *LocalWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if chainID == nil {
		return fmt.Errorf("目标链 ID 为空")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current.ChainID == chainID.Uint64() && w.eth != nil {
		return nil
	}
	desc, ok := w.byID[chainID.Uint64()]
	if !ok {
		return ErrUnknownChain
	}
	if err := w.dialLocked(ctx, desc); err != nil {
		return err
	}
	w.broadcastLocked(Event{Kind: EventChainChanged, ChainID: desc.ID()})
	return nil
}

// AddChain 收录一条新链并切换过去。
func (w *LocalWallet) AddChain(ctx context.Context, desc ChainDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.byName[desc.Name] = desc
	w.byID[desc.ChainID] = desc
	if w.current.ChainID == desc.ChainID && w.eth != nil {
		return nil
	}
	if err := w.dialLocked(ctx, desc); err != nil {
		return err
	}
	w.broadcastLocked(Event{Kind: EventChainChanged, ChainID: desc.ID()})
	return nil
}

// Backend 返回当前链的调用后端。
func (w *LocalWallet) Backend() Backend {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.eth == nil {
		return nil
	}
	return w.eth
}

// TransactOpts 返回绑定当前链的交易签名配置。
func (w *LocalWallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	w.mu.Lock()
	chainID := w.current.ID()
	w.mu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("构造交易签名器失败: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Subscribe 订阅账户与链变更事件。
func (w *LocalWallet) Subscribe(buffer int) *EventSubscription {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	w.mu.Unlock()

	return &EventSubscription{
		ch: ch,
		cancel: func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if sub, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(sub)
			}
		},
	}
}

// broadcastLocked 向所有订阅者投递事件，队列已满时丢弃。
func (w *LocalWallet) broadcastLocked(ev Event) {
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close 释放网络连接并关闭所有订阅。
func (w *LocalWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
	if w.rpcClient != nil {
		w.rpcClient.Close()
		w.rpcClient = nil
	}
	w.eth = nil
}

var _ Provider = (*LocalWallet)(nil)
