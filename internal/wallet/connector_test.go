package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	xerrors "Dominix-Chain/internal/errors"
	"Dominix-Chain/internal/notify"
	"Dominix-Chain/internal/session"
)

var testChain = ChainDescriptor{
	Name:    "bsc-testnet",
	ChainID: 97,
	Currency: NativeCurrency{
		Name:     "Testnet BNB",
		Symbol:   "tBNB",
		Decimals: 18,
	},
	RPCURL: "http://localhost:8545",
}

type fakeProvider struct {
	mu          sync.Mutex
	account     common.Address
	authorized  bool
	requestErr  error
	switchErr   error
	addErr      error
	chainID     *big.Int
	known       map[uint64]bool
	switchCalls int
	addCalls    int
	events      chan Event
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		account: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		chainID: big.NewInt(1),
		known:   map[uint64]bool{97: true},
		events:  make(chan Event, 8),
	}
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return []common.Address{f.account}, nil
}

func (f *fakeProvider) AuthorizedAccounts(ctx context.Context) ([]common.Address, error) {
	if !f.authorized {
		return nil, nil
	}
	return []common.Address{f.account}, nil
}

func (f *fakeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switchCalls++
	if f.switchErr != nil {
		return f.switchErr
	}
	if !f.known[chainID.Uint64()] {
		return ErrUnknownChain
	}
	f.chainID = new(big.Int).Set(chainID)
	return nil
}

func (f *fakeProvider) AddChain(ctx context.Context, desc ChainDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.known[desc.ChainID] = true
	f.chainID = desc.ID()
	return nil
}

func (f *fakeProvider) Backend() Backend { return nil }

func (f *fakeProvider) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{Context: ctx}, nil
}

func (f *fakeProvider) Subscribe(buffer int) *EventSubscription {
	return &EventSubscription{ch: f.events, cancel: func() {}}
}

func (f *fakeProvider) Close() {}

type countingRefresher struct {
	calls int
	last  common.Address
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context, account common.Address) error {
	c.calls++
	c.last = account
	return c.err
}

type recordingSink struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *recordingSink) Notify(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingSink) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Kind)
	}
	return out
}

func newTestConnector(t *testing.T, provider Provider, refresher Refresher, onReload func()) (*Connector, *session.State, *recordingSink) {
	t.Helper()
	state := session.NewState()
	sink := &recordingSink{}
	c, err := NewConnector(ConnectorConfig{
		Provider:      provider,
		State:         state,
		Refresher:     refresher,
		Sink:          sink,
		RequiredChain: testChain,
		OnReload:      onReload,
	})
	if err != nil {
		t.Fatalf("构造连接器失败: %v", err)
	}
	return c, state, sink
}

func TestConnectSwitchesChainAndCommitsSession(t *testing.T) {
	provider := newFakeProvider()
	refresher := &countingRefresher{}
	c, state, sink := newTestConnector(t, provider, refresher, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}

	if provider.switchCalls != 1 {
		t.Errorf("应当请求一次切链，实际 %d", provider.switchCalls)
	}
	account, ok := state.Account()
	if !ok || account != provider.account {
		t.Fatalf("会话账户不正确: %s", account.Hex())
	}
	if state.ChainID().Cmp(testChain.ID()) != 0 {
		t.Errorf("会话链 ID 不正确: %s", state.ChainID())
	}
	if refresher.calls != 1 || refresher.last != provider.account {
		t.Errorf("连接成功后应刷新一次: %d", refresher.calls)
	}
	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != notify.KindSuccess {
		t.Errorf("应有一条成功通知: %v", kinds)
	}
}

func TestConnectFallsBackToAddChain(t *testing.T) {
	provider := newFakeProvider()
	provider.known = map[uint64]bool{}
	c, state, _ := newTestConnector(t, provider, nil, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	if provider.addCalls != 1 {
		t.Errorf("未收录的链应回退到添加流程，实际 %d 次", provider.addCalls)
	}
	if !state.Connected() {
		t.Fatal("添加链后应当连接成功")
	}
}

func TestConnectUserRejection(t *testing.T) {
	provider := newFakeProvider()
	provider.requestErr = ErrUserRejected
	c, state, sink := newTestConnector(t, provider, nil, nil)

	err := c.Connect(context.Background())
	if err == nil || xerrors.CodeOf(err) != xerrors.CodeUserRejected {
		t.Fatalf("用户拒绝应返回 USER_REJECTED: %v", err)
	}
	if state.Connected() {
		t.Fatal("拒绝后会话不应是已连接")
	}
	// connecting 标记必须清除，允许再次发起连接。
	if !state.BeginConnecting() {
		t.Fatal("失败后应允许重新进入连接中")
	}
	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != notify.KindError {
		t.Errorf("应有一条错误通知: %v", kinds)
	}
}

func TestConnectSwitchRejection(t *testing.T) {
	provider := newFakeProvider()
	provider.switchErr = ErrUserRejected
	c, state, _ := newTestConnector(t, provider, nil, nil)

	err := c.Connect(context.Background())
	if err == nil || xerrors.CodeOf(err) != xerrors.CodeUserRejected {
		t.Fatalf("拒绝切链应返回 USER_REJECTED: %v", err)
	}
	if state.Connected() {
		t.Fatal("拒绝后会话不应是已连接")
	}
}

func TestConnectWithoutProvider(t *testing.T) {
	c, _, _ := newTestConnector(t, nil, nil, nil)
	err := c.Connect(context.Background())
	if err == nil || xerrors.CodeOf(err) != xerrors.CodeProviderUnavailable {
		t.Fatalf("缺少提供者应返回 PROVIDER_UNAVAILABLE: %v", err)
	}
}

func TestSilentConnectWithoutAuthorizationStaysQuiet(t *testing.T) {
	provider := newFakeProvider()
	provider.authorized = false
	c, state, sink := newTestConnector(t, provider, nil, nil)

	if err := c.SilentConnect(context.Background()); err != nil {
		t.Fatalf("无常驻授权的静默连接不应报错: %v", err)
	}
	if state.Connected() {
		t.Fatal("无授权时不应连接")
	}
	if len(sink.kinds()) != 0 {
		t.Errorf("静默路径不应产生任何通知: %v", sink.kinds())
	}
}

func TestSilentConnectRestoresSessionWithoutNoise(t *testing.T) {
	provider := newFakeProvider()
	provider.authorized = true
	refresher := &countingRefresher{}
	c, state, sink := newTestConnector(t, provider, refresher, nil)

	if err := c.SilentConnect(context.Background()); err != nil {
		t.Fatalf("静默连接失败: %v", err)
	}
	if !state.Connected() {
		t.Fatal("有常驻授权时应恢复会话")
	}
	if refresher.calls != 1 {
		t.Errorf("恢复会话后应刷新一次: %d", refresher.calls)
	}
	if len(sink.kinds()) != 0 {
		t.Errorf("静默成功也不应产生通知: %v", sink.kinds())
	}
}

func TestDisconnectResetsSession(t *testing.T) {
	provider := newFakeProvider()
	c, state, sink := newTestConnector(t, provider, nil, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	c.Disconnect()

	v := state.View()
	if v.Status != session.StatusDisconnected || v.Account != "" {
		t.Fatalf("断开后会话未清空: %+v", v)
	}
	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[1] != notify.KindInfo {
		t.Errorf("断开应产生一条提示通知: %v", kinds)
	}
}

func TestAccountsChangedToEmptyDisconnects(t *testing.T) {
	provider := newFakeProvider()
	c, state, _ := newTestConnector(t, provider, nil, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}

	c.handleEvent(context.Background(), Event{Kind: EventAccountsChanged})
	if state.Connected() {
		t.Fatal("授权清空后应当断开会话")
	}
}

func TestAccountSwitchRefreshesNewAccount(t *testing.T) {
	provider := newFakeProvider()
	refresher := &countingRefresher{}
	c, state, _ := newTestConnector(t, provider, refresher, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}

	next := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	c.handleEvent(context.Background(), Event{Kind: EventAccountsChanged, Accounts: []common.Address{next}})

	account, ok := state.Account()
	if !ok || account != next {
		t.Fatalf("会话应切换到新账户: %s", account.Hex())
	}
	if refresher.calls != 2 || refresher.last != next {
		t.Errorf("切换账户后应刷新新账户: calls=%d last=%s", refresher.calls, refresher.last.Hex())
	}
}

func TestChainChangeTriggersReload(t *testing.T) {
	provider := newFakeProvider()
	reloaded := 0
	c, _, sink := newTestConnector(t, provider, nil, func() { reloaded++ })
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}

	c.handleEvent(context.Background(), Event{Kind: EventChainChanged, ChainID: big.NewInt(1)})
	if reloaded != 1 {
		t.Fatalf("链变更应触发一次整体重载，实际 %d", reloaded)
	}
	kinds := sink.kinds()
	if kinds[len(kinds)-1] != notify.KindInfo {
		t.Errorf("链变更应产生一条提示通知: %v", kinds)
	}
}
