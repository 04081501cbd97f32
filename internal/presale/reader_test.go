package presale

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"Dominix-Chain/internal/session"
)

type fakePresale struct {
	phaseIndex *big.Int
	phase      Phase
	maxBuy     *big.Int
	headline   string
	email      string
	failOn     string
}

func (f *fakePresale) CurrentPhaseIndex(ctx context.Context) (*big.Int, error) {
	if f.failOn == "index" {
		return nil, errors.New("boom")
	}
	return f.phaseIndex, nil
}

func (f *fakePresale) PhaseAt(ctx context.Context, index *big.Int) (Phase, error) {
	if f.failOn == "phase" {
		return Phase{}, errors.New("boom")
	}
	return f.phase, nil
}

func (f *fakePresale) MaxBuyAmount(ctx context.Context) (*big.Int, error) {
	if f.failOn == "maxBuy" {
		return nil, errors.New("boom")
	}
	return f.maxBuy, nil
}

func (f *fakePresale) Headline(ctx context.Context) (string, error) {
	return f.headline, nil
}

func (f *fakePresale) RegisteredEmailOf(ctx context.Context, account common.Address) (string, error) {
	return f.email, nil
}

type fakeBalance struct {
	balance *big.Int
	err     error
}

func (f *fakeBalance) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.balance, f.err
}

type fakeNative struct {
	balance *big.Int
}

func (f *fakeNative) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

type fakeChain struct {
	id *big.Int
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return f.id, nil
}

func unit(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), weiPerUnit)
}

func newTestReader(t *testing.T, presale *fakePresale, token, stable *fakeBalance, chainID *big.Int, state *session.State) *Reader {
	t.Helper()
	r, err := NewReader(ReaderConfig{
		Presale:       presale,
		PresaleToken:  token,
		Stablecoin:    stable,
		Native:        &fakeNative{balance: unit(1)},
		Chain:         &fakeChain{id: chainID},
		RequiredChain: big.NewInt(97),
		State:         state,
	})
	if err != nil {
		t.Fatalf("构造读取器失败: %v", err)
	}
	return r
}

func TestRefreshCommitsWholeSnapshot(t *testing.T) {
	state := session.NewState()
	presale := &fakePresale{
		phaseIndex: big.NewInt(2),
		phase:      Phase{Cap: unit(1000), Sold: unit(250), Price: unit(2), Active: true},
		maxBuy:     unit(500),
		headline:   "phase two live",
		email:      "a@b.cn",
	}
	r := newTestReader(t, presale,
		&fakeBalance{balance: unit(10)},
		&fakeBalance{balance: unit(20)},
		big.NewInt(97), state)

	if err := r.Refresh(context.Background(), common.Address{}); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}

	v := state.View()
	if v.Phase.Index != 2 || v.Phase.Price != "2" || v.Phase.Sold != "250" || v.Phase.Cap != "1000" || !v.Phase.Active {
		t.Errorf("阶段快照不正确: %+v", v.Phase)
	}
	if v.Phase.Progress != "25" {
		t.Errorf("进度应为 25，实际 %s", v.Phase.Progress)
	}
	if v.Balances.PresaleToken != "10" || v.Balances.Stablecoin != "20" || v.Balances.Native != "1" {
		t.Errorf("余额快照不正确: %+v", v.Balances)
	}
	if v.MaxBuy != "500" || v.Headline != "phase two live" || v.Registration.Email != "a@b.cn" {
		t.Errorf("附加字段不正确: max=%s headline=%q email=%q", v.MaxBuy, v.Headline, v.Registration.Email)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	state := session.NewState()
	presale := &fakePresale{
		phaseIndex: big.NewInt(1),
		phase:      Phase{Cap: unit(100), Sold: unit(1), Price: unit(1), Active: true},
		maxBuy:     unit(50),
	}
	r := newTestReader(t, presale, &fakeBalance{balance: unit(3)}, &fakeBalance{balance: unit(4)}, big.NewInt(97), state)

	if err := r.Refresh(context.Background(), common.Address{}); err != nil {
		t.Fatalf("首次刷新失败: %v", err)
	}
	before := state.View()

	// 第二次刷新中途失败，上一份快照必须原样保留。
	presale.failOn = "maxBuy"
	presale.phase.Sold = unit(99)
	if err := r.Refresh(context.Background(), common.Address{}); err == nil {
		t.Fatal("读取失败时刷新应当返回错误")
	}

	after := state.View()
	if after.Phase != before.Phase || after.Balances != before.Balances || after.MaxBuy != before.MaxBuy {
		t.Errorf("失败的刷新污染了快照: before=%+v after=%+v", before, after)
	}
}

func TestRefreshSkipsOnChainMismatch(t *testing.T) {
	state := session.NewState()
	presale := &fakePresale{
		phaseIndex: big.NewInt(0),
		phase:      Phase{Cap: unit(10), Sold: unit(0), Price: unit(1), Active: true},
		maxBuy:     unit(5),
	}
	r := newTestReader(t, presale, &fakeBalance{balance: unit(1)}, &fakeBalance{balance: unit(1)}, big.NewInt(1), state)

	if err := r.Refresh(context.Background(), common.Address{}); err != nil {
		t.Fatalf("链不匹配时刷新应退化为无操作: %v", err)
	}
	if v := state.View(); v.Phase.Price != "0" || v.MaxBuy != "0" {
		t.Errorf("链不匹配时不应写入任何数据: %+v", v)
	}
}
