package presale

import (
	"math/big"
	"testing"

	xerrors "Dominix-Chain/internal/errors"
)

func TestParseAmountRejectsInvalidInput(t *testing.T) {
	cases := []string{"", " ", ".", "abc", "1.2.3", "-1", "0", "0.0", "1,5"}
	for _, input := range cases {
		if _, err := ParseAmount(input); err == nil {
			t.Errorf("输入 %q 应当被拒绝", input)
		} else if xerrors.CodeOf(err) != xerrors.CodeValidation {
			t.Errorf("输入 %q 的错误码应为 VALIDATION_ERROR，实际 %s", input, xerrors.CodeOf(err))
		}
	}
}

func TestParseAmountAcceptsDecimalForms(t *testing.T) {
	cases := map[string]string{
		"10":     "10",
		"0.5":    "0.5",
		".5":     "0.5",
		"5.":     "5",
		"  1.25": "1.25",
	}
	for input, want := range cases {
		wei, err := ParseAmount(input)
		if err != nil {
			t.Fatalf("解析 %q 失败: %v", input, err)
		}
		if got := FormatAmount(wei); got != want {
			t.Errorf("解析 %q 得到 %s，期望 %s", input, got, want)
		}
	}
}

func TestParseAmountTruncatesExcessDecimals(t *testing.T) {
	wei, err := ParseAmount("1.1234567890123456789")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	// 第 19 位小数被截断，绝不向上取整。
	if got := FormatAmount(wei); got != "1.123456789012345678" {
		t.Errorf("得到 %s", got)
	}
}

func TestFormatAmountTrimsTrailingZeros(t *testing.T) {
	half, _ := ParseAmount("2.50")
	if got := FormatAmount(half); got != "2.5" {
		t.Errorf("得到 %s，期望 2.5", got)
	}
	if got := FormatAmount(nil); got != "0" {
		t.Errorf("nil 应格式化为 0，得到 %s", got)
	}
	if got := FormatAmount(big.NewInt(0)); got != "0" {
		t.Errorf("零值应格式化为 0，得到 %s", got)
	}
}

func TestTokensForStable(t *testing.T) {
	stable, _ := ParseAmount("10")
	price, _ := ParseAmount("2")
	tokens, err := TokensForStable(stable, price)
	if err != nil {
		t.Fatalf("换算失败: %v", err)
	}
	if got := FormatAmount(tokens); got != "5" {
		t.Errorf("10/2 应得 5 枚代币，得到 %s", got)
	}

	if _, err := TokensForStable(stable, big.NewInt(0)); err == nil {
		t.Error("价格为零时应当报错")
	}
	if _, err := TokensForStable(stable, nil); err == nil {
		t.Error("价格为 nil 时应当报错")
	}
}

func TestTokensForStableRoundsDown(t *testing.T) {
	stable, _ := ParseAmount("1")
	price, _ := ParseAmount("3")
	tokens, err := TokensForStable(stable, price)
	if err != nil {
		t.Fatalf("换算失败: %v", err)
	}
	// 1/3 无法整除，结果必须向下取整。
	want := "0.333333333333333333"
	if got := FormatAmount(tokens); got != want {
		t.Errorf("得到 %s，期望 %s", got, want)
	}
}

func TestSellEstimateAppliesHaircut(t *testing.T) {
	tokens, _ := ParseAmount("100")
	price, _ := ParseAmount("2")
	estimate := SellEstimate(tokens, price, DefaultHaircutBps)
	if got := FormatAmount(estimate); got != "170" {
		t.Errorf("100 枚代币按 2 的单价扣除折价应得 170，得到 %s", got)
	}
}

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		sold, cap int64
		want      string
	}{
		{250, 1000, "25"},
		{1, 3, "33.33"},
		{1, 300, "0.33"},
		{105, 1000, "10.5"},
		{1000, 1000, "100"},
		{0, 1000, "0"},
		{5, 0, "0"},
	}
	for _, tc := range cases {
		got := ProgressPercent(big.NewInt(tc.sold), big.NewInt(tc.cap))
		if got != tc.want {
			t.Errorf("%d/%d 进度应为 %s，得到 %s", tc.sold, tc.cap, tc.want, got)
		}
	}
	if got := ProgressPercent(nil, big.NewInt(10)); got != "0" {
		t.Errorf("nil 已售应得 0，得到 %s", got)
	}
}

func TestEstimateSellReturn(t *testing.T) {
	got, err := EstimateSellReturn("100", "2")
	if err != nil {
		t.Fatalf("估算失败: %v", err)
	}
	if got != "170" {
		t.Errorf("得到 %s，期望 170", got)
	}

	if _, err := EstimateSellReturn("abc", "2"); err == nil {
		t.Error("非法金额应当报错")
	}
	if _, err := EstimateSellReturn("100", "0"); err == nil {
		t.Error("价格为零应当报错")
	}
}
