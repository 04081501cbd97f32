package presale

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	xerrors "Dominix-Chain/internal/errors"
)

// 链上金额统一为 18 位小数的定点整数。
const decimalPlaces = 18

var (
	weiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(decimalPlaces), nil)

	// MaxApproval 是一次性授权的"近似无限"额度（uint256 最大值）。
	MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// amountPattern 与输入框的过滤规则一致：可选整数部分 + 可选小数点 + 可选小数部分。
	amountPattern = regexp.MustCompile(`^[0-9]*\.?[0-9]*$`)
)

// DefaultHaircutBps 是回售时客户端展示用的折价（基点）。
// 权威换算由合约执行，这里的估算对用户没有约束力。
const DefaultHaircutBps = 1500

// ParseAmount 把用户输入的十进制金额解析为 18 位定点整数。
// 超出 18 位的小数直接截断（向零取整），绝不向上取整。
func ParseAmount(input string) (*big.Int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "金额不能为空")
	}
	if s == "." || !amountPattern.MatchString(s) {
		return nil, xerrors.New(xerrors.CodeValidation, "金额格式不合法")
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
	}
	if len(fracPart) > decimalPlaces {
		fracPart = fracPart[:decimalPlaces]
	}
	fracPart += strings.Repeat("0", decimalPlaces-len(fracPart))

	digits := intPart + fracPart
	value, ok := new(big.Int).SetString(strings.TrimLeft(digits, "0"), 10)
	if !ok {
		value = big.NewInt(0)
	}
	if value.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "金额必须大于零")
	}
	return value, nil
}

// FormatAmount 把 18 位定点整数格式化为十进制字符串，去掉多余的尾零。
func FormatAmount(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(wei, weiPerUnit, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := rem.String()
	frac = strings.Repeat("0", decimalPlaces-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	return quo.String() + "." + frac
}

// TokensForStable 计算 stableWei 数量的稳定币按 priceWei 单价能换多少代币。
// 结果向下取整：客户端绝不声称比付款所能覆盖的更多产出。
func TokensForStable(stableWei, priceWei *big.Int) (*big.Int, error) {
	if priceWei == nil || priceWei.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "当前阶段价格不可用")
	}
	out := new(big.Int).Mul(stableWei, weiPerUnit)
	return out.Quo(out, priceWei), nil
}

// StableForTokens 计算 tokenWei 数量的代币按单价折算的稳定币数量（向下取整）。
func StableForTokens(tokenWei, priceWei *big.Int) *big.Int {
	out := new(big.Int).Mul(tokenWei, priceWei)
	return out.Quo(out, weiPerUnit)
}

// SellEstimate 计算回售的"预计到账"展示值：先按单价折算，再扣除折价。
func SellEstimate(tokenWei, priceWei *big.Int, haircutBps int64) *big.Int {
	stable := StableForTokens(tokenWei, priceWei)
	stable.Mul(stable, big.NewInt(10000-haircutBps))
	return stable.Quo(stable, big.NewInt(10000))
}

// ProgressPercent 计算已售占容量的百分比（保留两位小数，向下取整）。
func ProgressPercent(sold, cap *big.Int) string {
	if sold == nil || cap == nil || cap.Sign() <= 0 {
		return "0"
	}
	bp := new(big.Int).Mul(sold, big.NewInt(10000))
	bp.Quo(bp, cap)
	quo, rem := new(big.Int).QuoRem(bp, big.NewInt(100), new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%02d", rem.Int64()), "0")
	return quo.String() + "." + frac
}

// EstimateSellReturn 是 API 层用的便捷封装：输入输出均为十进制字符串。
func EstimateSellReturn(amount, price string) (string, error) {
	tokenWei, err := ParseAmount(amount)
	if err != nil {
		return "", err
	}
	priceWei, err := ParseAmount(price)
	if err != nil {
		return "", err
	}
	return FormatAmount(SellEstimate(tokenWei, priceWei, DefaultHaircutBps)), nil
}
