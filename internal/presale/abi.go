package presale

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// 预售合约与 ERC-20 的最小 ABI，只包含客户端用到的方法。
const presaleABIJSON = `[
  {"type":"function","name":"currentPhaseIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"phases","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"totalCap","type":"uint256"},{"name":"sold","type":"uint256"},{"name":"price","type":"uint256"},{"name":"isActive","type":"bool"}]},
  {"type":"function","name":"maxBuyAmount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"headline","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"registeredEmailOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"buyTokens","stateMutability":"nonpayable","inputs":[{"name":"_tokenAmount","type":"uint256"},{"name":"_referrer","type":"address"},{"name":"_email","type":"string"}],"outputs":[]},
  {"type":"function","name":"sellBack","stateMutability":"nonpayable","inputs":[{"name":"_tokenAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"registerEmail","stateMutability":"nonpayable","inputs":[{"name":"_email","type":"string"}],"outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	presaleABI = mustParseABI(presaleABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("presale: 内置 ABI 解析失败: " + err.Error())
	}
	return parsed
}
