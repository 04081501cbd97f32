package wallet

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NativeCurrency 描述链原生代币的展示信息。
type NativeCurrency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// ChainDescriptor 是添加链时需要提交给钱包的完整描述。
type ChainDescriptor struct {
	Name        string         `yaml:"name"`
	ChainID     uint64         `yaml:"chain_id"`
	Currency    NativeCurrency `yaml:"native_currency"`
	RPCURL      string         `yaml:"rpc_url"`
	ExplorerURL string         `yaml:"explorer_url"`
}

// ID 返回链 ID 的大整数形式。
func (d ChainDescriptor) ID() *big.Int {
	return new(big.Int).SetUint64(d.ChainID)
}

// Validate 检查描述是否足以让钱包添加该链。
func (d ChainDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("链描述缺少名称")
	}
	if d.ChainID == 0 {
		return fmt.Errorf("链 %s 缺少链 ID", d.Name)
	}
	if strings.TrimSpace(d.RPCURL) == "" {
		return fmt.Errorf("链 %s 缺少 RPC 地址", d.Name)
	}
	if strings.TrimSpace(d.Currency.Symbol) == "" {
		return fmt.Errorf("链 %s 缺少原生代币符号", d.Name)
	}
	return nil
}

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDescriptor `yaml:"chains"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDescriptor{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDescriptor{}
	}
	for name, chain := range defs.Chains {
		if chain.Name == "" {
			chain.Name = name
			defs.Chains[name] = chain
		}
	}
	return defs, nil
}
