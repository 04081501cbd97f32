package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dominix.json")
	content := `{
  "wallet": {"required_chain": "bsc-testnet"},
  "contracts": {
    "presale": "0x0000000000000000000000000000000000000001",
    "stablecoin": "0x0000000000000000000000000000000000000002",
    "presale_token": "0x0000000000000000000000000000000000000003"
  }
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("API 地址默认值不正确: %s", cfg.Server.Address)
	}
	if cfg.Metrics.Address != ":9090" {
		t.Errorf("指标地址默认值不正确: %s", cfg.Metrics.Address)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("日志级别默认值不正确: %s", cfg.Logging.Level)
	}
	if cfg.Wallet.ChainConfig != filepath.Join(dir, "chains.yaml") {
		t.Errorf("链配置默认路径不正确: %s", cfg.Wallet.ChainConfig)
	}
	if cfg.Wallet.PrivateKeyEnv != "DOMINIX_PRIVATE_KEY" {
		t.Errorf("私钥环境变量默认值不正确: %s", cfg.Wallet.PrivateKeyEnv)
	}
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dominix.json")

	cases := map[string]string{
		"缺少目标链":  `{"contracts": {"presale": "0x1", "stablecoin": "0x2", "presale_token": "0x3"}}`,
		"缺少预售合约": `{"wallet": {"required_chain": "bsc"}, "contracts": {"stablecoin": "0x2", "presale_token": "0x3"}}`,
		"缺少稳定币":  `{"wallet": {"required_chain": "bsc"}, "contracts": {"presale": "0x1", "presale_token": "0x3"}}`,
	}
	for name, content := range cases {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("写入临时配置失败: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s 时应当加载失败", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("不存在的文件应当报错")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("空路径应当报错")
	}
}
