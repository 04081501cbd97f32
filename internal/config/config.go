package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 dominixd 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Metrics   MetricsConfig   `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
	Wallet    WalletConfig    `json:"wallet"`
	Contracts ContractsConfig `json:"contracts"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// MetricsConfig 控制指标服务的监听地址。
type MetricsConfig struct {
	Address string `json:"address"`
}

// LoggingConfig 控制日志输出与审计日志。
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"`
	AuditEnabled bool   `json:"audit_enabled"`
	AuditPath    string `json:"audit_path"`
}

// WalletConfig 描述本地钱包提供者的构造参数。
// 私钥通过环境变量注入，避免写入配置文件。
type WalletConfig struct {
	ChainConfig   string `json:"chain_config"`
	RequiredChain string `json:"required_chain"`
	PrivateKeyEnv string `json:"private_key_env"`
}

// ContractsConfig 包含预售合约与两个代币合约的地址。
type ContractsConfig struct {
	Presale      string `json:"presale"`
	Stablecoin   string `json:"stablecoin"`
	PresaleToken string `json:"presale_token"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.AuditEnabled && c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(baseDir, "logs", "audit.log")
	}

	if c.Wallet.ChainConfig == "" {
		c.Wallet.ChainConfig = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Wallet.ChainConfig) {
		c.Wallet.ChainConfig = filepath.Join(baseDir, c.Wallet.ChainConfig)
	}

	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "DOMINIX_PRIVATE_KEY"
	}
}

// validate 检查运行必需的字段。
func (c *Config) validate() error {
	if c.Wallet.RequiredChain == "" {
		return errors.New("未配置目标链名称")
	}
	if c.Contracts.Presale == "" {
		return errors.New("未配置预售合约地址")
	}
	if c.Contracts.Stablecoin == "" {
		return errors.New("未配置稳定币合约地址")
	}
	if c.Contracts.PresaleToken == "" {
		return errors.New("未配置预售代币合约地址")
	}
	return nil
}
