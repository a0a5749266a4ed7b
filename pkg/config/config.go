package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ChainConfig 链与合约配置
type ChainConfig struct {
	RPCURL string
	// ExtraRPCURLs 其他网络的节点，切换网络时使用
	ExtraRPCURLs []string
	// ChainID 为 0 时从节点读取
	ChainID uint64
	// TradeContracts 各链上的交易合约（即 operator）地址
	TradeContracts map[uint64]string
	// ConfirmTimeout 等待交易回执的最长时间
	ConfirmTimeout time.Duration
}

// WalletConfig 钱包配置（私钥、助记词、或 badger 加密存储三选一）
type WalletConfig struct {
	PrivateKey     string
	Mnemonic       string
	DerivationPath string
	SecretDB       string
	SecretKey      string
}

// MetadataConfig 预览元数据来源
type MetadataConfig struct {
	IPFSGateway       string
	ProbeGateway      string
	MarketplaceAPI    string
	MarketplaceAPIKey string
	RequestTimeout    time.Duration
	CacheTTL          time.Duration
	MarketplaceRPS    int // 市场 API 每秒请求上限
}

// TradeConfig 交易参数
type TradeConfig struct {
	ShareBaseURL string
}

// ServerConfig HTTP 服务与本地存储
type ServerConfig struct {
	Listen    string
	HistoryDB string
	// MetricsListen expvar/pprof 调试服务地址，为空则不启动
	MetricsListen string
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Host string
	Port int
}

// Config 应用配置
type Config struct {
	Chain     ChainConfig
	Wallet    WalletConfig
	Metadata  MetadataConfig
	Trade     TradeConfig
	Server    ServerConfig
	Proxy     *ProxyConfig
	GasMargin decimal.Decimal
	LogLevel  string
	LogFile   string
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Chain struct {
		RPCURL                string            `yaml:"rpc_url" json:"rpc_url"`
		ExtraRPCURLs          []string          `yaml:"extra_rpc_urls" json:"extra_rpc_urls"`
		ChainID               uint64            `yaml:"chain_id" json:"chain_id"`
		TradeContracts        map[uint64]string `yaml:"trade_contracts" json:"trade_contracts"`
		ConfirmTimeoutSeconds int               `yaml:"confirm_timeout_seconds" json:"confirm_timeout_seconds"`
	} `yaml:"chain" json:"chain"`
	Wallet struct {
		PrivateKey     string `yaml:"private_key" json:"private_key"`
		Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
		DerivationPath string `yaml:"derivation_path" json:"derivation_path"`
		SecretDB       string `yaml:"secret_db" json:"secret_db"`
	} `yaml:"wallet" json:"wallet"`
	Metadata struct {
		IPFSGateway           string `yaml:"ipfs_gateway" json:"ipfs_gateway"`
		ProbeGateway          string `yaml:"probe_gateway" json:"probe_gateway"`
		MarketplaceAPI        string `yaml:"marketplace_api" json:"marketplace_api"`
		MarketplaceAPIKey     string `yaml:"marketplace_api_key" json:"marketplace_api_key"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
		CacheTTLSeconds       int    `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
		MarketplaceRPS        int    `yaml:"marketplace_rps" json:"marketplace_rps"`
	} `yaml:"metadata" json:"metadata"`
	Trade struct {
		ShareBaseURL string `yaml:"share_base_url" json:"share_base_url"`
	} `yaml:"trade" json:"trade"`
	Server struct {
		Listen        string `yaml:"listen" json:"listen"`
		HistoryDB     string `yaml:"history_db" json:"history_db"`
		MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
	} `yaml:"server" json:"server"`
	Proxy struct {
		Host string `yaml:"host" json:"host"`
		Port int    `yaml:"port" json:"port"`
	} `yaml:"proxy" json:"proxy"`
	GasMargin string `yaml:"gas_margin" json:"gas_margin"` // 小数，例如 "0.1" 表示 +10%
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFile   string `yaml:"log_file" json:"log_file"`
}

var globalConfig *Config

// Load 从指定文件加载配置，filePath 为空时只使用环境变量和默认值
// 优先级：环境变量 > 配置文件 > 默认值
func Load(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf = loaded
	}

	gasMargin, err := parseDecimal(getEnv("GAS_MARGIN", cf.GasMargin), "0.10")
	if err != nil {
		return nil, fmt.Errorf("gas_margin 格式错误: %w", err)
	}

	config := &Config{
		Chain: ChainConfig{
			RPCURL:         getEnv("POPSWAP_RPC_URL", cf.Chain.RPCURL),
			ExtraRPCURLs:   splitList(getEnv("POPSWAP_EXTRA_RPC_URLS", ""), cf.Chain.ExtraRPCURLs),
			ChainID:        uint64(parseIntEnv("POPSWAP_CHAIN_ID", int(cf.Chain.ChainID))),
			TradeContracts: mergeTradeContracts(cf.Chain.TradeContracts, getEnv("POPSWAP_TRADE_CONTRACTS", "")),
			ConfirmTimeout: secondsOr(parseIntEnv("CONFIRM_TIMEOUT_SECONDS", cf.Chain.ConfirmTimeoutSeconds), 5*time.Minute),
		},
		Wallet: WalletConfig{
			PrivateKey:     getEnv("WALLET_PRIVATE_KEY", cf.Wallet.PrivateKey),
			Mnemonic:       getEnv("WALLET_MNEMONIC", cf.Wallet.Mnemonic),
			DerivationPath: firstNonEmpty(getEnv("WALLET_DERIVATION_PATH", cf.Wallet.DerivationPath), "m/44'/60'/0'/0/0"),
			SecretDB:       getEnv("POPSWAP_SECRET_DB", cf.Wallet.SecretDB),
			// 加密密钥只允许从环境变量读取，不落盘到配置文件
			SecretKey: getEnv("POPSWAP_SECRET_KEY", ""),
		},
		Metadata: MetadataConfig{
			IPFSGateway:       firstNonEmpty(getEnv("IPFS_GATEWAY", cf.Metadata.IPFSGateway), "https://ipfs.io"),
			ProbeGateway:      firstNonEmpty(getEnv("IPFS_PROBE_GATEWAY", cf.Metadata.ProbeGateway), "https://cloudflare-ipfs.com"),
			MarketplaceAPI:    firstNonEmpty(getEnv("MARKETPLACE_API", cf.Metadata.MarketplaceAPI), "https://api.opensea.io"),
			MarketplaceAPIKey: getEnv("MARKETPLACE_API_KEY", cf.Metadata.MarketplaceAPIKey),
			RequestTimeout:    secondsOr(parseIntEnv("METADATA_TIMEOUT_SECONDS", cf.Metadata.RequestTimeoutSeconds), 20*time.Second),
			CacheTTL:          secondsOr(parseIntEnv("METADATA_CACHE_TTL_SECONDS", cf.Metadata.CacheTTLSeconds), 10*time.Minute),
			MarketplaceRPS:    intOr(parseIntEnv("MARKETPLACE_RPS", cf.Metadata.MarketplaceRPS), 2),
		},
		Trade: TradeConfig{
			ShareBaseURL: getEnv("SHARE_BASE_URL", cf.Trade.ShareBaseURL),
		},
		Server: ServerConfig{
			Listen:        firstNonEmpty(getEnv("POPSWAP_LISTEN", cf.Server.Listen), ":8080"),
			HistoryDB:     firstNonEmpty(getEnv("POPSWAP_HISTORY_DB", cf.Server.HistoryDB), "data/history.db"),
			MetricsListen: getEnv("POPSWAP_METRICS_LISTEN", cf.Server.MetricsListen),
		},
		Proxy:     parseProxyConfig(cf),
		GasMargin: gasMargin,
		LogLevel:  firstNonEmpty(getEnv("LOG_LEVEL", cf.LogLevel), "info"),
		LogFile:   firstNonEmpty(getEnv("LOG_FILE", cf.LogFile), "logs/popswap.log"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	// 设置代理环境变量（resty 会自动读取）
	if config.Proxy != nil {
		proxyURL := fmt.Sprintf("http://%s:%d", config.Proxy.Host, config.Proxy.Port)
		os.Setenv("HTTP_PROXY", proxyURL)
		os.Setenv("HTTPS_PROXY", proxyURL)
	}

	globalConfig = config
	return config, nil
}

// Get 返回最近一次加载的配置
func Get() *Config {
	return globalConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url 不能为空（或设置 POPSWAP_RPC_URL）")
	}
	for chainID, addr := range c.Chain.TradeContracts {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("chain %d 的交易合约地址无效: %q", chainID, addr)
		}
	}
	if c.GasMargin.IsNegative() {
		return fmt.Errorf("gas_margin 不能为负数")
	}
	if c.Wallet.Mnemonic != "" && c.Wallet.PrivateKey != "" {
		return fmt.Errorf("wallet.private_key 与 wallet.mnemonic 只能配置一个")
	}
	for name, v := range map[string]string{
		"metadata.ipfs_gateway":    c.Metadata.IPFSGateway,
		"metadata.probe_gateway":   c.Metadata.ProbeGateway,
		"metadata.marketplace_api": c.Metadata.MarketplaceAPI,
	} {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return fmt.Errorf("%s 必须是 http(s) 地址: %q", name, v)
		}
	}
	return nil
}

// TradeContract 返回指定链上的交易合约地址
func (c *Config) TradeContract(chainID uint64) (common.Address, bool) {
	addr, ok := c.Chain.TradeContracts[chainID]
	if !ok || !common.IsHexAddress(addr) {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

// mergeTradeContracts 环境变量格式: "1=0xabc,137=0xdef"
func mergeTradeContracts(fromFile map[uint64]string, env string) map[uint64]string {
	out := make(map[uint64]string, len(fromFile))
	for k, v := range fromFile {
		out[k] = strings.TrimSpace(v)
	}
	for _, pair := range strings.Split(env, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			continue
		}
		out[id] = strings.TrimSpace(parts[1])
	}
	return out
}

func parseProxyConfig(cf *ConfigFile) *ProxyConfig {
	host := getEnv("PROXY_HOST", cf.Proxy.Host)
	if host == "" {
		return nil
	}
	port := parseIntEnv("PROXY_PORT", cf.Proxy.Port)
	if port <= 0 {
		return nil
	}
	return &ProxyConfig{Host: host, Port: port}
}

func parseDecimal(v, def string) (decimal.Decimal, error) {
	if strings.TrimSpace(v) == "" {
		v = def
	}
	return decimal.NewFromString(strings.TrimSpace(v))
}

// getEnv 环境变量存在时覆盖，否则返回 fallback
func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}

// splitList 逗号分隔的环境变量覆盖配置文件中的列表
func splitList(env string, fallback []string) []string {
	if strings.TrimSpace(env) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(env, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
