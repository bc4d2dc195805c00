// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// 默认值
const (
	DefaultContextWindow  = 10
	DefaultRequestTimeout = 120 // 秒
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	StaticDir string `json:"static_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 会话相关配置
	ContextWindow  int `json:"context_window"`  // 拼装提示词时保留的最近轮数
	RequestTimeout int `json:"request_timeout"` // 单次生成调用的超时（秒）

	// LLM相关配置
	// LLMProviders 按回退顺序排列：前面的不可用时尝试后面的
	LLMProviders []string                     `json:"llm_providers"`
	LLMConfigs   map[string]map[string]string `json:"llm_configs"`

	// 加密存储API密钥使用的密钥，不落盘
	configSecret string
}

// Config 存储应用配置
type Config struct {
	Port      string
	DataDir   string
	StaticDir string
	LogDir    string
	DebugMode bool
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", "8000"),
		DataDir:   getEnvPath("DATA_DIR", "data"),
		StaticDir: getEnvPath("STATIC_DIR", "web/static"),
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", true),
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	// 加载基础配置
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:           baseConfig.Port,
		DataDir:        baseConfig.DataDir,
		StaticDir:      baseConfig.StaticDir,
		LogDir:         baseConfig.LogDir,
		DebugMode:      baseConfig.DebugMode,
		ContextWindow:  getEnvInt("CONTEXT_WINDOW", DefaultContextWindow),
		RequestTimeout: getEnvInt("REQUEST_TIMEOUT", DefaultRequestTimeout),
		LLMProviders:   parseProviderChain(getEnv("LLM_PROVIDERS", "local,simulation")),
		LLMConfigs:     defaultProviderConfigs(),
		configSecret:   getEnv("CONFIG_SECRET", "personachat-config"),
	}

	// config.json可以覆盖环境变量的配置
	if err := loadConfigFile(currentConfig); err != nil {
		log.Printf("警告: 读取配置文件失败，使用环境变量配置: %v", err)
	}

	return nil
}

// parseProviderChain 解析逗号分隔的提供者链
func parseProviderChain(raw string) []string {
	parts := strings.Split(raw, ",")
	chain := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		chain = []string{"simulation"}
	}
	return chain
}

// defaultProviderConfigs 从环境变量构建各提供者的初始配置
func defaultProviderConfigs() map[string]map[string]string {
	return map[string]map[string]string{
		"local": {
			"base_url":      getEnv("LOCAL_MODEL_URL", "http://localhost:11434"),
			"default_model": getEnv("LOCAL_MODEL_NAME", "gemma2:2b"),
		},
		"gemini": {
			"api_key":       getEnv("GEMINI_API_KEY", ""),
			"default_model": getEnv("GEMINI_MODEL_NAME", "gemini-2.5-flash"),
		},
		"simulation": {},
	}
}

// loadConfigFile 从config.json读取已保存的配置并合并
func loadConfigFile(cfg *AppConfig) error {
	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var stored AppConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	if len(stored.LLMProviders) > 0 {
		cfg.LLMProviders = stored.LLMProviders
	}
	if stored.ContextWindow > 0 {
		cfg.ContextWindow = stored.ContextWindow
	}
	if stored.RequestTimeout > 0 {
		cfg.RequestTimeout = stored.RequestTimeout
	}

	// 解密已保存的API密钥
	for name, providerCfg := range stored.LLMConfigs {
		if providerCfg == nil {
			continue
		}
		if enc, ok := providerCfg["api_key"]; ok && enc != "" {
			if plain, err := utils.Decrypt(enc, cfg.configSecret); err == nil {
				providerCfg["api_key"] = plain
			}
		}
		cfg.LLMConfigs[name] = providerCfg
	}

	return nil
}

// GetCurrentConfig 获取当前配置
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return nil
	}

	// 返回副本，避免调用方直接修改内部状态
	copied := *currentConfig
	copied.LLMProviders = append([]string(nil), currentConfig.LLMProviders...)
	copied.LLMConfigs = make(map[string]map[string]string, len(currentConfig.LLMConfigs))
	for name, providerCfg := range currentConfig.LLMConfigs {
		inner := make(map[string]string, len(providerCfg))
		for k, v := range providerCfg {
			inner[k] = v
		}
		copied.LLMConfigs[name] = inner
	}

	return &copied
}

// UpdateLLMConfig 更新某个提供者的配置并持久化
func UpdateLLMConfig(providerName string, providerCfg map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	if currentConfig.LLMConfigs == nil {
		currentConfig.LLMConfigs = make(map[string]map[string]string)
	}
	currentConfig.LLMConfigs[providerName] = providerCfg

	return saveConfigLocked()
}

// UpdateProviderChain 更新提供者回退链并持久化
func UpdateProviderChain(chain []string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	if len(chain) == 0 {
		return fmt.Errorf("提供者链不能为空")
	}

	currentConfig.LLMProviders = append([]string(nil), chain...)
	return saveConfigLocked()
}

// saveConfigLocked 持久化当前配置，调用方需持有写锁
// API密钥加密后写盘
func saveConfigLocked() error {
	if configFile == "" {
		return nil
	}

	stored := *currentConfig
	stored.LLMConfigs = make(map[string]map[string]string, len(currentConfig.LLMConfigs))
	for name, providerCfg := range currentConfig.LLMConfigs {
		inner := make(map[string]string, len(providerCfg))
		for k, v := range providerCfg {
			inner[k] = v
		}
		if key, ok := inner["api_key"]; ok && key != "" {
			if enc, err := utils.Encrypt(key, currentConfig.configSecret); err == nil {
				inner["api_key"] = enc
			}
		}
		stored.LLMConfigs[name] = inner
	}

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configFile, data, 0644)
}
