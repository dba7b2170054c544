package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// OllamaConfig Ollama 引擎配置
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// OpenAIConfig OpenAI 兼容引擎配置（OpenAI / DeepSeek / vLLM 等）
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// Config 保存翻译器的所有配置
type Config struct {
	SourceLang string `mapstructure:"source_lang"`
	TargetLang string `mapstructure:"target_lang"`
	Provider   string `mapstructure:"provider"` // "ollama" | "openai" | "raw"
	Mode       string `mapstructure:"mode"`     // "speed" | "quality"

	Temperature float64 `mapstructure:"temperature"` // 负值表示使用模式默认值

	SectionConcurrency int `mapstructure:"section_concurrency"` // 并行翻译的章节数
	BatchConcurrency   int `mapstructure:"batch_concurrency"`   // 上下文无关引擎下章内批次并发数
	BatchMaxUnits      int `mapstructure:"batch_max_units"`     // 每批最大段落数
	BatchMaxChars      int `mapstructure:"batch_max_chars"`     // 每批最大字符数

	RequestTimeout  int `mapstructure:"request_timeout"`   // 单次请求基础超时（秒）
	TimeoutPerKChar int `mapstructure:"timeout_per_kchar"` // 每千字符追加的超时（秒）

	SimilarityThreshold float64 `mapstructure:"similarity_threshold"` // 译文与原文相似度上限

	CacheDir string `mapstructure:"cache_dir"` // 空表示 <输入文件>.et-cache

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`

	Ollama OllamaConfig `mapstructure:"ollama"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// Load 从文件加载配置，configPath 为空时查找 $HOME 和当前目录下的 .epubtrans.yaml
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".epubtrans")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("EPUBTRANS")
	// 嵌套键映射为下划线形式，如 EPUBTRANS_OPENAI_API_KEY → openai.api_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// 找不到配置文件时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_lang", "en")
	v.SetDefault("target_lang", "zh")
	v.SetDefault("provider", "ollama")
	v.SetDefault("mode", "speed")
	v.SetDefault("temperature", -1.0)
	v.SetDefault("section_concurrency", 1)
	v.SetDefault("batch_concurrency", 4)
	v.SetDefault("batch_max_units", 10)
	v.SetDefault("batch_max_chars", 4000)
	v.SetDefault("request_timeout", 60)
	v.SetDefault("timeout_per_kchar", 30)
	v.SetDefault("similarity_threshold", 0.95)
	v.SetDefault("cache_dir", "")
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "translategemma:4b")
	// api_key 的默认值必须显式注册，环境变量覆盖才会被 Unmarshal 看到
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
}

// EffectiveTemperature 返回生效的温度：显式设置优先，否则按模式取默认值
func (c *Config) EffectiveTemperature() float64 {
	if c.Temperature >= 0 {
		return c.Temperature
	}
	if c.Mode == "quality" {
		return 0.7
	}
	return 0.3
}
