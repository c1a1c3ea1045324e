// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	LLM         LLMConfig         `mapstructure:"llm"`
	CodeSuggest CodeSuggestConfig `mapstructure:"code_suggest"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Research    ResearchConfig    `mapstructure:"research"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Tika        TikaConfig        `mapstructure:"tika"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储流式聊天模型的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选，零值表示不下发）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// CodeSuggestConfig 存储代码建议接口的配置。
type CodeSuggestConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MemoryConfig 存储会话记忆的上限与系统提示。
type MemoryConfig struct {
	SystemPrompt     string `mapstructure:"system_prompt"`
	MaxHistoryLength int    `mapstructure:"max_history_length"`
	MaxChatMemory    int    `mapstructure:"max_chat_memory"`
}

// ResearchConfig 存储深度研究流程的配置。
type ResearchConfig struct {
	SearchURL      string        `mapstructure:"search_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxResults     int           `mapstructure:"max_results"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TotalTimeout   time.Duration `mapstructure:"total_timeout"`
	SearchRate     float64       `mapstructure:"search_rate"`
	SummaryTokens  int           `mapstructure:"summary_tokens"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	TokenizerModel string        `mapstructure:"tokenizer_model"`
}

// ExecutorConfig 存储代码执行沙箱的配置。
type ExecutorConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
}

// ChatConfig 控制聊天主流程的附加步骤。
type ChatConfig struct {
	SuggestCode        bool  `mapstructure:"suggest_code"`
	ExecuteSuggestions bool  `mapstructure:"execute_suggestions"`
	UploadSummaryChars int   `mapstructure:"upload_summary_chars"`
	UploadMaxBytes     int64 `mapstructure:"upload_max_bytes"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用网页缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布对话事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// envAliases 把历史沿用的环境变量名绑定到配置键上。
var envAliases = map[string][]string{
	"llm.api_key":          {"CHAT_API_KEY", "GROQ_API_KEY"},
	"code_suggest.api_key": {"CODE_SUGGEST_API_KEY", "BLACKBOX_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama3-8b-8192")
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("code_suggest.base_url", "https://api.blackbox.ai/api")
	v.SetDefault("code_suggest.model", "blackboxai/deepseek/deepseek-r1-distill-llama-8b")
	v.SetDefault("code_suggest.temperature", 0.7)
	v.SetDefault("code_suggest.timeout", 15*time.Second)

	v.SetDefault("memory.system_prompt", "You are a helpful AI assistant.")
	v.SetDefault("memory.max_history_length", 50)
	v.SetDefault("memory.max_chat_memory", 100)

	v.SetDefault("research.search_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("research.user_agent", "Mozilla/5.0")
	v.SetDefault("research.max_results", 3)
	v.SetDefault("research.request_timeout", 10*time.Second)
	v.SetDefault("research.total_timeout", 60*time.Second)
	v.SetDefault("research.search_rate", 1.0)
	v.SetDefault("research.summary_tokens", 1000)
	v.SetDefault("research.cache_ttl", time.Hour)
	v.SetDefault("research.tokenizer_model", "gpt-3.5-turbo")

	v.SetDefault("executor.timeout", 5*time.Second)
	v.SetDefault("executor.max_output_bytes", 64*1024)

	v.SetDefault("chat.suggest_code", true)
	v.SetDefault("chat.execute_suggestions", true)
	v.SetDefault("chat.upload_summary_chars", 5000)
	v.SetDefault("chat.upload_max_bytes", 20<<20)

	// 可选组件：默认关闭，但需要注册键名才能被环境变量覆盖
	v.SetDefault("log.output_path", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "robo-chat-turns")
	v.SetDefault("tika.server_url", "")
	v.SetDefault("tika.timeout", 30*time.Second)
}

// Load 读取 YAML 配置文件并叠加环境变量。configPath 为空时只使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("绑定环境变量失败 %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Validate 检查启动必需的密钥。缺少任一密钥时服务必须拒绝启动。
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, errors.New("missing chat API key (CHAT_API_KEY or GROQ_API_KEY)"))
	}
	if strings.TrimSpace(c.CodeSuggest.APIKey) == "" {
		errs = append(errs, errors.New("missing code suggestion API key (CODE_SUGGEST_API_KEY or BLACKBOX_API_KEY)"))
	}
	return errors.Join(errs...)
}
