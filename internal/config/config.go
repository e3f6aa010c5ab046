package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Chat    ChatConfig
	AI      AIConfig
}

// Load 从环境变量加载配置，CONFIG_FILE 指向的 YAML 文件作为未设置变量的后备值。
func Load() (*Config, error) {
	src, err := newSource(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	server, err := src.loadServerConfig()
	if err != nil {
		return nil, err
	}

	chat, err := src.loadChatConfig()
	if err != nil {
		return nil, err
	}

	ai, err := src.loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Storage: src.loadStorageConfig(),
		Chat:    chat,
		AI:      ai,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// StorageConfig 描述会话文件的存放位置。
type StorageConfig struct {
	SessionsDir string
}

// ChatConfig 控制对话编排行为。
type ChatConfig struct {
	// EvaluationInterval 每累计多少条消息触发一次健康评估。
	EvaluationInterval int
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	// Timeout 为零时不对单次调用设置截止时间。
	Timeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// source 先查环境变量，再查配置文件。
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	if path == "" {
		return source{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return source{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, val := range raw {
		if val == nil {
			continue
		}
		switch v := val.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			values[key] = strings.Join(parts, ",")
		default:
			values[key] = fmt.Sprint(v)
		}
	}
	return source{file: values}, nil
}

func (s source) lookup(key string) (string, bool) {
	if raw, ok := os.LookupEnv(key); ok && strings.TrimSpace(raw) != "" {
		return raw, true
	}
	raw, ok := s.file[key]
	return raw, ok
}

func (s source) get(key string) string {
	raw, _ := s.lookup(key)
	return strings.TrimSpace(raw)
}

// loadServerConfig 解析服务器监听地址。
func (s source) loadServerConfig() (ServerConfig, error) {
	origins := splitList(s.get("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := s.get("PORT")
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

func (s source) loadStorageConfig() StorageConfig {
	return StorageConfig{SessionsDir: s.getOrDefault("SESSIONS_DIR", "data/sessions")}
}

func (s source) loadChatConfig() (ChatConfig, error) {
	interval := 5
	override, err := s.parseOptionalInt("EVALUATION_INTERVAL")
	if err != nil {
		return ChatConfig{}, err
	}
	if override != nil {
		if *override < 1 {
			interval = 1
		} else {
			interval = *override
		}
	}
	return ChatConfig{EvaluationInterval: interval}, nil
}

func (s source) loadAIConfig() (AIConfig, error) {
	temperature, err := s.parseOptionalFloat("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := s.parseOptionalFloat("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := s.parseOptionalInt("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	var timeout time.Duration
	if seconds, err := s.parseOptionalInt("AI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		timeout = time.Duration(*seconds) * time.Second
	}

	return AIConfig{
		APIKey:      s.get("ARK_API_KEY"),
		AccessKey:   s.get("ARK_ACCESS_KEY"),
		SecretKey:   s.get("ARK_SECRET_KEY"),
		Model:       s.get("Model"),
		BaseURL:     s.getOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      s.getOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

func (s source) getOrDefault(key, defaultValue string) string {
	if value := s.get(key); value != "" {
		return value
	}
	return defaultValue
}

func (s source) parseOptionalFloat(key string) (*float64, error) {
	value := s.get(key)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func (s source) parseOptionalInt(key string) (*int, error) {
	value := s.get(key)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
