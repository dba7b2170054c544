package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/epubtrans/epubtrans/pkg/providers"
	goopenai "github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o-mini"

// Config OpenAI 兼容引擎配置，支持任何实现 Chat Completions API 的服务
type Config struct {
	APIKey      string         `json:"api_key"`
	BaseURL     string         `json:"base_url"`
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	Mode        providers.Mode `json:"mode"`
	Timeout     time.Duration  `json:"timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       defaultModel,
		Temperature: 0.3,
		Mode:        providers.ModeSpeed,
		Timeout:     2 * time.Minute,
	}
}

// Provider OpenAI 兼容翻译引擎
type Provider struct {
	config Config
	client *goopenai.Client
}

// New 创建 OpenAI 兼容引擎
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = defaultModel
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return &Provider{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
	}
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: providers.SystemPrompt(req.SourceLanguage, req.TargetLanguage, p.config.Mode),
			},
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: req.Text,
			},
		},
		Temperature: float32(p.config.Temperature),
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &providers.Response{
		Text:      strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:     resp.Model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// Name 引擎名称
func (p *Provider) Name() string {
	return "openai"
}

// ContextFree 托管 API 各请求相互独立
func (p *Provider) ContextFree() bool {
	return true
}

// HealthCheck 校验 API Key 可用
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("openai: api key is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: list models: %w", err)
	}
	return nil
}
