package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/epubtrans/epubtrans/pkg/providers"
	"github.com/epubtrans/epubtrans/pkg/providers/retry"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "translategemma:4b"
)

// Config Ollama 配置
type Config struct {
	BaseURL     string         `json:"base_url"`
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	Mode        providers.Mode `json:"mode"`
	Timeout     time.Duration  `json:"timeout"`
	RetryConfig retry.Config   `json:"retry_config"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:     defaultBaseURL,
		Model:       defaultModel,
		Temperature: 0.3,
		Mode:        providers.ModeSpeed,
		Timeout:     5 * time.Minute,
		RetryConfig: retry.DefaultConfig(),
	}
}

// Provider Ollama 翻译引擎，走本地 /api/chat 接口
type Provider struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.Retrier
}

// New 创建 Ollama 引擎
func New(config Config) *Provider {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.RetryConfig == (retry.Config{}) {
		config.RetryConfig = retry.DefaultConfig()
	}

	return &Provider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier:    retry.New(config.RetryConfig),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	payload := chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: providers.SystemPrompt(req.SourceLanguage, req.TargetLanguage, p.config.Mode)},
			{Role: "user", Content: req.Text},
		},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": p.config.Temperature,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	resp, err := p.retrier.Do(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.config.BaseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return p.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return &providers.Response{
		Text:      strings.TrimSpace(chat.Message.Content),
		Model:     chat.Model,
		TokensIn:  chat.PromptEvalCount,
		TokensOut: chat.EvalCount,
	}, nil
}

// Name 引擎名称
func (p *Provider) Name() string {
	return "ollama"
}

// ContextFree 本地模型按顺序推理，批次保持串行以维持术语一致
func (p *Provider) ContextFree() bool {
	return false
}

// HealthCheck 检查 Ollama 服务是否可用
func (p *Provider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: service unreachable at %s: %w", p.config.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 列出本地可用模型
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tags tagsResponse
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
