package raw

import (
	"context"

	"github.com/epubtrans/epubtrans/pkg/providers"
)

// Provider 原样返回输入的引擎，用于预演和测试。
// 输出与输入逐字相同，编号标记和占位符天然合法。
type Provider struct{}

// New 创建 raw 引擎
func New() *Provider {
	return &Provider{}
}

// Translate 原样返回输入
func (p *Provider) Translate(_ context.Context, req *providers.Request) (*providers.Response, error) {
	return &providers.Response{Text: req.Text, Model: "raw"}, nil
}

// Name 引擎名称
func (p *Provider) Name() string {
	return "raw"
}

// ContextFree 无状态
func (p *Provider) ContextFree() bool {
	return true
}

// HealthCheck 永远可用
func (p *Provider) HealthCheck(context.Context) error {
	return nil
}
