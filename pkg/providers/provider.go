package providers

import (
	"context"
	"fmt"
)

// Request 翻译请求
type Request struct {
	// Text 待翻译文本，可能是带编号标记的批量载荷
	Text           string
	SourceLanguage string
	TargetLanguage string
}

// Response 翻译响应
type Response struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// Provider 翻译引擎接口
type Provider interface {
	// Translate 执行一次翻译调用
	Translate(ctx context.Context, req *Request) (*Response, error)

	// Name 引擎名称
	Name() string

	// ContextFree 引擎是否上下文无关。
	// 上下文无关的引擎允许同章批次并发下发；依赖前文保持术语一致的引擎应返回 false。
	ContextFree() bool

	// HealthCheck 检查服务是否可用
	HealthCheck(ctx context.Context) error
}

// Mode 翻译模式
type Mode string

const (
	ModeSpeed   Mode = "speed"
	ModeQuality Mode = "quality"
)

// SystemPrompt 构建系统提示词。
// 要求模型保留 <gN>/[OT:N] 占位标记和 [k] 段落编号；实际解码对违规输出仍然容错。
func SystemPrompt(sourceLang, targetLang string, mode Mode) string {
	base := fmt.Sprintf(
		"You are a professional translator. Translate the following text from %s to %s. ",
		sourceLang, targetLang)
	if mode == ModeQuality {
		base = fmt.Sprintf(
			"You are a professional literary translator specializing in %s to %s translation. "+
				"Produce a natural, fluent translation that reads well in %s. "+
				"Maintain the author's tone and style. ",
			sourceLang, targetLang, targetLang)
	}
	return base +
		"The input contains numbered segments like [1], [2]; keep each segment on its own line " +
		"starting with the same number in the same order. " +
		"Keep placeholder markers such as <g0>...</g0> and [OT:0] exactly as they appear, " +
		"translating only the text around and inside them. " +
		"Output only the translated segments, no explanations."
}
