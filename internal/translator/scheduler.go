package translator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/epubtrans/epubtrans/pkg/providers"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
)

// SchedulerOptions 批次调度参数
type SchedulerOptions struct {
	SourceLang string
	TargetLang string

	// 单次外部调用的等待上限随载荷大小伸缩：BaseTimeout + 每千字符 TimeoutPerKChar。
	// 大批次合法地需要更久，固定常量会误杀。
	BaseTimeout     time.Duration
	TimeoutPerKChar time.Duration

	// 译文与原文的相似度达到该值视为未翻译，<=0 关闭检查
	SimilarityThreshold float64
}

// UnitResult 一个单元的翻译结果，Err 与 Text 互斥
type UnitResult struct {
	Index int // 在提交切片中的位置
	Text  string
	Err   error
}

// Scheduler 批次调度器。
// 把整批文本编号为 [1]..[n] 交给翻译引擎，解析失败时二分重试：
// 每次失败把批次一分为二独立重试，直到定位到出问题的单段为止，
// 单段失败只上报不再重试（瞬时网络错误的退避重试属于引擎层）。
type Scheduler struct {
	provider providers.Provider
	logger   *zap.Logger
	opts     SchedulerOptions
}

// NewScheduler 创建调度器
func NewScheduler(provider providers.Provider, logger *zap.Logger, opts SchedulerOptions) *Scheduler {
	if opts.BaseTimeout <= 0 {
		opts.BaseTimeout = time.Minute
	}
	if opts.TimeoutPerKChar <= 0 {
		opts.TimeoutPerKChar = 30 * time.Second
	}
	return &Scheduler{provider: provider, logger: logger, opts: opts}
}

// TranslateBatch 翻译一批文本，返回与输入等长的按位结果。
// 一个单元失败不影响其他单元。
func (s *Scheduler) TranslateBatch(ctx context.Context, texts []string) []UnitResult {
	results := make([]UnitResult, len(texts))
	for i := range results {
		results[i].Index = i
	}
	if len(texts) == 0 {
		return results
	}
	s.translate(ctx, texts, results)
	return results
}

func (s *Scheduler) translate(ctx context.Context, texts []string, results []UnitResult) {
	segments, err := s.dispatch(ctx, texts)
	if err == nil {
		for i, seg := range segments {
			if s.untranslated(texts[i], seg) {
				results[i].Err = fmt.Errorf("译文与原文几乎相同，视为未翻译")
				continue
			}
			results[i].Text = seg
			results[i].Err = nil
		}
		return
	}

	if len(texts) == 1 {
		results[0].Err = err
		return
	}

	// 二分重试：两半各自独立，把一次失败的影响面收敛到真正有问题的子批
	mid := len(texts) / 2
	s.logger.Warn("batch response malformed, bisecting",
		zap.Int("batchSize", len(texts)),
		zap.Error(err))
	s.translate(ctx, texts[:mid], results[:mid])
	s.translate(ctx, texts[mid:], results[mid:])
}

func (s *Scheduler) dispatch(ctx context.Context, texts []string) ([]string, error) {
	var sb strings.Builder
	for i, t := range texts {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, t)
	}
	payload := sb.String()

	timeout := s.opts.BaseTimeout + time.Duration(len(payload)/1000+1)*s.opts.TimeoutPerKChar
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.provider.Translate(callCtx, &providers.Request{
		Text:           payload,
		SourceLanguage: s.opts.SourceLang,
		TargetLanguage: s.opts.TargetLang,
	})
	if err != nil {
		return nil, fmt.Errorf("翻译调用失败: %w", err)
	}

	segments, err := parseSegments(resp.Text, len(texts))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("batch dispatched",
		zap.Int("units", len(texts)),
		zap.Int("payloadChars", len(payload)),
		zap.Duration("elapsed", time.Since(start)))
	return segments, nil
}

// 段落标记必须出现在行首，避免译文正文里的 [3] 之类引用被当成编号
var segmentPattern = regexp2.MustCompile(`(?sm)^\[(\d+)\][ \t]*(.*?)(?=\n\[\d+\]|\z)`, 0)

// parseSegments 解析引擎响应。必须恰好得到 want 个编号唯一、1..want 连续的段，
// 否则整体判为坏响应交给二分重试；缺段绝不伪造内容补齐。
func parseSegments(text string, want int) ([]string, error) {
	seen := make(map[int]string, want)

	m, err := segmentPattern.FindStringMatch(text)
	if err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	for m != nil {
		groups := m.Groups()
		k, convErr := strconv.Atoi(groups[1].String())
		if convErr == nil {
			if _, dup := seen[k]; dup {
				return nil, fmt.Errorf("响应中段号 [%d] 重复", k)
			}
			seen[k] = strings.TrimSpace(groups[2].String())
		}
		m, _ = segmentPattern.FindNextMatch(m)
	}

	if len(seen) != want {
		return nil, fmt.Errorf("期望 %d 段，实际解析到 %d 段", want, len(seen))
	}

	out := make([]string, want)
	for k := 1; k <= want; k++ {
		seg, ok := seen[k]
		if !ok {
			return nil, fmt.Errorf("响应中缺少段 [%d]", k)
		}
		out[k-1] = seg
	}
	return out, nil
}

// untranslated 判断译文是否与原文过于相似（引擎原样吐回）。
// 过短的文本（数字、专名等）原样返回是正常的，不做判断。
func (s *Scheduler) untranslated(source, translated string) bool {
	if s.opts.SimilarityThreshold <= 0 {
		return false
	}
	src := []rune(source)
	if len(src) < 10 {
		return false
	}
	dist := fuzzy.LevenshteinDistance(source, translated)
	maxLen := len(src)
	if l := len([]rune(translated)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return false
	}
	similarity := 1.0 - float64(dist)/float64(maxLen)
	return similarity >= s.opts.SimilarityThreshold
}
