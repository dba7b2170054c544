package translator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/epubtrans/epubtrans/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockProvider 按脚本应答的翻译引擎
type mockProvider struct {
	mu      sync.Mutex
	calls   []string
	respond func(payload string) (string, error)
}

func (m *mockProvider) Translate(_ context.Context, req *providers.Request) (*providers.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Text)
	m.mu.Unlock()

	text, err := m.respond(req.Text)
	if err != nil {
		return nil, err
	}
	return &providers.Response{Text: text, Model: "mock"}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) ContextFree() bool { return true }

func (m *mockProvider) HealthCheck(context.Context) error { return nil }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// echoNumbered 逐行把 "[k] body" 改写为 "[k] prefix+body"。
// 测试用的文本都是单行，载荷行数即单元数。
func echoNumbered(prefix string) func(string) (string, error) {
	return func(payload string) (string, error) {
		lines := strings.Split(payload, "\n")
		for i, line := range lines {
			end := strings.Index(line, "] ")
			if strings.HasPrefix(line, "[") && end >= 0 {
				lines[i] = line[:end+2] + prefix + line[end+2:]
			}
		}
		return strings.Join(lines, "\n"), nil
	}
}

func newTestScheduler(p providers.Provider, threshold float64) *Scheduler {
	return NewScheduler(p, zap.NewNop(), SchedulerOptions{
		SourceLang:          "en",
		TargetLang:          "zh",
		SimilarityThreshold: threshold,
	})
}

func TestTranslateBatch(t *testing.T) {
	t.Run("整批一次成功", func(t *testing.T) {
		mock := &mockProvider{respond: echoNumbered("译-")}
		s := newTestScheduler(mock, 0)

		results := s.TranslateBatch(context.Background(), []string{"one", "two", "three"})
		require.Len(t, results, 3)
		for i, r := range results {
			require.NoError(t, r.Err)
			assert.Equal(t, i, r.Index)
		}
		assert.Equal(t, "译-one", results[0].Text)
		assert.Equal(t, "译-three", results[2].Text)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("坏响应二分直到单段", func(t *testing.T) {
		mock := &mockProvider{respond: func(string) (string, error) {
			return "the model ignored the numbering", nil
		}}
		s := newTestScheduler(mock, 0)

		n := 4
		results := s.TranslateBatch(context.Background(), []string{"a", "b", "c", "d"})
		require.Len(t, results, n)
		for _, r := range results {
			assert.Error(t, r.Err)
		}
		// 全坏的引擎下调用次数恰好是 2n-1：1 + 2 + 4
		assert.Equal(t, 2*n-1, mock.callCount())
	})

	t.Run("二分定位坏段其余正常", func(t *testing.T) {
		// 两段合批时应答不完整，拆成单段后恢复正常
		mock := &mockProvider{}
		mock.respond = func(payload string) (string, error) {
			if strings.Contains(payload, "\n[2]") {
				return "[1] only the first segment", nil
			}
			return echoNumbered("译-")(payload)
		}
		s := newTestScheduler(mock, 0)

		results := s.TranslateBatch(context.Background(), []string{"alpha", "beta"})
		require.Len(t, results, 2)
		require.NoError(t, results[0].Err)
		require.NoError(t, results[1].Err)
		assert.Equal(t, "译-alpha", results[0].Text)
		assert.Equal(t, "译-beta", results[1].Text)
		assert.Equal(t, 3, mock.callCount())
	})

	t.Run("单段失败只上报不重试", func(t *testing.T) {
		mock := &mockProvider{respond: func(string) (string, error) {
			return "", errors.New("backend down")
		}}
		s := newTestScheduler(mock, 0)

		results := s.TranslateBatch(context.Background(), []string{"solo"})
		require.Len(t, results, 1)
		assert.Error(t, results[0].Err)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("空批次直接返回", func(t *testing.T) {
		mock := &mockProvider{respond: echoNumbered("译-")}
		s := newTestScheduler(mock, 0)

		results := s.TranslateBatch(context.Background(), nil)
		assert.Empty(t, results)
		assert.Equal(t, 0, mock.callCount())
	})
}

func TestParseSegments(t *testing.T) {
	t.Run("解析多段响应", func(t *testing.T) {
		segs, err := parseSegments("[1] first\n[2] second\n[3] third", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, segs)
	})

	t.Run("段内换行归属前段", func(t *testing.T) {
		segs, err := parseSegments("[1] line one\ncontinued here\n[2] two", 2)
		require.NoError(t, err)
		assert.Equal(t, "line one\ncontinued here", segs[0])
		assert.Equal(t, "two", segs[1])
	})

	t.Run("行中编号不算段边界", func(t *testing.T) {
		segs, err := parseSegments("[1] see [2] in the text", 1)
		require.NoError(t, err)
		assert.Equal(t, "see [2] in the text", segs[0])
	})

	t.Run("编号重复报错", func(t *testing.T) {
		_, err := parseSegments("[1] a\n[1] b", 2)
		assert.Error(t, err)
	})

	t.Run("缺段报错不伪造内容", func(t *testing.T) {
		_, err := parseSegments("[1] a", 2)
		assert.Error(t, err)
	})

	t.Run("多出编号外的段报错", func(t *testing.T) {
		_, err := parseSegments("[1] a\n[2] b\n[3] c", 2)
		assert.Error(t, err)
	})

	t.Run("编号不连续报错", func(t *testing.T) {
		_, err := parseSegments("[1] a\n[3] c", 2)
		assert.Error(t, err)
	})

	t.Run("无编号响应报错", func(t *testing.T) {
		_, err := parseSegments("the model replied free-form", 1)
		assert.Error(t, err)
	})
}

func TestSimilarityGate(t *testing.T) {
	t.Run("原样吐回的长文本判为未翻译", func(t *testing.T) {
		mock := &mockProvider{respond: echoNumbered("")}
		s := newTestScheduler(mock, 0.95)

		results := s.TranslateBatch(context.Background(), []string{"The quick brown fox jumps over the lazy dog"})
		require.Len(t, results, 1)
		assert.Error(t, results[0].Err)
	})

	t.Run("短文本原样返回是正常的", func(t *testing.T) {
		mock := &mockProvider{respond: echoNumbered("")}
		s := newTestScheduler(mock, 0.95)

		results := s.TranslateBatch(context.Background(), []string{"2024"})
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		assert.Equal(t, "2024", results[0].Text)
	})

	t.Run("阈值为零时关闭检查", func(t *testing.T) {
		mock := &mockProvider{respond: echoNumbered("")}
		s := newTestScheduler(mock, 0)

		results := s.TranslateBatch(context.Background(), []string{"The quick brown fox jumps over the lazy dog"})
		require.Len(t, results, 1)
		assert.NoError(t, results[0].Err)
	})

	t.Run("实际翻译的文本通过检查", func(t *testing.T) {
		mock := &mockProvider{respond: func(string) (string, error) {
			return "[1] 敏捷的棕色狐狸跳过懒狗", nil
		}}
		s := newTestScheduler(mock, 0.95)

		results := s.TranslateBatch(context.Background(), []string{"The quick brown fox jumps over the lazy dog"})
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
	})
}
