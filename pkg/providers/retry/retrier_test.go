package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func respWithStatus(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestRetrierDo(t *testing.T) {
	t.Run("成功响应直接返回", func(t *testing.T) {
		r := New(fastConfig())
		calls := 0
		resp, err := r.Do(context.Background(), func() (*http.Response, error) {
			calls++
			return respWithStatus(http.StatusOK), nil
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, calls)
	})

	t.Run("429重试后成功", func(t *testing.T) {
		r := New(fastConfig())
		calls := 0
		resp, err := r.Do(context.Background(), func() (*http.Response, error) {
			calls++
			if calls < 3 {
				return respWithStatus(http.StatusTooManyRequests), nil
			}
			return respWithStatus(http.StatusOK), nil
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 3, calls)
	})

	t.Run("重试耗尽返回状态错误", func(t *testing.T) {
		r := New(fastConfig())
		calls := 0
		_, err := r.Do(context.Background(), func() (*http.Response, error) {
			calls++
			return respWithStatus(http.StatusServiceUnavailable), nil
		})
		require.Error(t, err)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
		// MaxRetries=2 时共尝试 3 次
		assert.Equal(t, 3, calls)
	})

	t.Run("永久性错误不重试", func(t *testing.T) {
		r := New(fastConfig())
		calls := 0
		resp, _ := r.Do(context.Background(), func() (*http.Response, error) {
			calls++
			return respWithStatus(http.StatusUnauthorized), nil
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 1, calls)
	})

	t.Run("连接拒绝按瞬时错误重试", func(t *testing.T) {
		r := New(fastConfig())
		calls := 0
		_, err := r.Do(context.Background(), func() (*http.Response, error) {
			calls++
			return nil, syscall.ECONNREFUSED
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("上下文取消立即停止", func(t *testing.T) {
		r := New(fastConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Do(ctx, func() (*http.Response, error) {
			return respWithStatus(http.StatusOK), nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeNetwork, ClassifyError(nil, syscall.ECONNRESET))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(nil, context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeNetwork, ClassifyError(nil, errors.New("read: connection reset")))
	assert.Equal(t, ErrorTypeRetryable, ClassifyError(respWithStatus(429), nil))
	assert.Equal(t, ErrorTypeRetryable, ClassifyError(respWithStatus(502), nil))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(respWithStatus(404), nil))
	assert.Equal(t, ErrorTypeNone, ClassifyError(respWithStatus(204), nil))
	assert.Equal(t, ErrorTypeNone, ClassifyError(nil, nil))
}

func TestBackoff(t *testing.T) {
	r := New(Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2.0})
	assert.Equal(t, time.Second, r.backoff(0))
	assert.Equal(t, 2*time.Second, r.backoff(1))
	assert.Equal(t, 4*time.Second, r.backoff(2))
	// 超过上限封顶
	assert.Equal(t, 5*time.Second, r.backoff(3))
}
