package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Config 重试配置
type Config struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultConfig 返回默认重试配置
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ErrorType 错误分类
type ErrorType int

const (
	ErrorTypeNone      ErrorType = iota
	ErrorTypeNetwork             // 网络瞬时错误
	ErrorTypeRetryable           // 可重试的 HTTP 错误（429/5xx）
	ErrorTypePermanent           // 永久性错误（4xx 等）
)

// Retrier 带指数退避的 HTTP 重试器
type Retrier struct {
	config Config
}

// New 创建重试器
func New(config Config) *Retrier {
	return &Retrier{config: config}
}

// DoFunc 可重试的请求函数
type DoFunc func() (*http.Response, error)

// Do 执行带重试的请求。瞬时网络错误和 429/5xx 会按指数退避重试，
// 其余错误立即返回。
func (r *Retrier) Do(ctx context.Context, fn DoFunc) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := fn()
		if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		switch ClassifyError(resp, err) {
		case ErrorTypeNetwork, ErrorTypeRetryable:
			lastErr = err
			lastResp = resp
			if resp != nil {
				resp.Body.Close()
			}
		default:
			return resp, err
		}

		if attempt < r.config.MaxRetries {
			delay := r.backoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	if lastResp != nil {
		return nil, &HTTPError{StatusCode: lastResp.StatusCode}
	}
	return nil, errors.New("retry: exhausted attempts")
}

// HTTPError 携带状态码的 HTTP 错误
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClassifyError 对请求结果分类
func ClassifyError(resp *http.Response, err error) ErrorType {
	if err != nil {
		// context 超时同样实现了 net.Error 的 Timeout，需先于网络超时判定
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrorTypePermanent
		}
		// 其余错误（net.Error 超时、连接被拒/重置等）一律按网络错误重试
		return ErrorTypeNetwork
	}

	if resp == nil {
		return ErrorTypeNone
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorTypeRetryable
	case resp.StatusCode >= 500:
		return ErrorTypeRetryable
	case resp.StatusCode >= 400:
		return ErrorTypePermanent
	}
	return ErrorTypeNone
}

func (r *Retrier) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}
