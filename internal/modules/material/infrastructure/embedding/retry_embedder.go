package embedding

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

const (
	retryMaxAttempts = 4
	retryBaseDelay   = 500 * time.Millisecond
	retryMaxDelay    = 8 * time.Second
)

// RetryEmbedder 为底层 Embedder 增加有界重试：指数退避加抖动，
// 限流错误按 Retry-After 指示至少等待；非限流的 4xx 视为永久错误立即失败
type RetryEmbedder struct {
	inner embedding.Embedder

	// 测试用注入点，默认可取消的定时等待
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryEmbedder(inner embedding.Embedder) *RetryEmbedder {
	return &RetryEmbedder{inner: inner, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *RetryEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	var lastErr error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		vecs, err := r.inner.EmbedStrings(ctx, texts, opts...)
		if err == nil {
			return vecs, nil
		}
		err = classifyProviderError(err)
		lastErr = err

		if isPermanent(err) {
			return nil, err
		}
		if attempt == retryMaxAttempts {
			break
		}

		delay := backoffDelay(attempt)
		var rateErr *material.RateLimitError
		if errors.As(err, &rateErr) && rateErr.RetryAfter > delay {
			delay = rateErr.RetryAfter
		}
		zlog.Warn("向量化调用失败，准备重试",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		if serr := r.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
	return nil, &material.TransientIOError{Op: "embedding", Err: lastErr}
}

// EmbedQuery 单条文本的便捷入口，检索侧使用
func (r *RetryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := r.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &material.TransientIOError{Op: "embedding", Err: errors.New("向量化返回数量异常")}
	}
	return vecs[0], nil
}

// backoffDelay 500ms·2^(n-1)，上限 8s，附加 ±25% 抖动
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			delay = retryMaxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay*3/4 + jitter
}

// retryAfterPattern 匹配上游限流信息里的等待时长提示，
// 如 "Retry-After: 2"、"retry after 1.5s"、"Please try again in 20s"
var retryAfterPattern = regexp.MustCompile(`(?i)(?:retry[ -]?after|try again in)\s*:?\s*([0-9]+(?:\.[0-9]+)?)\s*(ms|s)?`)

// classifyProviderError 把底层 SDK 的裸 429 错误归类为 RateLimitError，
// 并解析错误信息携带的 retry-after 提示；其余错误原样返回
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *material.RateLimitError
	if errors.As(err, &rateErr) {
		return err
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(msg, "429") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") {
		return &material.RateLimitError{RetryAfter: parseRetryAfter(msg), Err: err}
	}
	return err
}

func parseRetryAfter(msg string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0
	}
	if m[2] == "ms" {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}

// isPermanent 客户端错误（限流除外）不重试
func isPermanent(err error) bool {
	var rateErr *material.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}
	var valErr *material.ValidationError
	if errors.As(err, &valErr) {
		return true
	}
	msg := err.Error()
	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(msg, "status code: "+code) || strings.Contains(msg, "status "+code) {
			return true
		}
	}
	return false
}

var _ embedding.Embedder = (*RetryEmbedder)(nil)
