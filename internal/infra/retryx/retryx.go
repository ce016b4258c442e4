// Package retryx 提供有界重试组合子。
//
// 重试策略（尝试次数、延迟、可重试判定）从主循环里拆出来，
// 让它能用一个"先失败 k 次再成功"的 fake 单独测试。
package retryx

import (
	"context"
	"time"
)

// Do 以有界尝试次数执行 fn。
//
// 约束：
// - attempts 是总尝试次数（含首次）；小于 1 时按 1 处理
// - 仅当 retryable(err)==true 且还有剩余预算时等待 delay 后重试
// - ctx 取消立即终止等待并返回 ctx.Err()
// - 返回最后一次尝试的错误（成功则为 nil）
func Do(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			return lastErr
		}

		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return lastErr
			case <-t.C:
			}
		}
	}
	return lastErr
}
